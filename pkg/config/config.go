package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mcp/transport/sse"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/go-playground/validator/v10"
)

// Transports of the server endpoint
const (
	TransportSSE  = "sse"
	TransportHTTP = "http"
)

// Defaults of the configuration
const (
	DefaultClientName    = "mcp-client"
	DefaultClientVersion = "0.1.0"
	DefaultAgentName     = "calculator"
	DefaultPrompt        = "Add 10 + 10"
	DefaultStorePrefix   = "mcpbridge"
	DefaultPromptTimeout = 2 * time.Minute
)

// Config of the application
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	Client ClientConfig `json:"client" yaml:"client"`
	Agent  AgentConfig  `json:"agent" yaml:"agent"`
	Store  StoreConfig  `json:"store" yaml:"store"`

	// LLM is the location of the LLM providers config file,
	// relative to the current directory
	LLM string `json:"llm,omitempty" yaml:"llm,omitempty"`
}

// ServerConfig of the MCP server endpoint
type ServerConfig struct {
	// Transport is one of sse|http
	Transport string `json:"transport" yaml:"transport" validate:"oneof=sse http"`
	// Addr is host:port of the endpoint
	Addr string `json:"addr" yaml:"addr" validate:"hostname_port"`
	// PageSize of the tools listing, 0 returns all tools
	PageSize int `json:"page_size,omitempty" yaml:"page_size,omitempty" validate:"gte=0"`
}

// ClientConfig of the MCP client
type ClientConfig struct {
	Name    string `json:"name" yaml:"name" validate:"required"`
	Version string `json:"version" yaml:"version" validate:"required"`
	// RequestTimeout is the timeout of a request, such as 60s
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

// AgentConfig of the assistant
type AgentConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	// Models are the preferred models, the default model of the provider is used when none is available
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`
	// SystemPrompt is the template of the system prompt, {{.tools}} has the tools descriptions
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// Prompt is the default prompt of the run command
	Prompt       string `json:"prompt" yaml:"prompt"`
	MaxToolCalls int    `json:"max_tool_calls,omitempty" yaml:"max_tool_calls,omitempty" validate:"gte=0"`
	MaxMessages  int    `json:"max_messages,omitempty" yaml:"max_messages,omitempty" validate:"gte=0"`
	// Timeout of the prompt, such as 2m
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// StoreConfig of the conversation history,
// the history is kept in memory when RedisAddr is empty
type StoreConfig struct {
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" validate:"omitempty,hostname_port"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Load returns the config from file, with the defaults applied.
// Environment variables are expanded at load time.
// An empty file returns the defaults.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %s", file)
		}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills the empty values
func (c *Config) SetDefaults() {
	c.Server.Transport = values.StringsCoalesce(c.Server.Transport, TransportSSE)
	c.Server.Addr = values.StringsCoalesce(c.Server.Addr, sse.DefaultAddr)
	c.Client.Name = values.StringsCoalesce(c.Client.Name, DefaultClientName)
	c.Client.Version = values.StringsCoalesce(c.Client.Version, DefaultClientVersion)
	c.Client.RequestTimeout = values.StringsCoalesce(c.Client.RequestTimeout, mcp.DefaultRequestTimeout.String())
	c.Agent.Name = values.StringsCoalesce(c.Agent.Name, DefaultAgentName)
	c.Agent.Prompt = values.StringsCoalesce(c.Agent.Prompt, DefaultPrompt)
	c.Agent.Timeout = values.StringsCoalesce(c.Agent.Timeout, DefaultPromptTimeout.String())
	c.Store.Prefix = values.StringsCoalesce(c.Store.Prefix, DefaultStorePrefix)
}

// Validate the config
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if _, err := c.Client.GetRequestTimeout(); err != nil {
		return err
	}
	if _, err := c.Agent.GetTimeout(); err != nil {
		return err
	}
	return nil
}

// Implementation returns the client identity
func (c *ClientConfig) Implementation() mcp.Implementation {
	return mcp.Implementation{Name: c.Name, Version: c.Version}
}

// GetRequestTimeout returns the parsed request timeout
func (c *ClientConfig) GetRequestTimeout() (time.Duration, error) {
	return parseDuration("client.request_timeout", c.RequestTimeout, mcp.DefaultRequestTimeout)
}

// GetTimeout returns the parsed prompt timeout
func (c *AgentConfig) GetTimeout() (time.Duration, error) {
	return parseDuration("agent.timeout", c.Timeout, DefaultPromptTimeout)
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", name)
	}
	if d <= 0 {
		return 0, errors.Newf("invalid %s: must be positive", name)
	}
	return d, nil
}
