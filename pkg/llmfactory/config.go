package llmfactory

import (
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Config of the LLM providers
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the name of the default provider,
	// the first provider is used when empty
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	// AssistantModels specifies the mapping of assistants to models.
	// key is the assistant name, value is the list of preferred models.
	// Use `default: [<model_name>]` as the default model for assistants.
	AssistantModels map[string][]string `json:"assistant_models,omitempty" yaml:"assistant_models,omitempty"`
}

// ProviderConfig of a single provider
type ProviderConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	// Type is one of OPENAI|ANTHROPIC|BEDROCK
	Type            string   `json:"type" yaml:"type" validate:"required,oneof=OPENAI ANTHROPIC BEDROCK"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	// OrgID specifies which OpenAI organization's quota should be used
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`

	AWS AWSConfig `json:"aws" yaml:"aws"`
}

// AWSConfig for the Bedrock provider, the default
// AWS credentials chain is used when the keys are empty
type AWSConfig struct {
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token,omitempty"`
}

// FindModel returns the first of the models available at the provider,
// or the default model
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Validate the config
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid LLM config")
	}
	if c.DefaultProvider != "" && !slices.ContainsFunc(c.Providers, func(p *ProviderConfig) bool {
		return p.Name == c.DefaultProvider
	}) {
		return errors.Newf("default provider not found: %s", c.DefaultProvider)
	}
	return nil
}

// Defaults of the built-in provider, used when no config file is given
const (
	DefaultProviderName = "openai"
	DefaultModel        = "gpt-3.5-turbo-0125"
	// DefaultTokenEnv is the environment variable with the OpenAI API key
	DefaultTokenEnv = "OPENAI_API_KEY"
)

// DefaultConfig returns the config with a single OpenAI provider,
// the API key is read from OPENAI_API_KEY
func DefaultConfig() *Config {
	return &Config{
		Providers: []*ProviderConfig{
			{
				Name:            DefaultProviderName,
				Type:            string(llms.ProviderOpenAI),
				Token:           os.Getenv(DefaultTokenEnv),
				DefaultModel:    DefaultModel,
				AvailableModels: []string{DefaultModel, "gpt-4o", "gpt-4o-mini"},
			},
		},
	}
}

// LoadConfig from file, environment variables are expanded at load time.
// DefaultConfig is returned when file is empty.
func LoadConfig(file string) (*Config, error) {
	if file == "" {
		return DefaultConfig(), nil
	}

	cfg := new(Config)
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
