package config_test

import (
	"testing"
	"time"

	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.TransportSSE, cfg.Server.Transport)
	assert.Equal(t, "127.0.0.1:3001", cfg.Server.Addr)
	assert.Equal(t, mcp.Implementation{Name: "mcp-client", Version: "0.1.0"}, cfg.Client.Implementation())
	assert.Equal(t, "calculator", cfg.Agent.Name)
	assert.Equal(t, "Add 10 + 10", cfg.Agent.Prompt)
	assert.Equal(t, "mcpbridge", cfg.Store.Prefix)
	assert.Empty(t, cfg.Store.RedisAddr)
	assert.Empty(t, cfg.LLM)

	d, err := cfg.Client.GetRequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d)

	d, err = cfg.Agent.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)
}

func Test_Load(t *testing.T) {
	t.Setenv("MCPBRIDGE_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load("testdata/mcpbridge.yaml")
	require.NoError(t, err)

	assert.Equal(t, config.TransportHTTP, cfg.Server.Transport)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Server.PageSize)
	assert.Equal(t, "mcp-client", cfg.Client.Name)
	assert.Equal(t, "math", cfg.Agent.Name)
	assert.Equal(t, []string{"gpt-4o-mini"}, cfg.Agent.Models)
	assert.Equal(t, "Sub 10 - 3", cfg.Agent.Prompt)
	assert.Equal(t, 4, cfg.Agent.MaxToolCalls)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "testdata/llm.yaml", cfg.LLM)

	d, err := cfg.Client.GetRequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = cfg.Agent.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}

func Test_LoadErrors(t *testing.T) {
	_, err := config.Load("testdata/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config testdata/missing.yaml")

	_, err = config.Load("testdata/invalid_transport.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = config.Load("testdata/invalid_timeout.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid agent.timeout")

	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Client.RequestTimeout = "-1s"
	assert.EqualError(t, cfg.Validate(), "invalid client.request_timeout: must be positive")
}
