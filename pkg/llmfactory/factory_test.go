package llmfactory_test

import (
	"context"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	provider string
	model    string
}

func (f *fakeLLM) GetName() string {
	return f.model
}

func (f *fakeLLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(f.provider)
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "fake"}}}, nil
}

func useFakeLLM(t *testing.T) {
	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		return &fakeLLM{provider: cfg.Name, model: cfg.FindModel(preferredModels...)}, nil
	}
	t.Cleanup(func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	})
}

func Test_Factory(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")

	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "fakekey", cfg.Providers[0].Token)

	useFakeLLM(t)
	f := llmfactory.New(cfg)

	model, err := f.DefaultModel()
	require.NoError(t, err)
	fm := model.(*fakeLLM)
	assert.Equal(t, "gpt-3.5-turbo-0125", fm.model)
	assert.Equal(t, "openai", fm.provider)

	model, err = f.ModelByName("gpt-4o")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-4o", fm.model)

	model, err = f.ModelByName("unknown", "claude-3-5-haiku-20241022")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "claude-3-5-haiku-20241022", fm.model)
	assert.Equal(t, "anthropic", fm.provider)

	model, err = f.ModelByName("non-existent-model")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo-0125", model.GetName())

	model, err = f.ModelByType("BEDROCK")
	require.NoError(t, err)
	assert.Equal(t, "anthropic.claude-3-5-sonnet-20241022-v2:0", model.GetName())

	cached, err := f.ModelByType("BEDROCK")
	require.NoError(t, err)
	assert.Same(t, model, cached)

	_, err = f.ModelByType("GOOGLEAI")
	assert.EqualError(t, err, "provider not found for type: GOOGLEAI")

	model, err = f.AssistantModel("calculator")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", model.GetName())

	model, err = f.AssistantModel("other", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model.GetName())
}

func Test_DefaultModel_NoProviders(t *testing.T) {
	f := llmfactory.New(&llmfactory.Config{})
	_, err := f.DefaultModel()
	assert.EqualError(t, err, "no providers configured")

}

func Test_DefaultConfig(t *testing.T) {
	t.Setenv(llmfactory.DefaultTokenEnv, "fakekey")

	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "OPENAI", cfg.Providers[0].Type)
	assert.Equal(t, "fakekey", cfg.Providers[0].Token)

	f, err := llmfactory.Load("")
	require.NoError(t, err)
	model, err := f.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenAI, model.GetProviderType())
	assert.Equal(t, llmfactory.DefaultModel, model.GetName())

	t.Setenv(llmfactory.DefaultTokenEnv, "")
	f, err = llmfactory.Load("")
	require.NoError(t, err)
	_, err = f.DefaultModel()
	assert.Error(t, err)
}

func Test_CreateLLM(t *testing.T) {
	cfg := &llmfactory.ProviderConfig{
		Name:         "test",
		Type:         "OPENAI",
		Token:        "fakekey",
		DefaultModel: "gpt-3.5-turbo-0125",
	}
	model, err := llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenAI, model.GetProviderType())
	assert.Equal(t, "gpt-3.5-turbo-0125", model.GetName())

	cfg.Type = "ANTHROPIC"
	cfg.DefaultModel = "claude-3-5-sonnet-20241022"
	model, err = llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderAnthropic, model.GetProviderType())

	cfg.Type = "BEDROCK"
	cfg.DefaultModel = ""
	cfg.AWS = llmfactory.AWSConfig{Region: "us-east-1", AccessKeyID: "AKID", SecretAccessKey: "secret"}
	model, err = llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderBedrock, model.GetProviderType())
	assert.NotEmpty(t, model.GetName())

	cfg.Type = "OPENAI"
	cfg.Token = ""
	_, err = llmfactory.CreateLLM(cfg)
	assert.Error(t, err)

	cfg.Type = "UNSUPPORTED"
	_, err = llmfactory.CreateLLM(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider type")
}

func Test_LoadConfig(t *testing.T) {
	_, err := llmfactory.LoadConfig("testdata/non-existent.yaml")
	require.Error(t, err)

	_, err = llmfactory.LoadConfig("testdata/invalid.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid LLM config")

	_, err = llmfactory.LoadConfig("testdata/bad_default.yaml")
	assert.EqualError(t, err, "default provider not found: missing")
}

func Test_FindModel(t *testing.T) {
	cfg := &llmfactory.ProviderConfig{
		DefaultModel:    "a",
		AvailableModels: []string{"a", "b"},
	}
	assert.Equal(t, "b", cfg.FindModel("x", "b"))
	assert.Equal(t, "a", cfg.FindModel("x"))
	assert.Equal(t, "a", cfg.FindModel())
}
