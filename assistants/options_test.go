package assistants_test

import (
	"testing"
	"time"

	"github.com/effective-security/mcpbridge/assistants"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ChainCallOptions(t *testing.T) {
	t.Parallel()

	cfg := assistants.NewConfig()
	assert.Equal(t, 0, cfg.MaxLength)
	assert.Equal(t, 0, cfg.MaxToolCalls)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Nil(t, cfg.CallbackHandler)
	assert.Nil(t, cfg.Store)
	assert.Empty(t, cfg.GetCallOptions())

	cfg = assistants.NewConfig(
		assistants.WithModel("gpt-4o"),
		assistants.WithMaxTokens(100),
		assistants.WithTemperature(0.7),
		assistants.WithStopWords([]string{"foo", "bar"}),
		assistants.WithTopP(0.9),
		assistants.WithToolChoice(llms.ToolChoiceAuto),
		assistants.WithMetadata(map[string]any{"user": "test"}),
		assistants.WithMaxLength(200),
		assistants.WithMaxToolCalls(5),
		assistants.WithMaxMessages(20),
		assistants.WithTimeout(time.Second),
		assistants.WithSkipMessageHistory(true),
		assistants.WithSkipToolHistory(true),
		assistants.WithStore(store.NewMemoryStore()),
		assistants.WithPromptInput(map[string]any{"Input": "input"}),
		assistants.WithExamples(chatmodel.FewShotExamples{
			{
				Prompt:     "example prompt",
				Completion: "example answer",
			},
		}),
		assistants.WithCallback(nil),
	)
	assert.Equal(t, 5, cfg.MaxToolCalls)
	assert.Equal(t, 20, cfg.MaxMessages)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.True(t, cfg.SkipMessageHistory)
	assert.True(t, cfg.SkipToolHistory)
	assert.NotNil(t, cfg.Store)
	assert.Len(t, cfg.Examples, 1)

	llmOpts := cfg.GetCallOptions(llms.WithTools([]llms.Tool{{Type: "function"}}))
	require.Len(t, llmOpts, 8)

	got := llms.NewCallOptions("default", llmOpts...)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, []string{"foo", "bar"}, got.StopWords)
	assert.Equal(t, 0.9, got.TopP)
	assert.Equal(t, llms.ToolChoiceAuto, got.ToolChoice)
	assert.Len(t, got.Tools, 1)
}

func Test_Config_Apply(t *testing.T) {
	t.Parallel()

	cfg := assistants.NewConfig(
		assistants.WithStopWords([]string{"a"}),
		assistants.WithMaxToolCalls(3),
	)
	applied := cfg.Apply(
		assistants.WithMaxToolCalls(7),
		assistants.WithModel("gpt-4o"),
	)
	assert.Equal(t, 7, applied.MaxToolCalls)
	got := llms.NewCallOptions("default", applied.GetCallOptions()...)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, []string{"a"}, got.StopWords)

	// the base config is not modified
	assert.Equal(t, 3, cfg.MaxToolCalls)
	assert.Len(t, cfg.GetCallOptions(), 1)
	assert.Len(t, applied.GetCallOptions(), 2)
	assert.Equal(t, "default", llms.NewCallOptions("default", cfg.GetCallOptions()...).Model)
}
