package prompts

import (
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptTemplate(t *testing.T) {
	t.Parallel()

	p := NewPromptTemplate(`You are {{.name}}. Today is {{ .day | title }}.`, []string{"name"})
	p.PartialVariables = map[string]any{"name": "a calculator", "day": "monday"}
	assert.Equal(t, []string{"name"}, p.GetInputVariables())

	v, err := p.FormatPrompt(nil)
	require.NoError(t, err)
	assert.Equal(t, "You are a calculator. Today is Monday.", v.String())
	assert.Equal(t, []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "You are a calculator. Today is Monday.")}, v.Messages())

	v, err = p.FormatPrompt(map[string]any{"name": "helpful", "day": "friday"})
	require.NoError(t, err)
	assert.Equal(t, "You are helpful. Today is Friday.", v.String())

	_, err = NewPromptTemplate("{{.missing}}", nil).Format(map[string]any{})
	assert.Error(t, err)

	_, err = NewPromptTemplate("{{.bad", nil).Format(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse prompt template")
}
