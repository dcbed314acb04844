package chatmodel

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidChatContext is returned when the context has no ChatContext
	ErrInvalidChatContext = errors.New("invalid chat context")
	// ErrFailedUnmarshalInput is returned by tools when the model
	// provided arguments that do not match the schema
	ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")
)

// FewShotExample is a pair of user prompt and the expected completion
type FewShotExample struct {
	Prompt     string `json:"prompt" yaml:"prompt"`
	Completion string `json:"completion" yaml:"completion"`
}

// FewShotExamples are added to the message history after the system prompt
type FewShotExamples []FewShotExample
