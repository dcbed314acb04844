// Package llms defines the model interface used by the assistants,
// together with the message types exchanged with the providers.
//
// Provider implementations live in the subpackages: openai, anthropic
// and bedrock.
package llms
