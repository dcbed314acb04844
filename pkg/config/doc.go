// Package config provides the configuration of the mcpbridge commands:
// the server endpoint, the client identity, the agent and its history store.
package config
