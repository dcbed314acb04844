// Package store provides the conversation history of the assistants,
// kept in memory or in Redis.
package store
