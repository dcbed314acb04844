// Package prompts formats the system prompts of the assistants
// from Go templates extended with the sprig functions.
package prompts
