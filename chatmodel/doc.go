// Package chatmodel carries the chat context of an assistant run:
// tenant and chat IDs of the conversation history, and the run ID.
package chatmodel
