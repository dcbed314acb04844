// Package assistants runs the model loop of an agent: the model selects
// tools, the tools run concurrently, their results are fed back to the model
// until it produces the final answer.
package assistants
