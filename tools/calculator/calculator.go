// Package calculator provides the arithmetic tools served by the demo MCP server.
package calculator

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
)

// Server identity of the calculator
const (
	ServerName    = "add"
	ServerVersion = "1.0"
)

// Tool names
const (
	ToolAdd = "Add"
	ToolSub = "Sub"
)

// AddArgs are the arguments of the Add tool
type AddArgs struct {
	A float64 `json:"a" jsonschema:"description=The first number to add"`
	B float64 `json:"b" jsonschema:"description=The second number to add"`
}

// SubArgs are the arguments of the Sub tool
type SubArgs struct {
	A float64 `json:"a" jsonschema:"description=The first number"`
	B float64 `json:"b" jsonschema:"description=The second number"`
}

// Add returns a + b
func Add(_ context.Context, args AddArgs) (*mcp.ToolResult, error) {
	return mcp.NewNumberResult(args.A + args.B), nil
}

// Sub returns a - b
func Sub(_ context.Context, args SubArgs) (*mcp.ToolResult, error) {
	return mcp.NewNumberResult(args.A - args.B), nil
}

// Register adds the calculator tools to the registry, in order: Add, Sub
func Register(r *mcp.Registry) error {
	if err := mcp.RegisterFunc(r, ToolAdd, "Adds two numbers together.", Add); err != nil {
		return errors.WithMessagef(err, "failed to register %s", ToolAdd)
	}
	if err := mcp.RegisterFunc(r, ToolSub, "Subtract 2nd number from 1st", Sub); err != nil {
		return errors.WithMessagef(err, "failed to register %s", ToolSub)
	}
	return nil
}

// NewRegistry returns a registry with the calculator tools
func NewRegistry() (*mcp.Registry, error) {
	r := mcp.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Implementation returns the server identity
func Implementation() mcp.Implementation {
	return mcp.Implementation{Name: ServerName, Version: ServerVersion}
}
