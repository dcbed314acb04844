package mcp

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/schema"
)

// TypedHandler executes a tool with arguments decoded into T
type TypedHandler[T any] func(ctx context.Context, args T) (*ToolResult, error)

// RegisterFunc registers a tool whose parameters are derived from the
// exported fields of struct T, using `json` and `jsonschema` tags:
//
//	type AddArgs struct {
//		A float64 `json:"a" jsonschema:"description=The first number to add"`
//		B float64 `json:"b" jsonschema:"description=The second number to add"`
//	}
//
// Fields without `omitempty` are required.
func RegisterFunc[T any](r *Registry, name, description string, fn TypedHandler[T]) error {
	if fn == nil {
		return errors.Wrapf(ErrInvalidDescriptor, "tool %q has no handler", name)
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return errors.Wrapf(ErrInvalidDescriptor, "tool %q arguments must be a struct, got %s", name, t.Kind())
	}

	sc, err := schema.New(t)
	if err != nil {
		return errors.Wrapf(ErrInvalidDescriptor, "tool %q: %s", name, err.Error())
	}

	desc := &ToolDescriptor{
		Name:        name,
		Description: description,
		Parameters:  ParametersFromSchema(sc.Parameters),
	}

	handler := func(ctx context.Context, args Arguments) (*ToolResult, error) {
		js, err := json.Marshal(args)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode arguments")
		}
		var v T
		if err = json.Unmarshal(js, &v); err != nil {
			return nil, errors.Wrap(err, "failed to decode arguments")
		}
		return fn(ctx, v)
	}

	return r.Register(desc, handler)
}
