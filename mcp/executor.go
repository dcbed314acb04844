package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Invoke validates the request against the registry and runs the tool
func Invoke(ctx context.Context, registry *Registry, req *InvocationRequest) (*ToolResult, error) {
	return NewExecutor(registry).Invoke(ctx, req)
}

// Executor validates invocation requests and runs tool handlers.
// Nothing is retried.
type Executor struct {
	registry *Registry
}

const unknownTool = "unknown"

// NewExecutor returns an executor over the registry
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
	}
}

// Invoke runs a single invocation request
func (e *Executor) Invoke(ctx context.Context, req *InvocationRequest) (result *ToolResult, err error) {
	if req == nil {
		return nil, errors.Wrap(ErrInternal, "nil request")
	}

	started := time.Now()
	// names of unregistered tools are not used as tags
	tag := unknownTool
	defer func() {
		status := "ok"
		if err != nil {
			status = string(CodeOf(err))
		}
		metricskey.StatsToolInvocations.IncrCounter(1, tag, status)
		metricskey.PerfToolInvocation.MeasureSince(started, tag)
	}()

	if ctx.Err() != nil {
		return nil, errors.Wrapf(ErrCancelled, "tool %q", req.Name)
	}

	desc, handler, err := e.registry.Get(req.Name)
	if err != nil {
		return nil, err
	}
	tag = desc.Name

	args, err := ValidateArguments(desc, req.Arguments)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "tool", req.Name, "invalid", err.Error())
		return nil, err
	}

	return call(ctx, desc.Name, handler, args)
}

func call(ctx context.Context, name string, handler ToolHandler, args Arguments) (result *ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"tool", name,
				"panic", r,
				"stack", slices.StringUpto(string(debug.Stack()), 2048))
			result = nil
			err = errors.Wrapf(ErrInternal, "tool %q panicked: %v", name, r)
		}
	}()

	result, err = handler(ctx, args)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrCancelled) {
			return nil, errors.Wrapf(ErrCancelled, "tool %q", name)
		}
		logger.ContextKV(ctx, xlog.DEBUG, "tool", name, "err", err.Error())
		return nil, &HandlerError{Tool: name, Cause: err}
	}
	if result == nil || len(result.Content) == 0 {
		return nil, errors.Wrapf(ErrInternal, "tool %q returned an empty result", name)
	}
	if ctx.Err() != nil {
		return nil, errors.Wrapf(ErrCancelled, "tool %q", name)
	}
	return result, nil
}

// ValidateArguments checks the raw arguments against the descriptor and
// returns them coerced to the declared types.
// Parameters are checked in declaration order, then unknown keys in
// sorted order; the first violation is returned as *InvalidArgumentError.
func ValidateArguments(desc *ToolDescriptor, raw map[string]any) (Arguments, error) {
	args := make(Arguments, len(raw))
	for _, p := range desc.Parameters {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, &InvalidArgumentError{
					Parameter: p.Name,
					Reason:    "required parameter is missing",
				}
			}
			continue
		}
		cv, reason := coerce(p.Type, v)
		if reason != "" {
			return nil, &InvalidArgumentError{
				Parameter: p.Name,
				Reason:    reason,
			}
		}
		args[p.Name] = cv
	}

	var unknown []string
	for k := range raw {
		if _, ok := desc.Parameter(k); !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &InvalidArgumentError{
			Parameter: unknown[0],
			Reason:    "unknown parameter",
		}
	}
	return args, nil
}

// coerce returns the value converted to the declared type,
// or a non-empty reason if it does not conform
func coerce(t ParamType, v any) (any, string) {
	switch t {
	case ParamNumber:
		if f, ok := toFloat(v); ok {
			return f, ""
		}
	case ParamInteger:
		switch n := v.(type) {
		case int:
			return int64(n), ""
		case int64:
			return n, ""
		case uint64:
			if n > math.MaxInt64 {
				return nil, fmt.Sprintf("integer out of range: %v", v)
			}
			return int64(n), ""
		}
		if f, ok := toFloat(v); ok {
			if f != math.Trunc(f) || math.IsInf(f, 0) {
				return nil, fmt.Sprintf("expected integer, got %v", v)
			}
			// float64(math.MaxInt64) rounds up to 2^63
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, fmt.Sprintf("integer out of range: %v", v)
			}
			return int64(f), ""
		}
	case ParamString:
		if s, ok := v.(string); ok {
			return s, ""
		}
	case ParamBoolean:
		if b, ok := v.(bool); ok {
			return b, ""
		}
	case ParamObject:
		if m, ok := v.(map[string]any); ok {
			return m, ""
		}
	case ParamArray:
		if a, ok := v.([]any); ok {
			return a, ""
		}
	case "":
		return v, ""
	default:
		return nil, fmt.Sprintf("unsupported parameter type %q", t)
	}
	return nil, fmt.Sprintf("expected %s, got %s", t, jsonTypeOf(v))
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func jsonTypeOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
