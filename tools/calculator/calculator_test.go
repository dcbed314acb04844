package calculator_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/tools/calculator"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r, err := calculator.NewRegistry()
	require.NoError(t, err)

	exp := []*mcp.ToolDescriptor{
		{
			Name:        "Add",
			Description: "Adds two numbers together.",
			Parameters: []mcp.ParameterSpec{
				{Name: "a", Description: "The first number to add", Type: mcp.ParamNumber, Required: true},
				{Name: "b", Description: "The second number to add", Type: mcp.ParamNumber, Required: true},
			},
		},
		{
			Name:        "Sub",
			Description: "Subtract 2nd number from 1st",
			Parameters: []mcp.ParameterSpec{
				{Name: "a", Description: "The first number", Type: mcp.ParamNumber, Required: true},
				{Name: "b", Description: "The second number", Type: mcp.ParamNumber, Required: true},
			},
		},
	}
	if diff := cmp.Diff(exp, r.List()); diff != "" {
		t.Errorf("descriptors mismatch (-want +got):\n%s", diff)
	}

	err = calculator.Register(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, mcp.ErrDuplicateTool)

	assert.Equal(t, mcp.Implementation{Name: "add", Version: "1.0"}, calculator.Implementation())
}

func TestInvoke(t *testing.T) {
	r, err := calculator.NewRegistry()
	require.NoError(t, err)
	ctx := context.Background()

	tcases := []struct {
		name string
		args map[string]any
		exp  string
	}{
		{name: "Add", args: map[string]any{"a": 10, "b": 10}, exp: "20"},
		{name: "Sub", args: map[string]any{"a": 10, "b": 3}, exp: "7"},
		{name: "Sub", args: map[string]any{"a": 1, "b": 0.5}, exp: "0.5"},
		{name: "Add", args: map[string]any{"a": -1.25, "b": 1}, exp: "-0.25"},
	}
	for _, tc := range tcases {
		res, err := mcp.Invoke(ctx, r, &mcp.InvocationRequest{Name: tc.name, Arguments: tc.args})
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.exp, res.Text(), tc.name)
	}

	_, err = mcp.Invoke(ctx, r, &mcp.InvocationRequest{Name: "Add", Arguments: map[string]any{"a": 10}})
	var ia *mcp.InvalidArgumentError
	require.ErrorAs(t, err, &ia)
	assert.Equal(t, "b", ia.Parameter)

	_, err = mcp.Invoke(ctx, r, &mcp.InvocationRequest{Name: "Mul", Arguments: map[string]any{"a": 2, "b": 3}})
	assert.ErrorIs(t, err, mcp.ErrNotFound)
}

func TestAddSubSymmetry(t *testing.T) {
	r, err := calculator.NewRegistry()
	require.NoError(t, err)
	ctx := context.Background()
	faker := gofakeit.New(42)

	for range 100 {
		a := float64(faker.IntRange(-1_000_000, 1_000_000))
		b := float64(faker.IntRange(-1_000_000, 1_000_000))
		args := map[string]any{"a": a, "b": b}

		sum, err := mcp.Invoke(ctx, r, &mcp.InvocationRequest{Name: "Add", Arguments: args})
		require.NoError(t, err)
		diff, err := mcp.Invoke(ctx, r, &mcp.InvocationRequest{Name: "Sub", Arguments: args})
		require.NoError(t, err)

		s, err := strconv.ParseFloat(sum.Text(), 64)
		require.NoError(t, err)
		d, err := strconv.ParseFloat(diff.Text(), 64)
		require.NoError(t, err)
		assert.Equal(t, 2*a, s+d, "a=%v b=%v", a, b)
	}
}
