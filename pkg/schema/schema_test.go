package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/schema"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addArgs struct {
	A float64 `json:"a" jsonschema:"description=The first number to add"`
	B float64 `json:"b" jsonschema:"description=The second number to add"`
}

// KVPair represents a key-value pair.
type KVPair struct {
	Key   string `json:"key" jsonschema:"title=Key,description=Key of the pair"`
	Value string `json:"value" jsonschema:"title=Value,description=Value of the pair"`
}

type searchArgs struct {
	Query string    `json:"query" jsonschema:"description=Query to search for"`
	Limit int       `json:"limit,omitempty" jsonschema:"description=Max results"`
	Args  []*KVPair `json:"args,omitempty"`
	Prov  *KVPair   `json:"prov,omitempty"`
}

func TestSchema(t *testing.T) {
	t.Parallel()

	t.Run("Add", func(t *testing.T) {
		t.Parallel()
		s, err := schema.New(reflect.TypeOf(addArgs{}))
		require.NoError(t, err)

		exp := `{
	"properties": {
		"a": {
			"type": "number",
			"description": "The first number to add"
		},
		"b": {
			"type": "number",
			"description": "The second number to add"
		}
	},
	"type": "object",
	"required": [
		"a",
		"b"
	]
}`
		assert.Equal(t, exp, s.String())

		var sc jsonschema.Schema
		require.NoError(t, json.Unmarshal([]byte(exp), &sc))
		assert.Equal(t, 2, sc.Properties.Len())
		assert.Equal(t, "a", sc.Properties.Oldest().Key)
	})

	t.Run("Nested", func(t *testing.T) {
		t.Parallel()
		s, err := schema.New(reflect.TypeOf(searchArgs{}))
		require.NoError(t, err)

		props := s.Parameters.Properties
		require.NotNil(t, props)
		assert.Equal(t, 4, props.Len())
		assert.Equal(t, []string{"query"}, s.Parameters.Required)

		limit, ok := props.Get("limit")
		require.True(t, ok)
		assert.Equal(t, "integer", limit.Type)

		args, ok := props.Get("args")
		require.True(t, ok)
		assert.Equal(t, "array", args.Type)
		require.NotNil(t, args.Items)
		assert.Empty(t, args.Items.Ref)

		prov, ok := props.Get("prov")
		require.True(t, ok)
		assert.Empty(t, prov.Ref)
	})

	t.Run("Cached", func(t *testing.T) {
		t.Parallel()
		s1, err := schema.New(reflect.TypeOf(addArgs{}))
		require.NoError(t, err)
		s2, err := schema.New(reflect.TypeOf(addArgs{}))
		require.NoError(t, err)
		assert.Same(t, s1, s2)
	})
}

func TestToFunctionSchema_MissingDefinition(t *testing.T) {
	sc := &jsonschema.Schema{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "object",
		"properties": {
			"item": {"$ref": "#/$defs/Missing"}
		}
	}`), sc))

	_, err := schema.ToFunctionSchema(sc)
	assert.EqualError(t, err, "property \"item\": definition not found: #/$defs/Missing")
}
