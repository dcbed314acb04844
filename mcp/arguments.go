package mcp

// Arguments are the validated and coerced arguments passed to a ToolHandler.
// Values of `number` parameters are float64, `integer` are int64,
// `object` are map[string]any and `array` are []any.
type Arguments map[string]any

// Has returns true if the argument is present
func (a Arguments) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Float returns a number argument, or 0 if missing
func (a Arguments) Float(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Int returns an integer argument, or 0 if missing
func (a Arguments) Int(name string) int64 {
	switch v := a[name].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// String returns a string argument, or empty string if missing
func (a Arguments) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Bool returns a boolean argument, or false if missing
func (a Arguments) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}
