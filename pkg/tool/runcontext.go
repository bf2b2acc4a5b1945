package tool

// RunContext carries caller-supplied data through a run. It is read-only:
// instruction builders, tool handlers, and approval predicates may inspect
// it, nothing mutates it.
type RunContext struct {
	values map[string]interface{}
}

// NewRunContext creates a run context from caller data. The map is copied so
// later caller mutations cannot leak into the run.
func NewRunContext(values map[string]interface{}) *RunContext {
	copied := make(map[string]interface{}, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &RunContext{values: copied}
}

// Value returns the raw value for a key
func (rc *RunContext) Value(key string) (interface{}, bool) {
	if rc == nil {
		return nil, false
	}
	v, ok := rc.values[key]
	return v, ok
}

// String returns the string value for a key, or "" when absent or not a string
func (rc *RunContext) String(key string) string {
	v, ok := rc.Value(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Int returns the integer value for a key, tolerating JSON-decoded numbers
func (rc *RunContext) Int(key string) int {
	v, ok := rc.Value(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
