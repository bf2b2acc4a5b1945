package capability

// ToolFilter restricts which of a server's tools are exposed. It is applied
// once when the catalogue is fetched, not per call.
type ToolFilter struct {
	Allow []string `json:"allow"` // empty means allow all not denied
	Deny  []string `json:"deny"`  // overrides allow
}

// Allows reports whether a tool name passes the filter
func (f *ToolFilter) Allows(name string) bool {
	if f == nil {
		return true
	}

	for _, denied := range f.Deny {
		if denied == name || denied == "*" {
			return false
		}
	}

	if len(f.Allow) == 0 {
		return true
	}
	for _, allowed := range f.Allow {
		if allowed == name || allowed == "*" {
			return true
		}
	}
	return false
}
