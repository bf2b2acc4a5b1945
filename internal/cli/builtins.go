package cli

import (
	"context"
	"time"

	"github.com/harun/convoy/pkg/tool"
)

// builtinTools returns the local tools every deployment gets without writing
// code. Manifest entries reference them by name.
func builtinTools() map[string]tool.Definition {
	defs := []tool.Definition{
		{
			Name:        "current_time",
			Description: "Returns the current date and time in RFC 3339 format, optionally for a named IANA timezone.",
			Parameters: []tool.Parameter{
				{Name: "timezone", Type: "string", Description: "IANA timezone name, e.g. Europe/Oslo. Defaults to UTC."},
			},
			Handler: func(ctx context.Context, rc *tool.RunContext, params map[string]interface{}) (interface{}, error) {
				loc := time.UTC
				if tz, ok := params["timezone"].(string); ok && tz != "" {
					parsed, err := time.LoadLocation(tz)
					if err != nil {
						return nil, err
					}
					loc = parsed
				}
				return time.Now().In(loc).Format(time.RFC3339), nil
			},
		},
	}

	byName := make(map[string]tool.Definition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	return byName
}
