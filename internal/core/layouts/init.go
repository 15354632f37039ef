// Package layouts registers the built-in bank layout rules with the core
// registry. Import it for side effects.
//
// Priorities leave gaps so operator rules loaded from YAML can slot in
// before or between the built-ins.
package layouts

import "github.com/JonMunkholm/stmtnorm/internal/core"

// Priority bands.
const (
	PriorityBank         = 50
	PriorityRegional     = 100
	PriorityGenericSplit = 200
	PriorityGenericAmt   = 300
)

func col(f core.Field, required, fuzzy bool, patterns ...string) core.ColumnPattern {
	return core.ColumnPattern{Field: f, Patterns: patterns, Required: required, Fuzzy: fuzzy}
}
