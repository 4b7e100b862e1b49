// Package validation checks configuration and graph definitions.
//
// Struct tag validation (go-playground/validator) covers declarative
// constraints; the Validator collector gathers structural problems found
// while walking a graph so they can be reported together.
//
//	v := validation.New()
//	v.Custom(len(nodes) > 0, "nodes", "at least one node is required")
//	if err := v.Validate(); err != nil { ... }
package validation
