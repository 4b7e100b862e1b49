// Package units holds the built-in script units used by the CLI, the HTTP
// service and the tests. Register adds them to a script.Registry under
// their script type keys.
//
//	r := script.NewRegistry()
//	units.Register(r)
//	g, err := graph.Build(def, r)
package units
