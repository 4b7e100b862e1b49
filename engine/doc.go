// Package engine runs passes over a node graph.
//
// A pass schedules the graph (see package scheduler), then invokes each
// scheduled node's unit strictly one at a time: inputs are bound from the
// output store, upstream metadata is merged and run through the metadata
// pipeline, and the unit's outputs are written back to the store together
// with the node's outgoing metadata. A failing node is flagged and its
// store entry removed; the rest of the pass carries on.
//
// At most one pass runs per Engine. A concurrent RunPass returns a Busy
// error immediately instead of queueing.
//
//	eng := engine.New(engine.WithLogger(log))
//	res := eng.RunPass(ctx, g, engine.Environment{GraphName: "demo"}, nil)
//	if res.Err != nil { ... }
//	out, _ := eng.NodeOutput(3)
package engine
