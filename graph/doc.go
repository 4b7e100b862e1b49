// Package graph models a node graph: an index-based node table, ordered
// typed ports, and connections expressed as (node id, port name) pairs.
//
// A connection endpoint may refer to a node that no longer exists; such a
// dangling reference simply supplies no data. Each node carries the
// processing flags the engine maintains (NeedsProcessing, IsProcessed,
// HasError) and is bound to a Unit that implements its transform.
package graph
