// Package scheduler orders graph nodes for execution.
//
// Ordering is layered Kahn: nodes without inputs first, then the nodes
// they unblock, and so on. Cycles do not stop ordering; when a layer
// unblocks nothing, the first unemitted node in graph order is seeded.
// Every node appears exactly once. In selective mode only the targets and
// their transitive upstream nodes are ordered.
package scheduler
