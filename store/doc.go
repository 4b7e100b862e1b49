// Package store keeps the most recent successful outputs of every node,
// keyed by node id. Each entry maps output port names to payloads plus the
// reserved MetadataKey holding the node's outgoing metadata.
//
// Payloads that wrap native resources implement Releaser; the store
// releases them when an entry is overwritten, removed or cleared.
package store
