// Package metadata implements the side-channel key/value map that travels
// alongside node outputs, and the pipeline that derives each node's outgoing
// metadata from its upstream metadata:
//
//	outgoing = clean(generate(inject(clean(merge(upstream...)))))
//
// Maps preserve insertion order so serialized metadata is stable across
// runs.
package metadata
