package store

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/metadata"
)

// MetadataKey is the reserved entry key holding a node's outgoing metadata.
const MetadataKey = "_metadata"

// Releaser is implemented by payloads that own native resources.
type Releaser interface {
	Release() error
}

// Cloner is implemented by payloads that must not be shared between
// consumers; each consumer receives its own clone.
type Cloner interface {
	Clone() any
}

// Store is a thread-safe map from node id to that node's outputs.
type Store struct {
	mu      sync.RWMutex
	entries map[graph.NodeID]graph.Values
	log     *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report release failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[graph.NodeID]graph.Values),
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put replaces id's entry. Releasable values of the previous entry that
// are not carried into the new one are released.
func (s *Store) Put(id graph.NodeID, outputs graph.Values) {
	entry := outputs.Clone()
	if entry == nil {
		entry = graph.Values{}
	}
	s.mu.Lock()
	old := s.entries[id]
	s.entries[id] = entry
	s.mu.Unlock()
	s.release(id, old, entry)
}

// Remove deletes id's entry, releasing its resources.
func (s *Store) Remove(id graph.NodeID) bool {
	s.mu.Lock()
	old, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	s.release(id, old, nil)
	return ok
}

// Clear deletes every entry, releasing their resources.
func (s *Store) Clear() {
	s.mu.Lock()
	old := s.entries
	s.entries = make(map[graph.NodeID]graph.Values)
	s.mu.Unlock()
	for id, entry := range old {
		s.release(id, entry, nil)
	}
}

// Close releases every entry.
func (s *Store) Close() error {
	s.Clear()
	return nil
}

// Has reports whether id has an entry.
func (s *Store) Has(id graph.NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Get returns a copy of id's entry including the metadata key.
func (s *Store) Get(id graph.NodeID) (graph.Values, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	return entry.Clone(), ok
}

// Outputs returns id's entry without the metadata key.
func (s *Store) Outputs(id graph.NodeID) (graph.Values, bool) {
	entry, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	delete(entry, MetadataKey)
	return entry, true
}

// Value returns a single output port value.
func (s *Store) Value(id graph.NodeID, port string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	v, ok := entry[port]
	return v, ok
}

// Metadata returns a copy of id's outgoing metadata.
func (s *Store) Metadata(id graph.NodeID) (*metadata.Map, bool) {
	raw, ok := s.Value(id, MetadataKey)
	if !ok {
		return nil, false
	}
	m, ok := raw.(*metadata.Map)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Payload pairs an output value with the metadata of the node that made it.
type Payload struct {
	Value    any           `json:"value"`
	Metadata *metadata.Map `json:"metadata"`
}

// Payload returns a port's value together with its node's metadata. All
// ports of a node report the same metadata.
func (s *Store) Payload(id graph.NodeID, port string) (Payload, bool) {
	v, ok := s.Value(id, port)
	if !ok || port == MetadataKey {
		return Payload{}, false
	}
	md, _ := s.Metadata(id)
	return Payload{Value: v, Metadata: md}, true
}

// IDs returns the ids with entries, sorted.
func (s *Store) IDs() []graph.NodeID {
	s.mu.RLock()
	ids := make([]graph.NodeID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Read retrieves a typed output value.
func Read[T any](s *Store, id graph.NodeID, port string) (T, error) {
	var zero T
	raw, ok := s.Value(id, port)
	if !ok {
		return zero, errors.NotFound("output", fmt.Sprintf("%d.%s", id, port))
	}
	val, ok := raw.(T)
	if !ok {
		return zero, errors.InvalidInput(port, fmt.Sprintf("output %d.%s: expected %T, got %T", id, port, zero, raw))
	}
	return val, nil
}

func (s *Store) release(id graph.NodeID, old, kept graph.Values) {
	for port, v := range old {
		r, ok := v.(Releaser)
		if !ok || Retains(kept, v) {
			continue
		}
		if err := r.Release(); err != nil {
			s.log.Warn("releasing output failed", logger.Fields(
				logger.FieldNodeID, int(id),
				"port", port,
				logger.FieldError, err.Error(),
			))
		}
	}
}

// Retains reports whether values holds v itself (not merely an equal copy).
func Retains(values graph.Values, v any) bool {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}
	for _, other := range values {
		if other != nil && reflect.TypeOf(other) == reflect.TypeOf(v) && other == v {
			return true
		}
	}
	return false
}
