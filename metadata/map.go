package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Map is an insertion-ordered string-keyed map. A nil *Map reads as empty.
type Map struct {
	m *linkedhashmap.Map
}

// New creates an empty Map.
func New() *Map {
	return &Map{m: linkedhashmap.New()}
}

// FromMap builds a Map from a plain map; keys are inserted in sorted order.
func FromMap(src map[string]any) *Map {
	out := New()
	for _, k := range slices.Sorted(maps.Keys(src)) {
		out.Set(k, src[k])
	}
	return out
}

// FromPairs builds a Map from alternating key/value arguments.
func FromPairs(kvs ...any) *Map {
	out := New()
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			out.Set(key, kvs[i+1])
		}
	}
	return out
}

// Set stores value under key. Existing keys keep their position.
func (m *Map) Set(key string, value any) {
	m.m.Put(key, value)
}

// SetIfAbsent stores value only when key is not present.
func (m *Map) SetIfAbsent(key string, value any) bool {
	if _, found := m.m.Get(key); found {
		return false
	}
	m.m.Put(key, value)
	return true
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	return m.m.Get(key)
}

// GetString returns the value under key when it is a string.
func (m *Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key.
func (m *Map) Delete(key string) {
	m.m.Remove(key)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return m.m.Size()
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, m.m.Size())
	it := m.m.Iterator()
	for it.Next() {
		keys = append(keys, it.Key().(string))
	}
	return keys
}

// Each calls fn for every entry in insertion order.
func (m *Map) Each(fn func(key string, value any)) {
	if m == nil {
		return
	}
	it := m.m.Iterator()
	for it.Next() {
		fn(it.Key().(string), it.Value())
	}
}

// Clone returns a copy whose slices and nested maps are copied too.
func (m *Map) Clone() *Map {
	out := New()
	m.Each(func(k string, v any) {
		out.Set(k, cloneValue(v))
	})
	return out
}

// ToMap returns a plain map copy.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, m.Len())
	m.Each(func(k string, v any) {
		out[k] = cloneValue(v)
	})
	return out
}

// Equal reports whether both maps hold the same keys in the same order with
// equal values.
func (m *Map) Equal(other *Map) bool {
	if !slices.Equal(m.Keys(), other.Keys()) {
		return false
	}
	a, err := json.Marshal(m)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// String renders the map as JSON.
func (m *Map) String() string {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("metadata(%d keys)", m.Len())
	}
	return string(b)
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	m.Each(func(k string, v any) {
		if err != nil {
			return
		}
		var kb, vb []byte
		if kb, err = json.Marshal(k); err != nil {
			return
		}
		if vb, err = json.Marshal(v); err != nil {
			err = fmt.Errorf("metadata key %q: %w", k, err)
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the top-level key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata: expected JSON object")
	}
	fresh := linkedhashmap.New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("metadata: expected string key")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("metadata key %q: %w", key, err)
		}
		fresh.Put(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	m.m = fresh
	return nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item).(map[string]any)
		}
		return out
	case []string:
		return slices.Clone(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case *Map:
		return t.Clone()
	default:
		return v
	}
}
