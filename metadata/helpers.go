package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxProcessingRecords bounds AddProcessingRecord.
const MaxProcessingRecords = 100

// NewLineageID returns a fresh lineage identifier.
func NewLineageID() string {
	return uuid.NewString()
}

// Create returns a map stamped with a creation time and lineage id, followed
// by the given extra entries.
func Create(extra *Map) *Map {
	out := New()
	out.Set(KeyCreatedAt, time.Now().UTC().Format(time.RFC3339))
	out.Set(KeyLineageID, NewLineageID())
	extra.Each(func(k string, v any) { out.Set(k, v) })
	return out
}

// AddNodeToPath appends a node to the node path unless it is already there.
func AddNodeToPath(m *Map, nodeID int, title string) {
	path, _ := listValue(m, KeyNodePath)
	for _, e := range path {
		if entry, ok := e.(map[string]any); ok && fmt.Sprint(entry["node_id"]) == fmt.Sprint(nodeID) {
			return
		}
	}
	path = append(path, map[string]any{"node_id": nodeID, "title": title})
	if len(path) > DefaultMaxHistory {
		path = path[len(path)-DefaultMaxHistory:]
	}
	m.Set(KeyNodePath, path)
}

// AddProcessingRecord appends an operation record to the processing history.
func AddProcessingRecord(m *Map, operation string, details map[string]any) {
	history, _ := listValue(m, KeyProcessingHistory)
	record := map[string]any{"operation": operation}
	if len(details) > 0 {
		record["details"] = details
	}
	history = append(history, record)
	if len(history) > MaxProcessingRecords {
		history = history[len(history)-MaxProcessingRecords:]
	}
	m.Set(KeyProcessingHistory, history)
}

// ValidationResult reports structural problems in a metadata map.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate checks that well-known keys have the expected shape.
func Validate(m *Map) ValidationResult {
	res := ValidationResult{Valid: true}
	if m == nil {
		res.Valid = false
		res.Errors = append(res.Errors, "metadata is nil")
		return res
	}
	for _, k := range []string{KeyCreatedAt, KeyNodePath, KeyProcessingHistory} {
		if !m.Has(k) {
			res.Warnings = append(res.Warnings, "missing recommended key: "+k)
		}
	}
	for _, k := range []string{KeyNodePath, KeyProcessingHistory} {
		if _, ok := m.Get(k); !ok {
			continue
		}
		if _, ok := listValue(m, k); !ok {
			res.Valid = false
			res.Errors = append(res.Errors, k+" must be a list")
		}
	}
	return res
}

// Marshal serializes m to JSON; a nil map becomes "{}".
func Marshal(m *Map) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Unmarshal parses JSON into a new Map. Empty input yields an empty map.
func Unmarshal(data []byte) (*Map, error) {
	out := New()
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return out, nil
}

// listValue returns the entry under key as []any.
func listValue(m *Map, key string) ([]any, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, true
	}
	switch t := v.(type) {
	case []any:
		return append([]any(nil), t...), true
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, true
	}
	return nil, false
}
