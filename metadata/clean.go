package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Well-known metadata keys.
const (
	KeyNodePath          = "node_path"
	KeyProcessingHistory = "processing_history"
	KeyLineageID         = "lineage_id"
	KeyCreatedAt         = "created_at"
	KeyGraphName         = "graph_name"
	KeyIndex             = "index"
)

// DefaultMaxHistory bounds every history-style list.
const DefaultMaxHistory = 50

// Options controls cleaning.
type Options struct {
	// MaxHistory caps each history list; the oldest entries are dropped.
	MaxHistory int `yaml:"max_history" mapstructure:"max_history" validate:"gte=1"`
	// HistoryKeys names the list-valued keys that are capped.
	HistoryKeys []string `yaml:"history_keys" mapstructure:"history_keys"`
	// DedupNodePath removes repeated node entries from the node path.
	DedupNodePath bool `yaml:"dedup_node_path" mapstructure:"dedup_node_path"`
	// MergeDuplicateKeys folds keys that differ only by case into the first one.
	MergeDuplicateKeys bool `yaml:"merge_duplicate_keys" mapstructure:"merge_duplicate_keys"`
	// TimestampExpiry drops "*_at" keys older than this; zero disables it.
	TimestampExpiry time.Duration `yaml:"timestamp_expiry" mapstructure:"timestamp_expiry"`
	// StampEnvironment writes graph name and index after the generate step.
	StampEnvironment bool `yaml:"stamp_environment" mapstructure:"stamp_environment"`

	now func() time.Time
}

// DefaultOptions returns the cleaning options used by the engine.
func DefaultOptions() Options {
	return Options{
		MaxHistory:         DefaultMaxHistory,
		HistoryKeys:        []string{KeyProcessingHistory, KeyNodePath},
		MergeDuplicateKeys: true,
	}
}

// ApplyDefaults fills zero values.
func (o *Options) ApplyDefaults() {
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
	if o.HistoryKeys == nil {
		o.HistoryKeys = []string{KeyProcessingHistory, KeyNodePath}
	}
}

func (o Options) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Clean returns a cleaned copy of m. Cleaning is idempotent.
func Clean(m *Map, opts Options) *Map {
	opts.ApplyDefaults()
	out := New()
	if opts.MergeDuplicateKeys {
		mergeDuplicateKeys(m, out)
	} else {
		m.Each(func(k string, v any) { out.Set(k, cloneValue(v)) })
	}

	for _, k := range out.Keys() {
		v, _ := out.Get(k)
		if isNil(v) {
			out.Delete(k)
		}
	}

	if opts.TimestampExpiry > 0 {
		cutoff := opts.clock().Add(-opts.TimestampExpiry)
		for _, k := range out.Keys() {
			if !strings.HasSuffix(k, "_at") {
				continue
			}
			s, ok := out.GetString(k)
			if !ok {
				continue
			}
			if ts, err := time.Parse(time.RFC3339, s); err == nil && ts.Before(cutoff) {
				out.Delete(k)
			}
		}
	}

	if opts.DedupNodePath {
		if v, ok := out.Get(KeyNodePath); ok {
			out.Set(KeyNodePath, dedupNodePath(v))
		}
	}

	for _, k := range opts.HistoryKeys {
		if v, ok := out.Get(k); ok {
			out.Set(k, capList(v, opts.MaxHistory))
		}
	}
	return out
}

// mergeDuplicateKeys copies src into dst folding case-insensitive duplicates
// into the first spelling; list values are concatenated.
func mergeDuplicateKeys(src, dst *Map) {
	canonical := make(map[string]string)
	src.Each(func(k string, v any) {
		lower := strings.ToLower(k)
		first, seen := canonical[lower]
		if !seen {
			canonical[lower] = k
			dst.Set(k, cloneValue(v))
			return
		}
		existing, _ := dst.Get(first)
		a, aok := existing.([]any)
		b, bok := v.([]any)
		if aok && bok {
			merged := make([]any, 0, len(a)+len(b))
			merged = append(merged, a...)
			merged = append(merged, cloneValue(b).([]any)...)
			dst.Set(first, merged)
		}
	})
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// capList keeps the newest max entries of a slice value.
func capList(v any, max int) any {
	switch t := v.(type) {
	case []any:
		if len(t) > max {
			return t[len(t)-max:]
		}
		return t
	case []map[string]any:
		if len(t) > max {
			return t[len(t)-max:]
		}
		return t
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() > max {
		return rv.Slice(rv.Len()-max, rv.Len()).Interface()
	}
	return v
}

func dedupNodePath(v any) any {
	entries, ok := v.([]any)
	if !ok {
		return v
	}
	seen := make(map[string]bool, len(entries))
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			out = append(out, e)
			continue
		}
		key := fmt.Sprintf("%v_%v", entry["node_id"], entry["title"])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
