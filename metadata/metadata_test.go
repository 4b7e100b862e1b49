package metadata

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

// --- Map tests ---

func TestMap_PreservesInsertionOrder(t *testing.T) {
	m := New()
	m.Set("z", 1)
	m.Set("a", 2)
	m.Set("m", 3)
	m.Set("z", 4)

	if got := m.Keys(); !slices.Equal(got, []string{"z", "a", "m"}) {
		t.Fatalf("unexpected order %v", got)
	}
	if v, _ := m.Get("z"); v != 4 {
		t.Errorf("expected overwrite to update value, got %v", v)
	}
}

func TestMap_NilReadsAsEmpty(t *testing.T) {
	var m *Map
	if m.Len() != 0 || m.Has("x") || m.Keys() != nil {
		t.Fatal("nil map should read as empty")
	}
	if m.Clone().Len() != 0 {
		t.Fatal("clone of nil should be empty")
	}
}

func TestMap_SetIfAbsent(t *testing.T) {
	m := FromPairs("a", 1)
	if m.SetIfAbsent("a", 2) {
		t.Error("expected existing key to be kept")
	}
	if !m.SetIfAbsent("b", 3) {
		t.Error("expected new key to be inserted")
	}
	if v, _ := m.Get("a"); v != 1 {
		t.Errorf("expected a=1, got %v", v)
	}
}

func TestMap_CloneIsDeep(t *testing.T) {
	m := FromPairs("list", []any{1, 2}, "nested", map[string]any{"k": "v"})
	c := m.Clone()
	c.Set("extra", true)
	list, _ := c.Get("list")
	list.([]any)[0] = 99
	nested, _ := c.Get("nested")
	nested.(map[string]any)["k"] = "changed"

	orig, _ := m.Get("list")
	if orig.([]any)[0] != 1 {
		t.Error("clone shares list storage")
	}
	origNested, _ := m.Get("nested")
	if origNested.(map[string]any)["k"] != "v" {
		t.Error("clone shares nested map")
	}
	if m.Has("extra") {
		t.Error("clone shares keys")
	}
}

func TestMap_JSONRoundTripKeepsOrder(t *testing.T) {
	m := FromPairs("zeta", 1, "alpha", "two", "mid", []any{"x"})
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"zeta":1,"alpha":"two","mid":["x"]}` {
		t.Fatalf("unexpected json %s", data)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !slices.Equal(back.Keys(), []string{"zeta", "alpha", "mid"}) {
		t.Errorf("unexpected key order %v", back.Keys())
	}
}

func TestUnmarshal_RejectsNonObject(t *testing.T) {
	if _, err := Unmarshal([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for array input")
	}
	m, err := Unmarshal(nil)
	if err != nil || m.Len() != 0 {
		t.Fatalf("expected empty map for empty input, got %v %v", m, err)
	}
}

// --- Clean tests ---

func TestClean_DropsNilValues(t *testing.T) {
	var ptr *int
	m := FromPairs("a", nil, "b", 1, "c", ptr)
	out := Clean(m, DefaultOptions())
	if !slices.Equal(out.Keys(), []string{"b"}) {
		t.Fatalf("expected only b to survive, got %v", out.Keys())
	}
}

func TestClean_CapsHistoryKeepingNewest(t *testing.T) {
	history := make([]any, 60)
	for i := range history {
		history[i] = i
	}
	out := Clean(FromPairs(KeyProcessingHistory, history), DefaultOptions())
	v, _ := out.Get(KeyProcessingHistory)
	got := v.([]any)
	if len(got) != DefaultMaxHistory {
		t.Fatalf("expected %d entries, got %d", DefaultMaxHistory, len(got))
	}
	if got[0] != 10 || got[len(got)-1] != 59 {
		t.Errorf("expected newest entries 10..59, got %v..%v", got[0], got[len(got)-1])
	}
}

func TestClean_MergesDuplicateKeys(t *testing.T) {
	m := FromPairs("Tags", []any{"a"}, "tags", []any{"b"}, "Name", "x", "NAME", "y")
	out := Clean(m, DefaultOptions())
	if !slices.Equal(out.Keys(), []string{"Tags", "Name"}) {
		t.Fatalf("unexpected keys %v", out.Keys())
	}
	tags, _ := out.Get("Tags")
	if !slices.Equal(tags.([]any), []any{"a", "b"}) {
		t.Errorf("expected concatenated tags, got %v", tags)
	}
	name, _ := out.Get("Name")
	if name != "x" {
		t.Errorf("expected first spelling to win, got %v", name)
	}
}

func TestClean_DedupNodePath(t *testing.T) {
	path := []any{
		map[string]any{"node_id": 1, "title": "A"},
		map[string]any{"node_id": 1, "title": "A"},
		map[string]any{"node_id": 2, "title": "B"},
	}
	opts := DefaultOptions()
	opts.DedupNodePath = true
	out := Clean(FromPairs(KeyNodePath, path), opts)
	v, _ := out.Get(KeyNodePath)
	if len(v.([]any)) != 2 {
		t.Fatalf("expected 2 path entries, got %v", v)
	}
}

func TestClean_TimestampExpiry(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.TimestampExpiry = time.Hour
	opts.now = func() time.Time { return now }
	m := FromPairs(
		"old_at", now.Add(-2*time.Hour).Format(time.RFC3339),
		"fresh_at", now.Add(-time.Minute).Format(time.RFC3339),
	)
	out := Clean(m, opts)
	if out.Has("old_at") || !out.Has("fresh_at") {
		t.Fatalf("unexpected keys after expiry %v", out.Keys())
	}
}

func TestClean_Idempotent(t *testing.T) {
	history := make([]any, 75)
	for i := range history {
		history[i] = map[string]any{"operation": i}
	}
	m := FromPairs("A", []any{1}, "a", []any{2}, "gone", nil, KeyProcessingHistory, history)
	once := Clean(m, DefaultOptions())
	twice := Clean(once, DefaultOptions())
	if !once.Equal(twice) {
		t.Fatalf("clean is not idempotent:\n%s\n%s", once, twice)
	}
}

// --- Pipeline tests ---

type recordingUnit struct {
	extracted *Map
	inject    *Map
	generate  func(*Map) *Map
}

func (u *recordingUnit) ExtractMetadata(upstream *Map) { u.extracted = upstream }
func (u *recordingUnit) InjectMetadata(current *Map) *Map {
	if u.inject == nil {
		return current
	}
	return u.inject
}
func (u *recordingUnit) GenerateMetadata(current *Map) *Map {
	if u.generate == nil {
		return current
	}
	return u.generate(current)
}

func TestPipeline_MergeLaterWins(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	out := p.Merge(FromPairs("a", 1, "b", 1), nil, FromPairs("b", 2, "c", 3))
	if !slices.Equal(out.Keys(), []string{"a", "b", "c"}) {
		t.Fatalf("unexpected keys %v", out.Keys())
	}
	if v, _ := out.Get("b"); v != 2 {
		t.Errorf("expected later value to win, got %v", v)
	}
}

func TestPipeline_InjectNeverOverwrites(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	unit := &recordingUnit{inject: FromPairs("source", "unit", "new", true)}
	out := p.Inject(unit, FromPairs("source", "camera"))
	if v, _ := out.Get("source"); v != "camera" {
		t.Errorf("inject overwrote existing key: %v", v)
	}
	if !out.Has("new") {
		t.Error("inject should add absent keys")
	}
}

func TestPipeline_GenerateOverwrites(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	unit := &recordingUnit{generate: func(m *Map) *Map {
		m.Set("source", "generated")
		return m
	}}
	out := p.Generate(unit, FromPairs("source", "camera"))
	if v, _ := out.Get("source"); v != "generated" {
		t.Errorf("expected generate to overwrite, got %v", v)
	}
}

func TestPipeline_ExtractReceivesCopy(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	unit := &recordingUnit{}
	upstream := FromPairs("a", 1)
	p.Extract(unit, upstream)
	unit.extracted.Set("a", 2)
	if v, _ := upstream.Get("a"); v != 1 {
		t.Error("extract should not expose the upstream map")
	}
}

func TestPipeline_OutgoingFormula(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	unit := &recordingUnit{
		inject: FromPairs("injected", 1, "keep", "overwritten?"),
		generate: func(m *Map) *Map {
			m.Set("generated", nil)
			m.Set("stage", "done")
			return m
		},
	}
	upstream := FromPairs("keep", "upstream", "drop", nil)

	got := p.Outgoing(unit, upstream, FromPairs(KeyGraphName, "g"))
	want := p.Clean(p.Generate(unit, p.Inject(unit, p.Clean(upstream))))
	if !got.Equal(want) {
		t.Fatalf("outgoing mismatch:\n got %s\nwant %s", got, want)
	}
	if got.Has(KeyGraphName) {
		t.Error("stamp must not apply when stamping is off")
	}
	if v, _ := got.Get("keep"); v != "upstream" {
		t.Errorf("expected upstream value kept, got %v", v)
	}
	if got.Has("generated") || got.Has("drop") {
		t.Error("nil values should be cleaned")
	}
}

func TestPipeline_OutgoingStamp(t *testing.T) {
	opts := DefaultOptions()
	opts.StampEnvironment = true
	p := NewPipeline(opts)
	got := p.Outgoing(&recordingUnit{}, New(), FromPairs(KeyGraphName, "g", KeyIndex, 3))
	if v, _ := got.Get(KeyIndex); v != 3 {
		t.Errorf("expected stamped index, got %v", v)
	}
}

// --- Helper tests ---

func TestAddNodeToPath(t *testing.T) {
	m := New()
	AddNodeToPath(m, 1, "Load")
	AddNodeToPath(m, 2, "Blur")
	AddNodeToPath(m, 1, "Load")
	v, _ := m.Get(KeyNodePath)
	if len(v.([]any)) != 2 {
		t.Fatalf("expected 2 entries, got %v", v)
	}
	for i := 3; i < 60; i++ {
		AddNodeToPath(m, i, "n")
	}
	v, _ = m.Get(KeyNodePath)
	if len(v.([]any)) != DefaultMaxHistory {
		t.Errorf("expected path capped at %d, got %d", DefaultMaxHistory, len(v.([]any)))
	}
}

func TestAddProcessingRecord(t *testing.T) {
	m := New()
	for i := 0; i < MaxProcessingRecords+5; i++ {
		AddProcessingRecord(m, "blur", map[string]any{"i": i})
	}
	v, _ := m.Get(KeyProcessingHistory)
	records := v.([]any)
	if len(records) != MaxProcessingRecords {
		t.Fatalf("expected %d records, got %d", MaxProcessingRecords, len(records))
	}
	last := records[len(records)-1].(map[string]any)
	if last["details"].(map[string]any)["i"] != MaxProcessingRecords+4 {
		t.Errorf("expected newest record last, got %v", last)
	}
}

func TestValidate(t *testing.T) {
	if Validate(nil).Valid {
		t.Error("nil metadata should be invalid")
	}
	res := Validate(FromPairs(KeyNodePath, "not-a-list"))
	if res.Valid {
		t.Error("expected invalid node path")
	}
	if len(res.Warnings) == 0 {
		t.Error("expected missing-key warnings")
	}
	good := Create(nil)
	AddNodeToPath(good, 1, "A")
	AddProcessingRecord(good, "load", nil)
	if res := Validate(good); !res.Valid || len(res.Warnings) != 0 {
		t.Errorf("expected clean result, got %+v", res)
	}
}

func TestCreate_HasLineage(t *testing.T) {
	a := Create(FromPairs("x", 1))
	b := Create(nil)
	la, _ := a.GetString(KeyLineageID)
	lb, _ := b.GetString(KeyLineageID)
	if la == "" || la == lb {
		t.Errorf("expected distinct lineage ids, got %q and %q", la, lb)
	}
	if !a.Has("x") {
		t.Error("expected extra entries")
	}
}
