package quarry

// filter_policy_test.go implements tests for filter policies and their
// containment guarantees.

import (
	"fmt"
	"testing"
)

// TestFilterPolicy_Contract_NoFalseNegatives verifies that every added key
// probes as present in the built filter.
func TestFilterPolicy_Contract_NoFalseNegatives(t *testing.T) {
	p := NewBloomFilterPolicy(10)

	keys := make([][]byte, 500)
	for i := range keys {
		keys[i] = fmt.Appendf(nil, "user%05d", i)
	}
	f := p.CreateFilter(keys)
	if len(f) == 0 {
		t.Fatal("CreateFilter returned an empty filter")
	}

	for _, key := range keys {
		if !p.KeyMayMatch(key, f) {
			t.Fatalf("added key %q probes as absent", key)
		}
	}
}

// TestFilterPolicy_Contract_ReadsWithFilterConfigured verifies end to end
// that reads through a Bloom-filtered table find every stored key.
func TestFilterPolicy_Contract_ReadsWithFilterConfigured(t *testing.T) {
	opts := DefaultOptions()
	opts.FilterPolicy = NewBloomFilterPolicy(10)
	db := newTestDB(t, opts)

	for i := 0; i < 200; i++ {
		key := fmt.Appendf(nil, "key%04d", i)
		if err := db.Put(key, fmt.Appendf(nil, "value%04d", i), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := db.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		key := fmt.Appendf(nil, "key%04d", i)
		got, err := db.Get(key, nil)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", key, err)
		}
		if want := fmt.Sprintf("value%04d", i); string(got) != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}

	got, err := db.Get([]byte("absent"), nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get(absent) = %q, want nil", got)
	}
}

// faultyPolicy panics in both directions of the bridge.
type faultyPolicy struct{}

func (faultyPolicy) Name() string                      { return "test.FaultyPolicy" }
func (faultyPolicy) CreateFilter(keys [][]byte) []byte { panic("create fault") }
func (faultyPolicy) KeyMayMatch(key, filterData []byte) bool {
	panic("probe fault")
}

// TestFilterPolicy_Contract_PanicContained verifies that faults inside a
// policy degrade the filter instead of unwinding into the engine: reads
// still find every stored key.
func TestFilterPolicy_Contract_PanicContained(t *testing.T) {
	opts := DefaultOptions()
	opts.FilterPolicy = faultyPolicy{}
	db := newTestDB(t, opts)

	for i := 0; i < 50; i++ {
		key := fmt.Appendf(nil, "key%03d", i)
		if err := db.Put(key, []byte("v"), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := db.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		key := fmt.Appendf(nil, "key%03d", i)
		got, err := db.Get(key, nil)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", key, err)
		}
		if string(got) != "v" {
			t.Errorf("Get(%q) = %q, want %q", key, got, "v")
		}
	}
}

// TestFilterPolicy_BridgeEmptyFilterIsMaybe verifies the degraded path: an
// empty filter answers "may exist" for every key.
func TestFilterPolicy_BridgeEmptyFilterIsMaybe(t *testing.T) {
	bridge := newFilterBridge(NewBloomFilterPolicy(10), testLogger())
	if !bridge.MayContain(0, nil, []byte("k")) {
		t.Error("empty filter answered a definite miss")
	}
}

// TestFilterPolicy_NameEncodesBudget verifies the policy name carries the
// bits-per-key budget, so differently tuned filters are distinct.
func TestFilterPolicy_NameEncodesBudget(t *testing.T) {
	if NewBloomFilterPolicy(10).Name() == NewBloomFilterPolicy(16).Name() {
		t.Error("policies with different budgets share a name")
	}
	if NewBloomFilterPolicy(0).BitsPerKey() < 1 {
		t.Error("bits-per-key budget not clamped to a minimum of 1")
	}
}
