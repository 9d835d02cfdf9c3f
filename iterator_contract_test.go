package quarry

// iterator_contract_test.go implements tests for the cursor state machine
// and ordering contract.

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func fillSequential(t *testing.T, db *DB, n int) [][]byte {
	t.Helper()
	keys := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Appendf(nil, "key%03d", i)
		if err := db.Put(key, fmt.Appendf(nil, "value%03d", i), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		keys = append(keys, key)
	}
	return keys
}

// TestIterator_Contract_ValidOnlyWhenPositioned verifies that Valid is
// false on a fresh iterator, true while positioned, and false again after
// exhaustion.
func TestIterator_Contract_ValidOnlyWhenPositioned(t *testing.T) {
	db := newTestDB(t, nil)
	fillSequential(t, db, 5)

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	if it.Valid() {
		t.Error("fresh iterator must not be valid")
	}
	it.SeekToFirst()
	if !it.Valid() {
		t.Error("iterator must be valid after SeekToFirst on non-empty db")
	}
	for it.Valid() {
		it.Next()
	}
	if it.Valid() {
		t.Error("iterator must not be valid after exhaustion")
	}

	// A fresh seek re-enters the valid state.
	it.SeekToLast()
	if !it.Valid() {
		t.Error("iterator must be valid after re-seek")
	}
}

// TestIterator_Contract_ForwardOrdering verifies a full forward scan
// visits every key exactly once in ascending order.
func TestIterator_Contract_ForwardOrdering(t *testing.T) {
	db := newTestDB(t, nil)
	keys := fillSequential(t, db, 50)

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	i := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if i >= len(keys) {
			t.Fatal("iterator yielded more entries than written")
		}
		if !bytes.Equal(it.Key(), keys[i]) {
			t.Fatalf("scan position %d: key = %q, want %q", i, it.Key(), keys[i])
		}
		i++
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if i != len(keys) {
		t.Errorf("scan visited %d entries, want %d", i, len(keys))
	}
}

// TestIterator_Contract_ReverseOrdering verifies that a reverse view scans
// the same entries in descending order and shares position with the
// forward view.
func TestIterator_Contract_ReverseOrdering(t *testing.T) {
	db := newTestDB(t, nil)
	keys := fillSequential(t, db, 20)

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	rev := it.Reverse()
	i := len(keys) - 1
	for rev.SeekToFirst(); rev.Valid(); rev.Next() {
		if i < 0 {
			t.Fatal("reverse scan yielded more entries than written")
		}
		if !bytes.Equal(rev.Key(), keys[i]) {
			t.Fatalf("reverse position %d: key = %q, want %q", i, rev.Key(), keys[i])
		}
		i--
	}
	if i != -1 {
		t.Errorf("reverse scan stopped early, %d entries unvisited", i+1)
	}

	// Shared position: positioning the reverse view moves the forward one.
	rev.SeekToLast()
	if !it.Valid() || !bytes.Equal(it.Key(), keys[0]) {
		t.Error("reverse SeekToLast did not position the shared cursor at the first key")
	}
}

// TestIterator_Contract_Seek verifies >= positioning, including seeking
// between keys and past the end.
func TestIterator_Contract_Seek(t *testing.T) {
	db := newTestDB(t, nil)
	for _, k := range []string{"b", "d", "f"} {
		if err := db.Put([]byte(k), []byte("v"), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	it.Seek([]byte("d"))
	if !it.Valid() || string(it.Key()) != "d" {
		t.Error("Seek to an existing key must land on it")
	}
	it.Seek([]byte("c"))
	if !it.Valid() || string(it.Key()) != "d" {
		t.Error("Seek between keys must land on the next greater key")
	}
	it.Seek([]byte("g"))
	if it.Valid() {
		t.Error("Seek past the last key must exhaust the iterator")
	}
}

// TestIterator_Contract_SeekForPrev verifies <= positioning.
func TestIterator_Contract_SeekForPrev(t *testing.T) {
	db := newTestDB(t, nil)
	for _, k := range []string{"b", "d", "f"} {
		if err := db.Put([]byte(k), []byte("v"), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	it.SeekForPrev([]byte("d"))
	if !it.Valid() || string(it.Key()) != "d" {
		t.Error("SeekForPrev to an existing key must land on it")
	}
	it.SeekForPrev([]byte("e"))
	if !it.Valid() || string(it.Key()) != "d" {
		t.Error("SeekForPrev between keys must land on the next smaller key")
	}
	it.SeekForPrev([]byte("a"))
	if it.Valid() {
		t.Error("SeekForPrev before the first key must exhaust the iterator")
	}
}

// TestIterator_Contract_Bounds verifies that iterate bounds confine the
// scan to [lower, upper).
func TestIterator_Contract_Bounds(t *testing.T) {
	db := newTestDB(t, nil)
	fillSequential(t, db, 10)

	ro := DefaultReadOptions()
	ro.IterateLowerBound = []byte("key003")
	ro.IterateUpperBound = []byte("key007")
	it, err := db.NewIterator(ro)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key()))
	}
	want := []string{"key003", "key004", "key005", "key006"}
	if len(got) != len(want) {
		t.Fatalf("bounded scan = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bounded scan[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestIterator_Contract_PrefixSeek verifies that prefix positioning with a
// fixed prefix extractor confines the scan to the target's prefix.
func TestIterator_Contract_PrefixSeek(t *testing.T) {
	opts := DefaultOptions()
	opts.PrefixExtractor = NewFixedPrefixTransform(4)
	db := newTestDB(t, opts)

	for _, k := range []string{"aaa:1", "aaa:2", "bbb:1", "bbb:2", "ccc:1"} {
		if err := db.Put([]byte(k), []byte("v"), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	ro := DefaultReadOptions()
	ro.PrefixSeek = true
	it, err := db.NewIterator(ro)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Seek([]byte("bbb:")); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Key(), []byte("bbb:")) {
			break
		}
		got = append(got, string(it.Key()))
	}
	if len(got) != 2 || got[0] != "bbb:1" || got[1] != "bbb:2" {
		t.Errorf("prefix scan = %v, want [bbb:1 bbb:2]", got)
	}
}

// TestIterator_Contract_DereferenceWhileInvalidPanics verifies that
// reading the key or value of a non-valid iterator panics instead of
// returning stale data.
func TestIterator_Contract_DereferenceWhileInvalidPanics(t *testing.T) {
	db := newTestDB(t, nil)
	fillSequential(t, db, 3)

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	mustPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s on a non-valid iterator did not panic", name)
			}
		}()
		f()
	}

	mustPanic("Key", func() { it.Key() })
	mustPanic("Value", func() { it.Value() })
	mustPanic("Next", func() { it.Next() })
	mustPanic("Prev", func() { it.Prev() })

	it.SeekToFirst()
	for it.Valid() {
		it.Next()
	}
	mustPanic("Key after exhaustion", func() { it.Key() })
}

// TestIterator_Contract_ValueMatchesKey verifies that Key and Value stay
// paired throughout a scan and survive the cursor moving on.
func TestIterator_Contract_ValueMatchesKey(t *testing.T) {
	db := newTestDB(t, nil)
	fillSequential(t, db, 10)

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	it.SeekToFirst()
	firstKey, firstValue := it.Key(), it.Value()
	it.Next()

	// Returned slices are copies; advancing must not mutate them.
	if string(firstKey) != "key000" || string(firstValue) != "value000" {
		t.Errorf("stale copies after Next: key=%q value=%q", firstKey, firstValue)
	}

	for ; it.Valid(); it.Next() {
		wantValue := append([]byte("value"), it.Key()[3:]...)
		if !bytes.Equal(it.Value(), wantValue) {
			t.Errorf("key %q paired with value %q, want %q", it.Key(), it.Value(), wantValue)
		}
	}
}

// TestIterator_Contract_ValueLoadFailureInvalidates verifies that an
// entry whose value cannot be loaded does not read as a present empty
// value: the load failure takes the iterator out of the valid state, so
// callers checking Valid and Error see the fault.
func TestIterator_Contract_ValueLoadFailureInvalidates(t *testing.T) {
	it := &Iterator{state: iterValid}

	got := it.loadValue(nil, errors.New("value block read failed"))
	if got != nil {
		t.Errorf("failed load returned %q, want nil", got)
	}
	if it.Valid() {
		t.Error("iterator still valid after a failed value load")
	}

	// A successful load keeps the position and copies the bytes out.
	it.state = iterValid
	src := []byte("payload")
	got = it.loadValue(src, nil)
	if !bytes.Equal(got, src) {
		t.Errorf("loadValue = %q, want %q", got, src)
	}
	if !it.Valid() {
		t.Error("iterator invalidated by a successful value load")
	}
	src[0] = 'X'
	if got[0] == 'X' {
		t.Error("loaded value aliases the source buffer")
	}
}

// TestIterator_UseAfterClosePanics verifies the iterator rejects use after
// Close.
func TestIterator_UseAfterClosePanics(t *testing.T) {
	db := newTestDB(t, nil)
	fillSequential(t, db, 3)

	it, err := db.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("seek on a closed iterator did not panic")
		}
	}()
	it.SeekToFirst()
}
