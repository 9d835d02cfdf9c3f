package quarry

// iterator.go implements the ordered cursor over the key space.
//
// An Iterator moves through three states: unpositioned (right after
// creation), valid (positioned at an entry), and exhausted (moved past
// either end). Seeks enter valid or exhausted from any state; Next and
// Prev only move a valid iterator; an exhausted iterator re-enters valid
// only through a fresh seek. Reading the key or value while not valid is a
// programming error and panics rather than returning stale data.

import (
	"github.com/cockroachdb/pebble"
)

type iterState int

const (
	iterUnpositioned iterState = iota
	iterValid
	iterExhausted
)

// Iterator is a stateful ordered traversal over the database's key space,
// or over a snapshot's view of it. It is not safe for concurrent use by
// multiple goroutines.
type Iterator struct {
	db         *DB
	iter       *pebble.Iterator
	prefixSeek bool
	state      iterState
	closed     bool
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.state == iterValid
}

// SeekToFirst positions the iterator at the first entry.
func (it *Iterator) SeekToFirst() {
	it.mustBeOpen()
	it.settle(it.iter.First())
}

// SeekToLast positions the iterator at the last entry.
func (it *Iterator) SeekToLast() {
	it.mustBeOpen()
	it.settle(it.iter.Last())
}

// Seek positions the iterator at the first entry with key >= target in
// the database's key order. With ReadOptions.PrefixSeek and a configured
// prefix extractor, positioning is confined to the target's prefix.
func (it *Iterator) Seek(target []byte) {
	it.mustBeOpen()
	if it.prefixSeek {
		it.settle(it.iter.SeekPrefixGE(target))
		return
	}
	it.settle(it.iter.SeekGE(target))
}

// SeekForPrev positions the iterator at the last entry with key <=
// target.
func (it *Iterator) SeekForPrev(target []byte) {
	it.mustBeOpen()
	if it.iter.SeekGE(target) && it.db.compare(it.iter.Key(), target) == 0 {
		it.settle(true)
		return
	}
	it.settle(it.iter.SeekLT(target))
}

// Next moves to the next entry. The iterator must be valid.
func (it *Iterator) Next() {
	it.mustBeOpen()
	switch it.state {
	case iterUnpositioned:
		panic("quarry: iterator is unpositioned; seek before moving")
	case iterExhausted:
		// Only a seek leaves the exhausted state.
	default:
		it.settle(it.iter.Next())
	}
}

// Prev moves to the previous entry. The iterator must be valid.
func (it *Iterator) Prev() {
	it.mustBeOpen()
	switch it.state {
	case iterUnpositioned:
		panic("quarry: iterator is unpositioned; seek before moving")
	case iterExhausted:
	default:
		it.settle(it.iter.Prev())
	}
}

// Key returns a copy of the key at the current position.
// The iterator must be valid.
func (it *Iterator) Key() []byte {
	it.mustBeValid()
	return copyBytes(it.iter.Key())
}

// Value returns a copy of the value at the current position.
// The iterator must be valid. A value that fails to load exhausts the
// iterator; the failure is reported by Error.
func (it *Iterator) Value() []byte {
	it.mustBeValid()
	return it.loadValue(it.iter.ValueAndErr())
}

// loadValue resolves a value read. A load failure means the current entry
// cannot be trusted, so the iterator leaves the valid state rather than
// letting the error pass for a present empty value.
func (it *Iterator) loadValue(value []byte, err error) []byte {
	if err != nil {
		it.settle(false)
		return nil
	}
	return copyBytes(value)
}

// Error returns the first error encountered by the iterator, translated
// into the error taxonomy.
func (it *Iterator) Error() error {
	return translateErr(it.iter.Error())
}

// Close releases the iterator's resources. The iterator must not be used
// afterwards.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.db.forgetIterator(it)
	return it.teardown()
}

// teardown closes the engine iterator without unregistering, used both by
// Close and by DB.Close reaping still-open iterators.
func (it *Iterator) teardown() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.state = iterExhausted
	return translateErr(it.iter.Close())
}

func (it *Iterator) settle(valid bool) {
	if valid {
		it.state = iterValid
	} else {
		it.state = iterExhausted
	}
}

func (it *Iterator) mustBeOpen() {
	if it.closed {
		panic("quarry: iterator used after close")
	}
}

func (it *Iterator) mustBeValid() {
	if it.state != iterValid {
		panic("quarry: iterator is not valid")
	}
}

// Reverse returns a reversed view over the same cursor: first means last,
// Next means Prev. The view shares the underlying position — moving either
// view moves both.
func (it *Iterator) Reverse() *ReverseIterator {
	return &ReverseIterator{it: it}
}

// ReverseIterator exposes the iterator contract with the traversal
// direction inverted. It is a view: the wrapped Iterator's state is shared,
// mutable state.
type ReverseIterator struct {
	it *Iterator
}

// Valid reports whether the underlying iterator is positioned at an entry.
func (r *ReverseIterator) Valid() bool { return r.it.Valid() }

// SeekToFirst positions at the first entry in reverse order, i.e. the
// last entry of the underlying iterator.
func (r *ReverseIterator) SeekToFirst() { r.it.SeekToLast() }

// SeekToLast positions at the last entry in reverse order.
func (r *ReverseIterator) SeekToLast() { r.it.SeekToFirst() }

// Seek positions at the first entry at or before target in the
// database's key order.
func (r *ReverseIterator) Seek(target []byte) { r.it.SeekForPrev(target) }

// Next moves backward in the underlying order.
func (r *ReverseIterator) Next() { r.it.Prev() }

// Prev moves forward in the underlying order.
func (r *ReverseIterator) Prev() { r.it.Next() }

// Key returns a copy of the key at the current position.
func (r *ReverseIterator) Key() []byte { return r.it.Key() }

// Value returns a copy of the value at the current position.
func (r *ReverseIterator) Value() []byte { return r.it.Value() }

// Error returns the first error encountered by the underlying iterator.
func (r *ReverseIterator) Error() error { return r.it.Error() }

// Close closes the underlying iterator.
func (r *ReverseIterator) Close() error { return r.it.Close() }
