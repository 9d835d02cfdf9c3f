package quarry

// snapshot.go implements snapshot management.
//
// Snapshots provide consistent point-in-time views of the database. A
// snapshot is owned jointly by the caller and the database that produced
// it: the caller releases it exactly once, and the database reaps any
// still-live snapshots when it closes so that none outlives the handle.

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
)

// Snapshot provides a consistent read view of the database. Pass it in
// ReadOptions to pin reads and iterators to the captured state.
//
// A Snapshot is not safe for concurrent use by multiple goroutines.
type Snapshot struct {
	db        *DB
	engine    *pebble.Snapshot
	createdAt time.Time
	released  atomic.Bool
}

// newSnapshot captures the current state of the database.
func newSnapshot(db *DB, engine *pebble.Snapshot) *Snapshot {
	return &Snapshot{
		db:        db,
		engine:    engine,
		createdAt: time.Now(),
	}
}

// CreatedAt returns the time the snapshot was taken.
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

// Release releases the snapshot's view. Idempotent; after the first call
// the snapshot must no longer be used for reads.
func (s *Snapshot) Release() {
	if s.released.CompareAndSwap(false, true) {
		s.db.forgetSnapshot(s)
		_ = s.engine.Close()
	}
}

// release tears the snapshot down on database close, without unregistering.
func (s *Snapshot) release() {
	if s.released.CompareAndSwap(false, true) {
		_ = s.engine.Close()
	}
}
