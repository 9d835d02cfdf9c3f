/*
Package quarry provides a RocksDB-flavored client layer over an embedded
ordered key/value engine (Pebble).

Quarry exposes the engine through a small, stable surface: point and batched
reads and writes, atomic write batches, point-in-time snapshots, and ordered
iterators. Caller-supplied comparison, merge, and filter logic is installed
through Options and invoked from the engine's own execution contexts,
including background flush and compaction, behind bridges that contain
faults and never let a panic unwind into the engine.

Every engine status is funneled through a single translation point into a
closed set of error kinds (ErrNotFound, ErrCorruption, ErrNotSupported,
ErrInvalidArgument, ErrIOError, ErrMergeInProgress, ErrIncomplete,
ErrUnknown); classify with errors.Is. A missing key is not an error: Get
returns a nil value and no error.

# Usage

	db, err := quarry.Open(path, quarry.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	err = db.Put([]byte("key"), []byte("value"), nil)
	value, err := db.Get([]byte("key"), nil)

# Concurrency

A DB is safe for concurrent use by multiple goroutines. Snapshots and
Iterators are single-goroutine objects; each goroutine should use its own.
Cache instances may be shared across any number of Options and open
databases; they are reference counted and released with the last owner.
*/
package quarry
