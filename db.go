package quarry

// db.go implements the database handle: opening, point reads and writes,
// batch application, snapshots, iterators, and maintenance operations.
//
// A DB is safe for concurrent use. Snapshots and iterators created from it
// are tracked so that Close can reclaim whatever the caller forgot;
// resource reclamation never depends on finalizers.

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/mharshe/quarry/internal/batch"
)

// DB is a handle to an open database.
type DB struct {
	path     string
	opts     Options // latched at Open; later mutation of the caller's Options has no effect
	engine   *pebble.DB
	logger   *zap.Logger
	readOnly bool
	closed   atomic.Bool

	// mu serializes Close against in-flight operations.
	mu sync.RWMutex

	// trackMu guards the open snapshot and iterator sets.
	trackMu   sync.Mutex
	snapshots map[*Snapshot]struct{}
	iterators map[*Iterator]struct{}
}

// Open opens the database at path, creating it when opts.CreateIfMissing
// is set. A nil opts selects DefaultOptions.
func Open(path string, opts *Options) (*DB, error) {
	return openDB(path, opts, false)
}

func openDB(path string, opts *Options, readOnly bool) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	popts, err := opts.engineOptions()
	if err != nil {
		return nil, err
	}
	popts.ReadOnly = readOnly

	engine, err := pebble.Open(path, popts)
	if err != nil {
		return nil, translateErr(err)
	}

	logger := opts.logger()
	logger.Info("database opened",
		zap.String("path", path),
		zap.Bool("read_only", readOnly))

	return &DB{
		path:      path,
		opts:      *opts,
		engine:    engine,
		logger:    logger,
		readOnly:  readOnly,
		snapshots: make(map[*Snapshot]struct{}),
		iterators: make(map[*Iterator]struct{}),
	}, nil
}

// Path returns the directory the database was opened at.
func (db *DB) Path() string {
	return db.path
}

// Options returns a copy of the options the database was opened with.
func (db *DB) Options() Options {
	return db.opts
}

// compare orders two keys using the configured comparator.
func (db *DB) compare(a, b []byte) int {
	if c := db.opts.Comparator; c != nil && !isBytewise(c) {
		return c.Compare(a, b)
	}
	return bytes.Compare(a, b)
}

func (db *DB) writable() error {
	if db.closed.Load() {
		return ErrDBClosed
	}
	if db.readOnly {
		return classified(ErrNotSupported, errDetail("database is open read-only"))
	}
	return nil
}

// writeOpts maps WriteOptions onto the engine's durability modes. A sync
// write with the WAL disabled, per call or globally, has nothing to sync.
func (db *DB) writeOpts(wo *WriteOptions) *pebble.WriteOptions {
	if wo == nil {
		wo = DefaultWriteOptions()
	}
	if wo.Sync && !wo.DisableWAL && !db.opts.DisableWAL {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Put stores value under key, replacing any existing entry.
func (db *DB) Put(key, value []byte, wo *WriteOptions) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writable(); err != nil {
		return err
	}
	return translateErr(db.engine.Set(key, value, db.writeOpts(wo)))
}

// Delete removes key. Deleting an absent key succeeds.
func (db *DB) Delete(key []byte, wo *WriteOptions) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writable(); err != nil {
		return err
	}
	return translateErr(db.engine.Delete(key, db.writeOpts(wo)))
}

// Merge records a merge operand for key, to be resolved by the configured
// merge operator on read or compaction.
func (db *DB) Merge(key, value []byte, wo *WriteOptions) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writable(); err != nil {
		return err
	}
	if db.opts.MergeOperator == nil {
		return classified(ErrNotSupported, errDetail("no merge operator configured"))
	}
	return translateErr(db.engine.Merge(key, value, db.writeOpts(wo)))
}

// engineReplay feeds batch records into an engine batch. Merge records
// are subject to the same operator requirement as DB.Merge; rejecting
// during replay keeps the whole batch out, so no unresolvable operand is
// ever persisted.
type engineReplay struct {
	db *DB
	eb *pebble.Batch
}

func (r engineReplay) Put(key, value []byte) error { return r.eb.Set(key, value, nil) }

func (r engineReplay) Merge(key, value []byte) error {
	if r.db.opts.MergeOperator == nil {
		return classified(ErrNotSupported, errDetail("no merge operator configured"))
	}
	return r.eb.Merge(key, value, nil)
}

func (r engineReplay) Delete(key []byte) error { return r.eb.Delete(key, nil) }

// Write applies wb atomically: either every record lands or none do.
func (db *DB) Write(wb *WriteBatch, wo *WriteOptions) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writable(); err != nil {
		return err
	}

	eb := db.engine.NewBatch()
	defer func() { _ = eb.Close() }()
	if err := wb.iterate(engineReplay{db: db, eb: eb}); err != nil {
		if errors.Is(err, batch.ErrCorrupted) {
			return classified(ErrCorruption, err)
		}
		return translateErr(err)
	}
	return translateErr(eb.Commit(db.writeOpts(wo)))
}

func (db *DB) pointRead(key []byte, ro *ReadOptions) ([]byte, io.Closer, error) {
	if s := ro.Snapshot; s != nil {
		if s.db != db {
			return nil, nil, classified(ErrInvalidArgument, errDetail("snapshot belongs to a different database"))
		}
		return s.engine.Get(key)
	}
	return db.engine.Get(key)
}

// Get returns the value stored under key. An absent key yields (nil, nil);
// a present empty value yields a non-nil empty slice.
func (db *DB) Get(key []byte, ro *ReadOptions) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed.Load() {
		return nil, ErrDBClosed
	}
	if ro == nil {
		ro = DefaultReadOptions()
	}
	if err := ro.validate(); err != nil {
		return nil, err
	}
	if ro.tier() == ReadTierCache {
		return nil, classified(ErrIncomplete, errDetail("cache-only reads cannot satisfy point lookups"))
	}

	value, closer, err := db.pointRead(key, ro)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, translateErr(err)
	}
	out := append([]byte{}, value...)
	_ = closer.Close()
	return out, nil
}

// MultiGet looks up every key and returns the values in matching order,
// with nil entries for absent keys. The first lookup failure aborts the
// whole call.
func (db *DB) MultiGet(keys [][]byte, ro *ReadOptions) ([][]byte, error) {
	values := make([][]byte, len(keys))
	for i, key := range keys {
		value, err := db.Get(key, ro)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// KeyMayExist reports whether key may exist. A false answer is
// authoritative; a true answer may be a false positive. With fetch set,
// the value is returned when it was found.
//
// Under ReadTierCache the store cannot be consulted, so the answer is
// always (true, nil).
func (db *DB) KeyMayExist(key []byte, fetch bool, ro *ReadOptions) (bool, []byte, error) {
	if ro == nil {
		ro = DefaultReadOptions()
	}
	if err := ro.validate(); err != nil {
		return false, nil, err
	}
	if ro.tier() == ReadTierCache {
		return true, nil, nil
	}

	value, err := db.Get(key, ro)
	if err != nil {
		return false, nil, err
	}
	if value == nil {
		return false, nil, nil
	}
	if !fetch {
		return true, nil, nil
	}
	return true, value, nil
}

// GetSnapshot captures a consistent point-in-time view. The caller must
// Release it; Close releases whatever is still outstanding.
func (db *DB) GetSnapshot() (*Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed.Load() {
		return nil, ErrDBClosed
	}

	s := newSnapshot(db, db.engine.NewSnapshot())
	db.trackMu.Lock()
	db.snapshots[s] = struct{}{}
	db.trackMu.Unlock()
	return s, nil
}

func (db *DB) forgetSnapshot(s *Snapshot) {
	db.trackMu.Lock()
	delete(db.snapshots, s)
	db.trackMu.Unlock()
}

// NewIterator opens an ordered cursor over the database, or over
// ro.Snapshot's view when one is set. The returned iterator is
// unpositioned; seek before reading.
func (db *DB) NewIterator(ro *ReadOptions) (*Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed.Load() {
		return nil, ErrDBClosed
	}
	if ro == nil {
		ro = DefaultReadOptions()
	}
	if err := ro.validate(); err != nil {
		return nil, err
	}
	if ro.tier() == ReadTierCache {
		return nil, classified(ErrIncomplete, errDetail("cache-only reads cannot back an iterator"))
	}

	iterOpts := &pebble.IterOptions{
		LowerBound: ro.IterateLowerBound,
		UpperBound: ro.IterateUpperBound,
	}
	var (
		engineIter *pebble.Iterator
		err        error
	)
	if s := ro.Snapshot; s != nil {
		if s.db != db {
			return nil, classified(ErrInvalidArgument, errDetail("snapshot belongs to a different database"))
		}
		engineIter, err = s.engine.NewIter(iterOpts)
	} else {
		engineIter, err = db.engine.NewIter(iterOpts)
	}
	if err != nil {
		return nil, translateErr(err)
	}

	it := &Iterator{
		db:         db,
		iter:       engineIter,
		prefixSeek: ro.PrefixSeek && db.opts.PrefixExtractor != nil,
	}
	db.trackMu.Lock()
	db.iterators[it] = struct{}{}
	db.trackMu.Unlock()
	return it, nil
}

func (db *DB) forgetIterator(it *Iterator) {
	db.trackMu.Lock()
	delete(db.iterators, it)
	db.trackMu.Unlock()
}

// GetProperty returns the named introspection property, reporting whether
// the name is recognized. Property names live under the "quarry." prefix.
func (db *DB) GetProperty(name string) (string, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed.Load() {
		return "", false
	}

	rest, ok := strings.CutPrefix(name, "quarry.")
	if !ok {
		return "", false
	}
	m := db.engine.Metrics()
	switch {
	case rest == "stats":
		return m.String(), true
	case rest == "flush-count":
		return strconv.FormatInt(m.Flush.Count, 10), true
	case rest == "compact-count":
		return strconv.FormatInt(m.Compact.Count, 10), true
	case strings.HasPrefix(rest, "num-files-at-level"):
		level, err := strconv.Atoi(strings.TrimPrefix(rest, "num-files-at-level"))
		if err != nil || level < 0 || level >= len(m.Levels) {
			return "", false
		}
		return strconv.FormatInt(m.Levels[level].NumFiles, 10), true
	case strings.HasPrefix(rest, "size-at-level"):
		level, err := strconv.Atoi(strings.TrimPrefix(rest, "size-at-level"))
		if err != nil || level < 0 || level >= len(m.Levels) {
			return "", false
		}
		return strconv.FormatInt(m.Levels[level].Size, 10), true
	}
	return "", false
}

// Flush forces the current memtable out to a table file.
func (db *DB) Flush() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writable(); err != nil {
		return err
	}
	return translateErr(db.engine.Flush())
}

// CompactRange compacts the key range [start, limit]. A nil bound extends
// to the corresponding end of the key space; compacting an empty database
// is a no-op.
func (db *DB) CompactRange(start, limit []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writable(); err != nil {
		return err
	}

	if start == nil || limit == nil {
		it, err := db.engine.NewIter(nil)
		if err != nil {
			return translateErr(err)
		}
		if start == nil && it.First() {
			start = append([]byte{}, it.Key()...)
		}
		if limit == nil && it.Last() {
			limit = append([]byte{}, it.Key()...)
		}
		if err := it.Close(); err != nil {
			return translateErr(err)
		}
		if start == nil || limit == nil {
			return nil
		}
	}
	if db.compare(start, limit) >= 0 {
		return nil
	}
	return translateErr(db.engine.Compact(start, limit, true))
}

// Range bounds a key span for size estimation. Start is inclusive, Limit
// exclusive.
type Range struct {
	Start []byte
	Limit []byte
}

// EstimateSizes returns the approximate on-disk size of each range, in
// matching order.
func (db *DB) EstimateSizes(ranges []Range) ([]uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed.Load() {
		return nil, ErrDBClosed
	}

	sizes := make([]uint64, len(ranges))
	for i, r := range ranges {
		size, err := db.engine.EstimateDiskUsage(r.Start, r.Limit)
		if err != nil {
			return nil, translateErr(err)
		}
		sizes[i] = size
	}
	return sizes, nil
}

// Close releases outstanding snapshots and iterators, then closes the
// engine. Closing an already-closed handle is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	db.trackMu.Lock()
	leakedIters, leakedSnaps := len(db.iterators), len(db.snapshots)
	for it := range db.iterators {
		_ = it.teardown()
	}
	for s := range db.snapshots {
		s.release()
	}
	db.iterators = nil
	db.snapshots = nil
	db.trackMu.Unlock()
	if leakedIters > 0 || leakedSnaps > 0 {
		db.logger.Warn("reclaimed resources left open at close",
			zap.Int("iterators", leakedIters),
			zap.Int("snapshots", leakedSnaps))
	}

	err := db.engine.Close()
	db.logger.Info("database closed", zap.String("path", db.path))
	return translateErr(err)
}
