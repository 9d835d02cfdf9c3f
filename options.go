package quarry

// options.go implements database configuration options.
//
// Options is a flat record of scalar tuning knobs plus the polymorphic
// slots: comparator, merge operator, filter policy, block cache, and
// logger. Fields may be read and written freely until Open consumes the
// Options; Open latches a copy, so later mutation never affects an
// already-open database.

import (
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"go.uber.org/zap"
)

// CompressionType selects the block compression algorithm.
type CompressionType int

// The closed set of compression settings. Any other value is rejected with
// an invalid-argument error when the Options are consumed.
const (
	NoCompression CompressionType = iota
	SnappyCompression
	ZlibCompression
	Bzip2Compression
)

// String returns the compression name.
func (t CompressionType) String() string {
	switch t {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZlibCompression:
		return "zlib"
	case Bzip2Compression:
		return "bzip2"
	default:
		return fmt.Sprintf("CompressionType(%d)", int(t))
	}
}

// ReadTier restricts where a read may be served from.
type ReadTier int

const (
	// ReadTierAll reads from cache, memtables, and storage.
	ReadTierAll ReadTier = iota

	// ReadTierCache reads only already-cached data and never touches the
	// underlying store. Point reads that would require storage access
	// report ErrIncomplete. Used for latency-bounded best-effort reads.
	ReadTierCache
)

// FixedPrefixTransform extracts the leading Len bytes of a key as its
// prefix, enabling prefix-seek iteration and prefix-scoped filters.
type FixedPrefixTransform struct {
	Len int
}

// NewFixedPrefixTransform returns a prefix extractor over the first n
// bytes of each key.
func NewFixedPrefixTransform(n int) *FixedPrefixTransform {
	return &FixedPrefixTransform{Len: n}
}

// Name returns the transform name.
func (t *FixedPrefixTransform) Name() string {
	return fmt.Sprintf("quarry.FixedPrefix(%d)", t.Len)
}

// split is the engine-facing prefix length function.
func (t *FixedPrefixTransform) split(key []byte) int {
	if len(key) < t.Len {
		return len(key)
	}
	return t.Len
}

// Options contains all configuration options for opening a database.
//
// Knobs the engine build has no counterpart for are documented as
// retained: they are latched and introspectable on the open handle but do
// not change engine behavior.
type Options struct {
	// CreateIfMissing creates the database if it does not exist.
	CreateIfMissing bool

	// ErrorIfExists makes Open fail if the database already exists.
	ErrorIfExists bool

	// ParanoidChecks enables aggressive verification of data integrity.
	// Retained; the engine always verifies block checksums.
	ParanoidChecks bool

	// Comparator defines the order of keys. Nil selects the bytewise
	// default. The built-in bytewise comparator is handed to the engine
	// directly, without bridge indirection.
	Comparator Comparator

	// MergeOperator resolves merge operands. Nil leaves Merge
	// unavailable: calls report ErrNotSupported.
	MergeOperator MergeOperator

	// FilterPolicy builds per-table existence filters. Nil disables
	// filters.
	FilterPolicy FilterPolicy

	// PrefixExtractor enables prefix-seek iteration and scopes filters
	// to key prefixes.
	PrefixExtractor *FixedPrefixTransform

	// BlockCache caches uncompressed table blocks. Nil gives the
	// database a private cache with the engine's default size; a shared
	// Cache may back any number of databases.
	BlockCache *Cache

	// Logger is the diagnostic channel: engine log output, background
	// event reports, and bridge fault diagnostics. Nil discards.
	Logger *zap.Logger

	// LogEngineEvents additionally logs background engine events (flush,
	// compaction, WAL rotation) through Logger.
	LogEngineEvents bool

	// Compression selects block compression from the closed set
	// {none, snappy, zlib, bzip2}. The engine build links none and
	// snappy; zlib and bzip2 fail Open with ErrNotSupported.
	Compression CompressionType

	// WriteBufferSize is the size of a single memtable.
	WriteBufferSize int

	// MaxWriteBufferNumber is the number of memtables that may queue
	// before writes stop.
	MaxWriteBufferNumber int

	// MinWriteBufferNumberToMerge is the number of full memtables to
	// merge per flush. Retained.
	MinWriteBufferNumberToMerge int

	// MaxOpenFiles is the maximum number of table files kept open.
	MaxOpenFiles int

	// BlockSize is the approximate size of table data blocks.
	BlockSize int

	// BlockRestartInterval is the key count between restart points in a
	// block.
	BlockRestartInterval int

	// IndexBlockSize is the target size of index blocks. Zero uses the
	// engine default.
	IndexBlockSize int

	// NumLevels is the depth of the tree. Retained; the engine uses a
	// fixed seven-level tree.
	NumLevels int

	// Level0FileNumCompactionTrigger is the L0 file count that triggers
	// compaction into the base level.
	Level0FileNumCompactionTrigger int

	// Level0SlowdownWritesTrigger is the L0 file count that begins
	// write throttling. Retained; the engine derives its own pacing.
	Level0SlowdownWritesTrigger int

	// Level0StopWritesTrigger is the L0 file count that stops writes.
	Level0StopWritesTrigger int

	// TargetFileSizeBase is the target table file size at the base
	// level.
	TargetFileSizeBase int64

	// TargetFileSizeMultiplier grows the target file size per level.
	TargetFileSizeMultiplier int

	// MaxBytesForLevelBase is the total data size limit for the base
	// level.
	MaxBytesForLevelBase int64

	// MaxBytesForLevelMultiplier grows the level size limit per level.
	// Retained; the engine uses a fixed factor of 10.
	MaxBytesForLevelMultiplier int

	// MaxBackgroundCompactions bounds concurrent compaction workers.
	MaxBackgroundCompactions int

	// MaxBackgroundFlushes bounds concurrent flush workers. Retained;
	// the engine runs a single flusher.
	MaxBackgroundFlushes int

	// MaxSubcompactions divides a compaction among workers. Retained.
	MaxSubcompactions int

	// DisableAutoCompactions disables background compaction entirely.
	DisableAutoCompactions bool

	// DisableWAL disables the write-ahead log for the whole database.
	// Unflushed writes are lost on crash.
	DisableWAL bool

	// UseFsync forces fsync over fdatasync for durability syncs.
	// Retained.
	UseFsync bool

	// WALDir places the write-ahead log in a separate directory, e.g.
	// on a faster device. Empty keeps it with the data.
	WALDir string

	// DBLogDir places info log files in a separate directory. Retained;
	// logging goes through Logger.
	DBLogDir string

	// MaxLogFileSize rotates the info log beyond this size. Retained.
	MaxLogFileSize int

	// LogFileTimeToRoll rotates the info log after this duration.
	// Retained.
	LogFileTimeToRoll time.Duration

	// KeepLogFileNum bounds retained rotated info logs. Retained.
	KeepLogFileNum int

	// MaxManifestFileSize rolls the manifest beyond this size.
	MaxManifestFileSize int64

	// BytesPerSync incrementally syncs table files as they are written,
	// smoothing write-back. Zero disables.
	BytesPerSync int

	// WALBytesPerSync incrementally syncs the WAL. Zero disables.
	WALBytesPerSync int

	// FlushSplitBytes splits flushed tables to allow future concurrent
	// compactions. Zero uses the engine default.
	FlushSplitBytes int64

	// TargetByteDeletionRate paces obsolete file deletion in bytes per
	// second. Zero deletes at full speed.
	TargetByteDeletionRate int

	// DeleteObsoleteFilesPeriod is the sweep interval for obsolete
	// files. Retained; the engine deletes eagerly.
	DeleteObsoleteFilesPeriod time.Duration

	// AllowMmapReads memory-maps table files for reads. Retained.
	AllowMmapReads bool

	// AllowMmapWrites memory-maps table files for writes. Retained.
	AllowMmapWrites bool

	// AdviseRandomOnOpen hints random access for opened table files.
	// Retained.
	AdviseRandomOnOpen bool
}

// DefaultOptions returns a new Options with default values.
func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:                true,
		Compression:                    SnappyCompression,
		WriteBufferSize:                64 << 20,
		MaxWriteBufferNumber:           2,
		MinWriteBufferNumberToMerge:    1,
		MaxOpenFiles:                   1000,
		BlockSize:                      4096,
		BlockRestartInterval:           16,
		NumLevels:                      7,
		Level0FileNumCompactionTrigger: 4,
		Level0SlowdownWritesTrigger:    20,
		Level0StopWritesTrigger:        36,
		TargetFileSizeBase:             64 << 20,
		TargetFileSizeMultiplier:       1,
		MaxBytesForLevelBase:           256 << 20,
		MaxBytesForLevelMultiplier:     10,
		MaxBackgroundCompactions:       1,
		MaxBackgroundFlushes:           1,
		MaxSubcompactions:              1,
		MaxManifestFileSize:            128 << 20,
		BytesPerSync:                   512 << 10,
	}
}

// logger returns the configured diagnostic logger, never nil.
func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// validate checks the polymorphic slots and enumerated settings once, when
// the Options are consumed.
func (o *Options) validate() error {
	if o.Comparator != nil {
		if err := validateComparator(o.Comparator); err != nil {
			return err
		}
	}
	if o.MergeOperator != nil {
		if err := validateMergeOperator(o.MergeOperator); err != nil {
			return err
		}
	}
	if o.FilterPolicy != nil {
		if err := validateFilterPolicy(o.FilterPolicy); err != nil {
			return err
		}
	}
	switch o.Compression {
	case NoCompression, SnappyCompression, ZlibCompression, Bzip2Compression:
	default:
		return classified(ErrInvalidArgument, errDetail("unsupported compression"))
	}
	return nil
}

// engineOptions translates the latched Options into the engine's option
// record. The polymorphic slots are resolved here, exactly once.
func (o *Options) engineOptions() (*pebble.Options, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	var compression pebble.Compression
	switch o.Compression {
	case NoCompression:
		compression = pebble.NoCompression
	case SnappyCompression:
		compression = pebble.SnappyCompression
	case ZlibCompression, Bzip2Compression:
		return nil, classified(ErrNotSupported,
			errDetail(o.Compression.String()+" compression is not linked with this engine build"))
	}

	logger := o.logger()

	popts := &pebble.Options{
		ErrorIfExists:               o.ErrorIfExists,
		ErrorIfNotExists:            !o.CreateIfMissing,
		MaxOpenFiles:                o.MaxOpenFiles,
		L0CompactionThreshold:       o.Level0FileNumCompactionTrigger,
		L0StopWritesThreshold:       o.Level0StopWritesTrigger,
		LBaseMaxBytes:               o.MaxBytesForLevelBase,
		DisableAutomaticCompactions: o.DisableAutoCompactions,
		DisableWAL:                  o.DisableWAL,
		WALDir:                      o.WALDir,
		MaxManifestFileSize:         o.MaxManifestFileSize,
		BytesPerSync:                o.BytesPerSync,
		WALBytesPerSync:             o.WALBytesPerSync,
		FlushSplitBytes:             o.FlushSplitBytes,
		TargetByteDeletionRate:      o.TargetByteDeletionRate,
		Logger:                      engineLogger{logger.Sugar()},
	}
	if o.WriteBufferSize > 0 {
		popts.MemTableSize = uint64(o.WriteBufferSize)
	}
	if o.MaxWriteBufferNumber >= 2 {
		popts.MemTableStopWritesThreshold = o.MaxWriteBufferNumber
	}
	if n := o.MaxBackgroundCompactions; n > 0 {
		popts.MaxConcurrentCompactions = func() int { return n }
	}
	if o.BlockCache != nil {
		popts.Cache = o.BlockCache.engineCache()
	}
	if o.LogEngineEvents {
		el := pebble.MakeLoggingEventListener(engineLogger{logger.Sugar()})
		popts.EventListener = &el
	}

	// Comparator slot. The built-in bytewise comparator maps to the
	// engine default; anything else goes through the bridge.
	var split func([]byte) int
	if o.PrefixExtractor != nil {
		split = o.PrefixExtractor.split
	}
	if o.Comparator != nil && !isBytewise(o.Comparator) {
		popts.Comparer = newComparer(o.Comparator, split, logger)
	} else if split != nil {
		comparer := *pebble.DefaultComparer
		comparer.Split = split
		popts.Comparer = &comparer
	}

	if o.MergeOperator != nil {
		popts.Merger = newMerger(o.MergeOperator, logger)
	}

	// Filter slot. The built-in bloom policy maps to the engine's native
	// bloom filter, same treatment as the bytewise comparator; custom
	// policies go through the bridge.
	var filterPolicy pebble.FilterPolicy
	if o.FilterPolicy != nil {
		if b, ok := o.FilterPolicy.(*BloomFilterPolicy); ok {
			filterPolicy = bloom.FilterPolicy(b.BitsPerKey())
		} else {
			filterPolicy = newFilterBridge(o.FilterPolicy, logger)
		}
	}

	levels := make([]pebble.LevelOptions, 7)
	targetFileSize := o.TargetFileSizeBase
	for i := range levels {
		l := &levels[i]
		l.BlockSize = o.BlockSize
		l.BlockRestartInterval = o.BlockRestartInterval
		l.IndexBlockSize = o.IndexBlockSize
		l.Compression = compression
		l.TargetFileSize = targetFileSize
		if o.TargetFileSizeMultiplier > 1 {
			targetFileSize *= int64(o.TargetFileSizeMultiplier)
		}
		if filterPolicy != nil {
			l.FilterPolicy = filterPolicy
			l.FilterType = pebble.TableFilter
		}
	}
	popts.Levels = levels

	return popts, nil
}

func isBytewise(c Comparator) bool {
	switch c.(type) {
	case BytewiseComparator, *BytewiseComparator:
		return true
	}
	return false
}

// ReadOptions contains options for read operations.
type ReadOptions struct {
	// VerifyChecksums requests checksum verification on reads. The
	// engine verifies block checksums unconditionally; the field is
	// accepted for compatibility.
	VerifyChecksums bool

	// FillCache indicates whether blocks read should populate the block
	// cache.
	FillCache bool

	// PrefixSeek makes Seek position within the target key's prefix
	// only, using prefix filters when configured. Requires a
	// PrefixExtractor on the database.
	PrefixSeek bool

	// Snapshot pins reads to a point-in-time view. Nil reads the most
	// recent state.
	Snapshot *Snapshot

	// ReadTier restricts where the read may be served from.
	ReadTier ReadTier

	// IterateLowerBound restricts iterators to keys >= the bound.
	IterateLowerBound []byte

	// IterateUpperBound restricts iterators to keys < the bound.
	IterateUpperBound []byte
}

// DefaultReadOptions returns ReadOptions with default values.
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{
		FillCache: true,
		ReadTier:  ReadTierAll,
	}
}

// validate rejects unrecognized enumerated settings.
func (ro *ReadOptions) validate() error {
	if ro == nil {
		return nil
	}
	switch ro.ReadTier {
	case ReadTierAll, ReadTierCache:
	default:
		return classified(ErrInvalidArgument, errDetail("unrecognized read tier"))
	}
	if ro.Snapshot != nil && ro.Snapshot.released.Load() {
		return ErrSnapshotReleased
	}
	return nil
}

func (ro *ReadOptions) tier() ReadTier {
	if ro == nil {
		return ReadTierAll
	}
	return ro.ReadTier
}

// WriteOptions contains options for write operations.
type WriteOptions struct {
	// Sync flushes the write to the log and syncs it to stable storage
	// before returning. Strongest durability, lowest throughput.
	Sync bool

	// DisableWAL asks the engine to skip the write-ahead log for this
	// write. The engine cannot bypass the log for an individual commit,
	// so the write is applied without a durability sync instead; use
	// Options.DisableWAL to bypass the log for the whole database.
	DisableWAL bool
}

// DefaultWriteOptions returns WriteOptions with default values.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{}
}
