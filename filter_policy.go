package quarry

// filter_policy.go implements filter policies and their engine bridge.
//
// A FilterPolicy builds a compact existence filter for the keys of each
// table block and probes it during reads. The built-in policy is a
// bits-per-key Bloom filter; custom policies supply their own construction
// and probe logic and are adapted to the engine's filter shape by
// newFilterBridge.

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/mharshe/quarry/internal/filter"
)

// FilterPolicy builds and probes per-table existence filters.
//
// The contract is the Bloom contract: KeyMayMatch may answer true for a key
// that was never added (false positive), but must never answer false for a
// key that was (false negative).
type FilterPolicy interface {
	// Name returns the name of the policy. It is persisted with the
	// tables that used it.
	Name() string

	// CreateFilter builds filter bytes summarizing keys.
	CreateFilter(keys [][]byte) []byte

	// KeyMayMatch probes filterData for key.
	KeyMayMatch(key, filterData []byte) bool
}

// BloomFilterPolicy is the built-in bits-per-key probabilistic filter.
type BloomFilterPolicy struct {
	bitsPerKey int
}

// NewBloomFilterPolicy returns a Bloom filter policy with the given
// bits-per-key budget. 10 bits per key yields roughly a 1% false-positive
// rate.
//
// When configured on Options, the built-in policy resolves to the engine's
// native bloom filter rather than crossing the bridge; CreateFilter and
// KeyMayMatch remain available for direct use.
func NewBloomFilterPolicy(bitsPerKey int) *BloomFilterPolicy {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return &BloomFilterPolicy{bitsPerKey: bitsPerKey}
}

// Name returns the policy name.
func (p *BloomFilterPolicy) Name() string {
	return fmt.Sprintf("quarry.BloomFilter(%d)", p.bitsPerKey)
}

// BitsPerKey returns the configured bits-per-key budget.
func (p *BloomFilterPolicy) BitsPerKey() int {
	return p.bitsPerKey
}

// CreateFilter builds a Bloom filter over keys.
func (p *BloomFilterPolicy) CreateFilter(keys [][]byte) []byte {
	b := filter.NewBuilder(p.bitsPerKey)
	for _, key := range keys {
		b.AddKey(key)
	}
	return b.Finish()
}

// KeyMayMatch probes the filter. False is definitive absence.
func (p *BloomFilterPolicy) KeyMayMatch(key, filterData []byte) bool {
	return filter.MayContain(filterData, key)
}

// validateFilterPolicy checks the capability contract once, at
// configuration time.
func validateFilterPolicy(p FilterPolicy) error {
	if p == nil {
		return classified(ErrInvalidArgument, errDetail("filter policy is nil"))
	}
	if p.Name() == "" {
		return classified(ErrInvalidArgument, errDetail("filter policy has no name"))
	}
	return nil
}

// =============================================================================
// Engine bridge
// =============================================================================

// filterBridge adapts a FilterPolicy to the engine's native filter shape.
// The engine builds filters on background flush and compaction goroutines;
// both directions of the bridge contain faults. A failed or panicking
// CreateFilter yields an empty filter, which probes as "may exist" — a
// safe degradation that can never introduce a false negative.
type filterBridge struct {
	policy FilterPolicy
	logger *zap.Logger
}

func newFilterBridge(policy FilterPolicy, logger *zap.Logger) pebble.FilterPolicy {
	return &filterBridge{policy: policy, logger: logger}
}

func (b *filterBridge) Name() string {
	return b.policy.Name()
}

func (b *filterBridge) MayContain(ftype pebble.FilterType, filterData, key []byte) (may bool) {
	if len(filterData) == 0 {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			logCallbackPanic(b.logger, "FilterPolicy.KeyMayMatch", r)
			may = true
		}
	}()
	return b.policy.KeyMayMatch(key, filterData)
}

func (b *filterBridge) NewWriter(ftype pebble.FilterType) pebble.FilterWriter {
	return &filterWriter{bridge: b}
}

type filterWriter struct {
	bridge *filterBridge
	keys   [][]byte
}

func (w *filterWriter) AddKey(key []byte) {
	w.keys = append(w.keys, copyBytes(key))
}

func (w *filterWriter) Finish(buf []byte) []byte {
	data, ok := w.createFilter()
	if !ok {
		return buf
	}
	return append(buf, data...)
}

func (w *filterWriter) createFilter() (data []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logCallbackPanic(w.bridge.logger, "FilterPolicy.CreateFilter", r)
			data, ok = nil, false
		}
	}()
	return w.bridge.policy.CreateFilter(w.keys), true
}
