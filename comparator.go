package quarry

// comparator.go implements key comparison.
//
// Comparator defines the total ordering over keys in the database. The
// default is bytewise comparison. Custom comparators enable
// application-specific key ordering.
//
// The engine invokes the comparator on every key comparison, including from
// its background flush and compaction goroutines while internal locks are
// held. newComparer wraps caller logic in a fault boundary so a panic never
// unwinds into the engine.

import (
	"bytes"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// Comparator defines a total ordering over keys.
type Comparator interface {
	// Compare returns a value < 0 if a < b, 0 if a == b, > 0 if a > b.
	// It must define a total order and must be cheap: it runs on the
	// engine's hot path.
	Compare(a, b []byte) int

	// Name returns the name of the comparator. It is persisted with the
	// database; opening with a differently named comparator fails.
	Name() string
}

// BytewiseComparator is the default comparator that compares keys
// lexicographically.
type BytewiseComparator struct{}

// Compare compares two keys lexicographically.
func (c BytewiseComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Name returns the comparator name.
func (c BytewiseComparator) Name() string {
	return "quarry.BytewiseComparator"
}

// bytewise is the process-wide default instance. It is immutable and safe
// to share without synchronization.
var bytewise = BytewiseComparator{}

// DefaultComparator returns the default bytewise comparator.
func DefaultComparator() Comparator {
	return bytewise
}

// validateComparator checks the capability contract once, at configuration
// time rather than per call.
func validateComparator(c Comparator) error {
	if c == nil {
		return classified(ErrInvalidArgument, errDetail("comparator is nil"))
	}
	if c.Name() == "" {
		return classified(ErrInvalidArgument, errDetail("comparator has no name"))
	}
	return nil
}

// newComparer bridges a Comparator to the engine's native comparator shape.
// The built-in bytewise comparator never goes through here; it maps to the
// engine default directly (see Options.engineOptions).
//
// A panic inside caller logic is caught, logged with a stack trace, and
// reported as equality. Ordering under a faulting comparator is undefined,
// but the engine's stack is never unwound.
func newComparer(c Comparator, split func([]byte) int, logger *zap.Logger) *pebble.Comparer {
	compare := func(a, b []byte) (v int) {
		defer func() {
			if r := recover(); r != nil {
				logCallbackPanic(logger, "Comparator.Compare", r)
				v = 0
			}
		}()
		return c.Compare(a, b)
	}
	return &pebble.Comparer{
		Name:    c.Name(),
		Compare: compare,
		Equal: func(a, b []byte) bool {
			return compare(a, b) == 0
		},
		// Constant abbreviated keys are order-consistent with any
		// comparator; the engine falls back to full comparisons.
		AbbreviatedKey: func(key []byte) uint64 { return 0 },
		FormatKey:      pebble.DefaultComparer.FormatKey,
		// Returning the left key unchanged is always a valid separator
		// and successor under a caller-defined order.
		Separator: func(dst, a, b []byte) []byte {
			return append(dst, a...)
		},
		Successor: func(dst, a []byte) []byte {
			return append(dst, a...)
		},
		Split: split,
	}
}
