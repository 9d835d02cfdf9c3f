package quarry

// merge_operator.go implements the merge operator and its engine bridge.
//
// MergeOperator allows users to define custom merge semantics for atomic
// read-modify-write operations like counters and append-only lists. The
// engine calls the operator during reads, iteration, and background
// compaction; newMerger adapts the operator to the engine's native merge
// shape and contains any fault raised inside caller logic.

import (
	"errors"
	"io"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// errMergeOperatorFailed is the in-band failure signal produced when a
// merge callback reports failure or panics. The status translator
// classifies it as corruption: the stored operand chain can no longer be
// resolved.
var errMergeOperatorFailed = errors.New("merge operator failed")

// MergeOperator is the interface for user-defined merge operations.
//
// A MergeOperator specifies the semantics of a merge operation, which only
// the client knows. It could be numeric addition, list append, string
// concatenation, or any custom operation.
//
// For simple associative operations, implement AssociativeMergeOperator
// and wrap it with NewAssociativeMergeOperator instead.
type MergeOperator interface {
	// Name returns a unique identifier for this merge operator. It is
	// persisted with the database and checked on reopen.
	Name() string

	// FullMerge combines an existing value (nil if the key has none) with
	// a list of operands, oldest first. Returning ok=false marks the
	// merge as failed.
	FullMerge(key, existingValue []byte, operands [][]byte) (newValue []byte, ok bool)

	// PartialMerge combines two adjacent operands into one, without
	// access to the base value. It is an optimization; returning
	// (nil, false) is always valid and keeps both operands.
	PartialMerge(key, leftOperand, rightOperand []byte) (newOperand []byte, ok bool)
}

// AssociativeMergeOperator is a simplified interface for associative
// operations, where Merge(Merge(a, b), c) == Merge(a, Merge(b, c)).
// Examples: numeric addition, string concatenation, set union.
type AssociativeMergeOperator interface {
	// Name returns a unique identifier for this merge operator.
	Name() string

	// Merge folds one operand into the existing value. A nil
	// existingValue is the identity element for the operation.
	Merge(key, existingValue, value []byte) ([]byte, bool)
}

// NewAssociativeMergeOperator adapts an AssociativeMergeOperator to the
// full MergeOperator shape by folding operands pairwise, left to right.
func NewAssociativeMergeOperator(op AssociativeMergeOperator) MergeOperator {
	return &associativeAdapter{op: op}
}

type associativeAdapter struct {
	op AssociativeMergeOperator
}

func (a *associativeAdapter) Name() string { return a.op.Name() }

func (a *associativeAdapter) FullMerge(key, existingValue []byte, operands [][]byte) ([]byte, bool) {
	result := existingValue
	for _, op := range operands {
		var ok bool
		result, ok = a.op.Merge(key, result, op)
		if !ok {
			return nil, false
		}
	}
	return result, true
}

func (a *associativeAdapter) PartialMerge(key, left, right []byte) ([]byte, bool) {
	return a.op.Merge(key, left, right)
}

// validateMergeOperator checks the capability contract once, at
// configuration time.
func validateMergeOperator(op MergeOperator) error {
	if op == nil {
		return classified(ErrInvalidArgument, errDetail("merge operator is nil"))
	}
	if op.Name() == "" {
		return classified(ErrInvalidArgument, errDetail("merge operator has no name"))
	}
	return nil
}

// =============================================================================
// Built-in merge operators
// =============================================================================

// UInt64AddOperator treats values as little-endian uint64 and adds them.
type UInt64AddOperator struct{}

// Name returns the name of this merge operator.
func (o *UInt64AddOperator) Name() string { return "quarry.UInt64AddOperator" }

// FullMerge adds all operands to the existing value.
func (o *UInt64AddOperator) FullMerge(key, existingValue []byte, operands [][]byte) ([]byte, bool) {
	var result uint64
	if existingValue != nil {
		if len(existingValue) != 8 {
			return nil, false
		}
		result = decodeUint64(existingValue)
	}
	for _, op := range operands {
		if len(op) != 8 {
			return nil, false
		}
		result += decodeUint64(op)
	}
	return encodeUint64(result), true
}

// PartialMerge adds two operands together.
func (o *UInt64AddOperator) PartialMerge(key, left, right []byte) ([]byte, bool) {
	if len(left) != 8 || len(right) != 8 {
		return nil, false
	}
	return encodeUint64(decodeUint64(left) + decodeUint64(right)), true
}

// StringAppendOperator concatenates values with a delimiter.
type StringAppendOperator struct {
	Delimiter string
}

// Name returns the name of this merge operator.
func (o *StringAppendOperator) Name() string { return "quarry.StringAppendOperator" }

// FullMerge concatenates the existing value and all operands.
func (o *StringAppendOperator) FullMerge(key, existingValue []byte, operands [][]byte) ([]byte, bool) {
	var result []byte
	if existingValue != nil {
		result = append(result, existingValue...)
	}
	for _, op := range operands {
		if len(result) > 0 && len(op) > 0 {
			result = append(result, o.Delimiter...)
		}
		result = append(result, op...)
	}
	return result, true
}

// PartialMerge concatenates two operands with the delimiter.
func (o *StringAppendOperator) PartialMerge(key, left, right []byte) ([]byte, bool) {
	if len(left) == 0 {
		return append([]byte(nil), right...), true
	}
	if len(right) == 0 {
		return append([]byte(nil), left...), true
	}
	result := make([]byte, 0, len(left)+len(o.Delimiter)+len(right))
	result = append(result, left...)
	result = append(result, o.Delimiter...)
	result = append(result, right...)
	return result, true
}

// =============================================================================
// Engine bridge
// =============================================================================

// newMerger bridges a MergeOperator to the engine's native merge shape.
func newMerger(op MergeOperator, logger *zap.Logger) *pebble.Merger {
	return &pebble.Merger{
		Name: op.Name(),
		Merge: func(key, value []byte) (pebble.ValueMerger, error) {
			m := &valueMerger{op: op, logger: logger}
			m.key = append(m.key, key...)
			m.operands = append(m.operands, copyBytes(value))
			return m, nil
		},
	}
}

// valueMerger accumulates the operand chain for one key, oldest first. The
// engine feeds it from whichever direction the current operation iterates;
// the chain is folded when the engine asks for the final value.
type valueMerger struct {
	op       MergeOperator
	logger   *zap.Logger
	key      []byte
	operands [][]byte // oldest first
}

func (m *valueMerger) MergeNewer(value []byte) error {
	m.operands = append(m.operands, copyBytes(value))
	// Fold adjacent operands opportunistically. The oldest element is
	// never folded: it may turn out to be the base value.
	if len(m.operands) >= 3 {
		n := len(m.operands)
		if merged, ok := m.partialMerge(m.operands[n-2], m.operands[n-1]); ok {
			m.operands = append(m.operands[:n-2], merged)
		}
	}
	return nil
}

func (m *valueMerger) MergeOlder(value []byte) error {
	m.operands = append([][]byte{copyBytes(value)}, m.operands...)
	return nil
}

// Finish folds the accumulated chain. includesBase reports whether the
// engine reached the definitive bottom value for the key, in which case
// the oldest element is presented as the existing value.
func (m *valueMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	var existing []byte
	operands := m.operands
	if includesBase && len(operands) > 1 {
		existing = operands[0]
		operands = operands[1:]
	}
	result, ok := m.fullMerge(existing, operands)
	if !ok {
		return nil, nil, errMergeOperatorFailed
	}
	return result, nil, nil
}

// fullMerge invokes caller logic behind the fault boundary: a panic is
// logged with its stack and converted to the failure value.
func (m *valueMerger) fullMerge(existing []byte, operands [][]byte) (result []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logCallbackPanic(m.logger, "MergeOperator.FullMerge", r)
			result, ok = nil, false
		}
	}()
	return m.op.FullMerge(m.key, existing, operands)
}

func (m *valueMerger) partialMerge(left, right []byte) (result []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logCallbackPanic(m.logger, "MergeOperator.PartialMerge", r)
			result, ok = nil, false
		}
	}()
	return m.op.PartialMerge(m.key, left, right)
}

// =============================================================================
// Helpers
// =============================================================================

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

func decodeUint64(b []byte) uint64 {
	_ = b[7] // bounds check
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
