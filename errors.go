package quarry

// errors.go implements the status translator.
//
// Every engine call result is funneled through translateErr exactly once;
// no call site reinterprets a raw engine error itself. The taxonomy is a
// closed set of sentinel kinds, and translated errors always carry the
// engine's original detail text for diagnosis.

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/cockroachdb/pebble"
)

// Error kinds returned by quarry operations. Use errors.Is to classify.
//
// ErrNotFound is non-fatal and expected during normal lookups. It is never
// returned by Get or MultiGet for a plain missing key — absence is a nil
// value there — but other operations (e.g. GetProperty lookups routed
// through the engine) may surface it.
var (
	ErrNotFound        = errors.New("quarry: not found")
	ErrCorruption      = errors.New("quarry: corruption")
	ErrNotSupported    = errors.New("quarry: not supported")
	ErrInvalidArgument = errors.New("quarry: invalid argument")
	ErrIOError         = errors.New("quarry: i/o error")
	ErrMergeInProgress = errors.New("quarry: merge in progress")
	ErrIncomplete      = errors.New("quarry: incomplete")
	ErrUnknown         = errors.New("quarry: unknown error")
)

// Errors raised by this layer before any engine call is made.
var (
	// ErrDBClosed is returned by operations on a closed DB.
	ErrDBClosed = errors.New("quarry: database is closed")

	// ErrSnapshotReleased is returned when a released snapshot is used.
	ErrSnapshotReleased = errors.New("quarry: snapshot already released")
)

// kinds is the classification priority order.
var kinds = []error{
	ErrNotFound,
	ErrCorruption,
	ErrNotSupported,
	ErrInvalidArgument,
	ErrIOError,
	ErrMergeInProgress,
	ErrIncomplete,
	ErrUnknown,
}

// classified wraps err under the given taxonomy kind, preserving the
// original detail text.
func classified(kind, err error) error {
	return fmt.Errorf("%w: %v", kind, err)
}

// errDetail turns a literal detail string into an error for classification.
func errDetail(msg string) error {
	return errors.New(msg)
}

// translateErr maps an engine error to the closed taxonomy. Errors already
// classified at this layer pass through unchanged.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, ErrDBClosed) || errors.Is(err, ErrSnapshotReleased) {
		return err
	}

	switch {
	case errors.Is(err, pebble.ErrNotFound):
		return classified(ErrNotFound, err)
	case pebble.IsCorruptionError(err):
		return classified(ErrCorruption, err)
	case errors.Is(err, errMergeOperatorFailed):
		// A failed user merge leaves the stored operands unresolvable,
		// which the engine reports as data corruption.
		return classified(ErrCorruption, err)
	case errors.Is(err, pebble.ErrReadOnly):
		return classified(ErrNotSupported, err)
	case errors.Is(err, pebble.ErrDBAlreadyExists),
		errors.Is(err, pebble.ErrDBDoesNotExist),
		errors.Is(err, pebble.ErrClosed):
		return classified(ErrInvalidArgument, err)
	case isIOError(err):
		return classified(ErrIOError, err)
	default:
		return classified(ErrUnknown, err)
	}
}

func isIOError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrClosed)
}
