// write_batch.go implements the public WriteBatch API for atomic writes.
package quarry

import (
	"errors"

	"github.com/mharshe/quarry/internal/batch"
)

// WriteBatch holds an ordered collection of writes to be applied
// atomically. Keys and values are copied, so the caller may reuse its
// buffers after calling Put/Merge/Delete.
//
// A WriteBatch is independent of any database until it is applied with
// DB.Write, and can be reused by calling Clear afterwards.
//
// Example:
//
//	wb := quarry.NewWriteBatch()
//	wb.Put([]byte("key1"), []byte("value1"))
//	wb.Delete([]byte("key2"))
//	err := db.Write(wb, nil)
//	wb.Clear()
type WriteBatch struct {
	internal *batch.WriteBatch
}

// NewWriteBatch creates a new empty WriteBatch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{internal: batch.New()}
}

// NewWriteBatchFrom reconstructs a WriteBatch from a serialized
// representation previously obtained from Data. Malformed input reports
// ErrCorruption.
func NewWriteBatchFrom(data []byte) (*WriteBatch, error) {
	internal, err := batch.NewFromData(data)
	if err != nil {
		if errors.Is(err, batch.ErrCorrupted) || errors.Is(err, batch.ErrTooSmall) {
			return nil, classified(ErrCorruption, err)
		}
		return nil, translateErr(err)
	}
	return &WriteBatch{internal: internal}, nil
}

// Put adds a key-value pair to the batch.
func (wb *WriteBatch) Put(key, value []byte) {
	wb.internal.Put(key, value)
}

// Merge adds a merge operand for the key to the batch.
func (wb *WriteBatch) Merge(key, value []byte) {
	wb.internal.Merge(key, value)
}

// Delete adds a deletion for the key to the batch.
func (wb *WriteBatch) Delete(key []byte) {
	wb.internal.Delete(key)
}

// Clear resets the batch to empty, allowing it to be reused.
func (wb *WriteBatch) Clear() {
	wb.internal.Clear()
}

// Count returns the number of operations in the batch.
func (wb *WriteBatch) Count() uint32 {
	return wb.internal.Count()
}

// Empty reports whether the batch holds no operations.
func (wb *WriteBatch) Empty() bool {
	return wb.internal.Empty()
}

// Data returns the batch's serialized representation. The slice aliases
// the batch's buffer and is invalidated by further mutation.
func (wb *WriteBatch) Data() []byte {
	return wb.internal.Data()
}

// Append appends the operations of src to this batch.
func (wb *WriteBatch) Append(src *WriteBatch) {
	wb.internal.Append(src.internal)
}

// iterate replays the batch into handler, for use by DB.Write.
func (wb *WriteBatch) iterate(handler batch.Handler) error {
	return wb.internal.Iterate(handler)
}
