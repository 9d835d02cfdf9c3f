// Package batch implements the serialized WriteBatch representation.
//
// WriteBatch Format:
//
//	Header (12 bytes):
//	  - 8 bytes: reserved sequence field (little-endian uint64, zero here;
//	    the engine assigns sequence numbers when the batch is applied)
//	  - 4 bytes: count (little-endian uint32)
//	Records (repeated):
//	  - 1 byte: tag (record type)
//	  - varint-length-prefixed key
//	  - (for Put/Merge): varint-length-prefixed value
//
// The representation is self-contained: it can be stored, shipped, and
// later reconstructed with NewFromData and re-applied.
package batch

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the size in bytes of the WriteBatch header.
const HeaderSize = 12

// Record types for WriteBatch entries.
const (
	TypeDeletion byte = 0x00
	TypeValue    byte = 0x01
	TypeMerge    byte = 0x02
)

var (
	// ErrCorrupted indicates a malformed WriteBatch representation.
	ErrCorrupted = errors.New("batch: corrupted write batch")

	// ErrTooSmall indicates the representation is smaller than the
	// header.
	ErrTooSmall = errors.New("batch: too small")
)

// WriteBatch is an ordered collection of writes to be applied atomically.
// Keys and values are copied into the batch's representation.
type WriteBatch struct {
	data []byte // raw batch data including header
}

// New creates a new empty WriteBatch.
func New() *WriteBatch {
	return &WriteBatch{data: make([]byte, HeaderSize)}
}

// NewFromData reconstructs a WriteBatch from a serialized representation.
// The data is validated record by record.
func NewFromData(data []byte) (*WriteBatch, error) {
	if len(data) < HeaderSize {
		return nil, ErrTooSmall
	}
	wb := &WriteBatch{data: append([]byte(nil), data...)}
	// A full scan both validates structure and checks the header count.
	n := 0
	if err := wb.Iterate(countHandler{&n}); err != nil {
		return nil, err
	}
	if uint32(n) != wb.Count() {
		return nil, ErrCorrupted
	}
	return wb, nil
}

type countHandler struct{ n *int }

func (h countHandler) Put(key, value []byte) error   { *h.n++; return nil }
func (h countHandler) Merge(key, value []byte) error { *h.n++; return nil }
func (h countHandler) Delete(key []byte) error       { *h.n++; return nil }

// Clear resets the batch to empty, allowing reuse.
func (wb *WriteBatch) Clear() {
	wb.data = wb.data[:HeaderSize]
	binary.LittleEndian.PutUint64(wb.data[0:8], 0)
	binary.LittleEndian.PutUint32(wb.data[8:12], 0)
}

// Data returns the serialized representation.
func (wb *WriteBatch) Data() []byte {
	return wb.data
}

// Size returns the size of the representation in bytes.
func (wb *WriteBatch) Size() int {
	return len(wb.data)
}

// Count returns the number of records in the batch.
func (wb *WriteBatch) Count() uint32 {
	return binary.LittleEndian.Uint32(wb.data[8:12])
}

func (wb *WriteBatch) setCount(count uint32) {
	binary.LittleEndian.PutUint32(wb.data[8:12], count)
}

// Empty reports whether the batch holds no records.
func (wb *WriteBatch) Empty() bool {
	return wb.Count() == 0
}

// Put adds a Put record to the batch.
func (wb *WriteBatch) Put(key, value []byte) {
	wb.data = append(wb.data, TypeValue)
	wb.data = appendLengthPrefixed(wb.data, key)
	wb.data = appendLengthPrefixed(wb.data, value)
	wb.setCount(wb.Count() + 1)
}

// Merge adds a Merge record to the batch.
func (wb *WriteBatch) Merge(key, value []byte) {
	wb.data = append(wb.data, TypeMerge)
	wb.data = appendLengthPrefixed(wb.data, key)
	wb.data = appendLengthPrefixed(wb.data, value)
	wb.setCount(wb.Count() + 1)
}

// Delete adds a Delete record to the batch.
func (wb *WriteBatch) Delete(key []byte) {
	wb.data = append(wb.data, TypeDeletion)
	wb.data = appendLengthPrefixed(wb.data, key)
	wb.setCount(wb.Count() + 1)
}

// Append appends the records of another batch to this batch.
func (wb *WriteBatch) Append(src *WriteBatch) {
	if src.Count() == 0 {
		return
	}
	wb.data = append(wb.data, src.data[HeaderSize:]...)
	wb.setCount(wb.Count() + src.Count())
}

// Handler receives each record in the batch during iteration.
type Handler interface {
	Put(key, value []byte) error
	Merge(key, value []byte) error
	Delete(key []byte) error
}

// Iterate replays the batch's records, in order, into handler. It stops
// at the first handler error and returns it; a malformed representation
// returns ErrCorrupted.
func (wb *WriteBatch) Iterate(handler Handler) error {
	data := wb.data[HeaderSize:]
	for len(data) > 0 {
		tag := data[0]
		data = data[1:]

		key, rest, ok := getLengthPrefixed(data)
		if !ok {
			return ErrCorrupted
		}
		data = rest

		switch tag {
		case TypeValue, TypeMerge:
			value, rest, ok := getLengthPrefixed(data)
			if !ok {
				return ErrCorrupted
			}
			data = rest
			var err error
			if tag == TypeValue {
				err = handler.Put(key, value)
			} else {
				err = handler.Merge(key, value)
			}
			if err != nil {
				return err
			}
		case TypeDeletion:
			if err := handler.Delete(key); err != nil {
				return err
			}
		default:
			return ErrCorrupted
		}
	}
	return nil
}

// appendLengthPrefixed appends a varint length followed by the bytes.
func appendLengthPrefixed(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// getLengthPrefixed decodes a varint length-prefixed slice from data,
// returning the slice and the remainder.
func getLengthPrefixed(data []byte) (b, rest []byte, ok bool) {
	n, width := binary.Uvarint(data)
	if width <= 0 || n > uint64(len(data)-width) {
		return nil, nil, false
	}
	return data[width : width+int(n)], data[width+int(n):], true
}
