package batch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	kind  string
	key   string
	value string
}

// recordingHandler captures replayed records in order.
type recordingHandler struct {
	records []record
}

func (h *recordingHandler) Put(key, value []byte) error {
	h.records = append(h.records, record{"put", string(key), string(value)})
	return nil
}

func (h *recordingHandler) Merge(key, value []byte) error {
	h.records = append(h.records, record{"merge", string(key), string(value)})
	return nil
}

func (h *recordingHandler) Delete(key []byte) error {
	h.records = append(h.records, record{"delete", string(key), ""})
	return nil
}

func TestWriteBatch_IterateReplaysInOrder(t *testing.T) {
	wb := New()
	wb.Put([]byte("a"), []byte("1"))
	wb.Merge([]byte("b"), []byte("2"))
	wb.Delete([]byte("c"))
	wb.Put([]byte("d"), []byte(""))

	var h recordingHandler
	require.NoError(t, wb.Iterate(&h))
	require.Equal(t, []record{
		{"put", "a", "1"},
		{"merge", "b", "2"},
		{"delete", "c", ""},
		{"put", "d", ""},
	}, h.records)
}

func TestWriteBatch_CountTracksRecords(t *testing.T) {
	wb := New()
	require.True(t, wb.Empty())
	require.EqualValues(t, 0, wb.Count())

	wb.Put([]byte("a"), []byte("1"))
	wb.Delete([]byte("b"))
	require.EqualValues(t, 2, wb.Count())

	wb.Clear()
	require.EqualValues(t, 0, wb.Count())
	require.Equal(t, HeaderSize, wb.Size())
}

func TestWriteBatch_DataRoundtrip(t *testing.T) {
	wb := New()
	wb.Put([]byte("key"), bytes.Repeat([]byte("v"), 300)) // multi-byte varint length
	wb.Merge([]byte("m"), []byte("operand"))
	wb.Delete([]byte("key"))

	restored, err := NewFromData(wb.Data())
	require.NoError(t, err)
	require.EqualValues(t, 3, restored.Count())
	require.Equal(t, wb.Data(), restored.Data())

	// The restored batch owns its bytes.
	wb.Data()[HeaderSize] ^= 0xff
	require.NotEqual(t, wb.Data(), restored.Data())
}

func TestWriteBatch_NewFromDataRejectsMalformed(t *testing.T) {
	_, err := NewFromData(nil)
	require.ErrorIs(t, err, ErrTooSmall)
	_, err = NewFromData(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrTooSmall)

	wb := New()
	wb.Put([]byte("key"), []byte("value"))
	good := wb.Data()

	// Truncated mid-record.
	_, err = NewFromData(good[:len(good)-2])
	require.ErrorIs(t, err, ErrCorrupted)

	// Unknown record tag.
	bad := append([]byte(nil), good...)
	bad[HeaderSize] = 0x7f
	_, err = NewFromData(bad)
	require.ErrorIs(t, err, ErrCorrupted)

	// Header count disagrees with the records present.
	bad = append([]byte(nil), good...)
	bad[8] = 9
	_, err = NewFromData(bad)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestWriteBatch_AppendConcatenates(t *testing.T) {
	a := New()
	a.Put([]byte("x"), []byte("1"))
	b := New()
	b.Delete([]byte("y"))
	b.Merge([]byte("z"), []byte("2"))

	a.Append(b)
	require.EqualValues(t, 3, a.Count())

	var h recordingHandler
	require.NoError(t, a.Iterate(&h))
	require.Equal(t, []record{
		{"put", "x", "1"},
		{"delete", "y", ""},
		{"merge", "z", "2"},
	}, h.records)

	// Appending an empty batch changes nothing.
	before := append([]byte(nil), a.Data()...)
	a.Append(New())
	require.Equal(t, before, a.Data())
}

type haltingHandler struct {
	after int
	seen  int
}

var errHalt = errors.New("halt")

func (h *haltingHandler) Put(key, value []byte) error {
	h.seen++
	if h.seen > h.after {
		return errHalt
	}
	return nil
}
func (h *haltingHandler) Merge(key, value []byte) error { return h.Put(key, value) }
func (h *haltingHandler) Delete(key []byte) error       { return h.Put(key, nil) }

func TestWriteBatch_IterateStopsOnHandlerError(t *testing.T) {
	wb := New()
	wb.Put([]byte("a"), []byte("1"))
	wb.Put([]byte("b"), []byte("2"))
	wb.Put([]byte("c"), []byte("3"))

	h := &haltingHandler{after: 1}
	require.ErrorIs(t, wb.Iterate(h), errHalt)
	require.Equal(t, 2, h.seen)
}
