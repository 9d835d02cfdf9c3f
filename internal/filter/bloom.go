// Package filter implements the Bloom filter backing the built-in filter
// policy.
//
// The filter is the classic single-array Bloom layout: a bit array sized at
// bitsPerKey bits per added key, followed by one trailing byte recording the
// probe count. Probes use XXH3 double hashing. False positives are possible;
// false negatives are not.
//
// Filter format:
//
//	data[0:len-1]  = bit array
//	data[len-1]    = number of probes per key
package filter

import (
	"math"

	"github.com/zeebo/xxh3"
)

// MaxProbes caps the probe count; beyond ~30 probes the false-positive
// curve is flat and probing cost dominates.
const MaxProbes = 30

// Builder collects key hashes and produces a filter.
type Builder struct {
	bitsPerKey int
	hashes     []uint64
}

// NewBuilder creates a filter builder. bitsPerKey controls accuracy
// (10 bits per key gives roughly a 1% false-positive rate).
func NewBuilder(bitsPerKey int) *Builder {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return &Builder{bitsPerKey: bitsPerKey}
}

// AddKey adds a key to the filter under construction.
func (b *Builder) AddKey(key []byte) {
	b.hashes = append(b.hashes, xxh3.Hash(key))
}

// NumKeys returns the number of keys added so far.
func (b *Builder) NumKeys() int {
	return len(b.hashes)
}

// Finish builds the filter bytes. The builder can be reused afterwards by
// adding more keys, but the returned filter covers only the keys added
// before the call.
func (b *Builder) Finish() []byte {
	numProbes := probeCount(b.bitsPerKey)
	bits := len(b.hashes) * b.bitsPerKey
	// Small filters have high false-positive rates; 64 bits is the floor.
	if bits < 64 {
		bits = 64
	}
	nBytes := (bits + 7) / 8
	bits = nBytes * 8

	data := make([]byte, nBytes+1)
	data[nBytes] = byte(numProbes)
	for _, h := range b.hashes {
		delta := h>>33 | h<<31
		for j := 0; j < numProbes; j++ {
			pos := h % uint64(bits)
			data[pos/8] |= 1 << (pos % 8)
			h += delta
		}
	}
	return data
}

// MayContain probes the filter for a key. A false return is definitive; a
// true return is probabilistic. Malformed or truncated filters answer true
// so that no present key is ever denied.
func MayContain(filter, key []byte) bool {
	if len(filter) < 2 {
		return true
	}
	numProbes := int(filter[len(filter)-1])
	if numProbes < 1 || numProbes > MaxProbes {
		// Reserved for future encodings.
		return true
	}
	bits := uint64(len(filter)-1) * 8

	h := xxh3.Hash(key)
	delta := h>>33 | h<<31
	for j := 0; j < numProbes; j++ {
		pos := h % bits
		if filter[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// probeCount derives the probe count from bits per key.
// ln(2) * bitsPerKey minimizes the false-positive rate.
func probeCount(bitsPerKey int) int {
	k := int(float64(bitsPerKey) * math.Ln2)
	if k < 1 {
		return 1
	}
	if k > MaxProbes {
		return MaxProbes
	}
	return k
}
