package filter

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloom_NoFalseNegatives(t *testing.T) {
	for _, n := range []int{1, 10, 100, 10000} {
		b := NewBuilder(10)
		keys := make([][]byte, n)
		for i := range keys {
			keys[i] = fmt.Appendf(nil, "key-%08d", i)
			b.AddKey(keys[i])
		}
		f := b.Finish()

		for _, key := range keys {
			require.True(t, MayContain(f, key), "n=%d: added key %q reported absent", n, key)
		}
	}
}

func TestBloom_FalsePositiveRate(t *testing.T) {
	const n = 10000
	b := NewBuilder(10)
	for i := 0; i < n; i++ {
		b.AddKey(fmt.Appendf(nil, "key-%08d", i))
	}
	f := b.Finish()

	rng := rand.New(rand.NewSource(42))
	falsePositives := 0
	const probes = 10000
	for p := 0; p < probes; p++ {
		key := fmt.Appendf(nil, "absent-%016x", rng.Int63())
		if MayContain(f, key) {
			falsePositives++
		}
	}
	// 10 bits per key gives roughly a 1% rate; allow generous slack.
	rate := float64(falsePositives) / probes
	require.LessOrEqual(t, rate, 0.05, "false positive rate too high")
}

func TestBloom_EmptyFilterMatchesEverything(t *testing.T) {
	// A filter too short to be well formed must err on the side of "maybe".
	for _, f := range [][]byte{nil, {}, {0x01}} {
		require.True(t, MayContain(f, []byte("anything")), "malformed filter %v", f)
	}
}

func TestBloom_SingleKeyFilter(t *testing.T) {
	b := NewBuilder(10)
	b.AddKey([]byte("a"))
	require.Equal(t, 1, b.NumKeys())

	f := b.Finish()
	require.GreaterOrEqual(t, len(f), 9)
	require.True(t, MayContain(f, []byte("a")))
}

func TestBloom_ProbeCountClamped(t *testing.T) {
	require.GreaterOrEqual(t, probeCount(1), 1)
	require.LessOrEqual(t, probeCount(1000), MaxProbes)
}
