package hashcash_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/biryukovmaxim/ddos-protection-task/internal/hashcash"
)

// S1 from spec.md §8: difficulty 8, fixed challenge bound to 127.0.0.1:40000.
func TestComputeVerify_S1(t *testing.T) {
	prefix := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x7F, 0x00, 0x00, 0x01, 0x9C, 0x40}
	hc := hashcash.New(sha256.New, prefix)

	sum, nonce, err := hc.Compute(8)
	require.NoError(t, err)
	require.True(t, hc.Verify(sum, nonce, 8))
}

// P2: for any random 14-byte prefix and difficulty <= 16, compute+verify
// round-trips, and corrupting the hash or nonce falsifies verify.
func TestPoWSoundness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prefix := rapid.SliceOfN(rapid.Byte(), 14, 14).Draw(rt, "prefix")
		difficulty := rapid.Uint32Range(0, 16).Draw(rt, "difficulty")

		hc := hashcash.New(sha256.New, prefix)
		sum, nonce, err := hc.Compute(difficulty)
		require.NoError(t, err)
		require.True(t, hc.Verify(sum, nonce, difficulty))

		corrupted := append([]byte(nil), sum...)
		corrupted[0] ^= 0xFF
		require.False(t, hc.Verify(corrupted, nonce, difficulty))

		require.False(t, hc.Verify(sum, nonce+1, difficulty))
	})
}

// P3: binding — a solution for one prefix does not verify against another.
func TestBinding(t *testing.T) {
	challenge := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	prefix1 := append(append([]byte{}, challenge...), 127, 0, 0, 1, 0x9C, 0x40)
	prefix2 := append(append([]byte{}, challenge...), 127, 0, 0, 1, 0x9C, 0x41)

	hc1 := hashcash.New(sha256.New, prefix1)
	hc2 := hashcash.New(sha256.New, prefix2)

	sum, nonce, err := hc1.Compute(8)
	require.NoError(t, err)
	require.True(t, hc1.Verify(sum, nonce, 8))
	require.False(t, hc2.Verify(sum, nonce, 8))
}

func TestLeadingZeroBitsBoundary(t *testing.T) {
	hc := hashcash.New(sha256.New, []byte("fixed-prefix"))
	sum, nonce, err := hc.Compute(0)
	require.NoError(t, err)
	require.True(t, hc.Verify(sum, nonce, 0))
}
