// Package hashcash implements a Hashcash-style proof-of-work: find a nonce
// such that hash(prefix || nonce_be64) has at least `difficulty` leading
// zero bits.
//
// The Rust original parameterises this over a generic digest trait
// (`Hashcash<Data, D: Digest>`); Go's equivalent is a hash.Hash factory
// function, the same pattern crypto/hmac uses.
package hashcash

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash"
	"math"
)

// ErrNonceExhausted is returned by Compute when no nonce in [0, math.MaxUint64)
// satisfies the requested difficulty. Theoretical for any difficulty that is
// reachable in practice; mirrors resolver::error::Error::NonceNotFound in
// the original implementation.
var ErrNonceExhausted = errors.New("hashcash: nonce space exhausted")

// Hashcash searches for, and verifies, proof-of-work solutions over a fixed
// prefix using the digest produced by newHash.
type Hashcash struct {
	newHash func() hash.Hash
	prefix  []byte
}

// New returns a Hashcash bound to prefix, hashed with newHash().
func New(newHash func() hash.Hash, prefix []byte) *Hashcash {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &Hashcash{newHash: newHash, prefix: p}
}

// Compute performs a linear scan over nonce values starting at 0, returning
// the first (hash, nonce) pair whose hash has at least `difficulty` leading
// zero bits. Deterministic given prefix and newHash.
func (h *Hashcash) Compute(difficulty uint32) (sum []byte, nonce uint64, err error) {
	var nonceBuf [8]byte
	for n := uint64(0); n < math.MaxUint64; n++ {
		binary.BigEndian.PutUint64(nonceBuf[:], n)
		sum := h.digest(nonceBuf[:])
		if leadingZeroBits(sum) >= difficulty {
			return sum, n, nil
		}
	}
	return nil, 0, ErrNonceExhausted
}

// Verify reports whether inputHash is exactly the digest of (prefix, nonce)
// and that digest satisfies difficulty.
func (h *Hashcash) Verify(inputHash []byte, nonce uint64, difficulty uint32) bool {
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	sum := h.digest(nonceBuf[:])
	return bytes.Equal(sum, inputHash) && leadingZeroBits(sum) >= difficulty
}

func (h *Hashcash) digest(nonce []byte) []byte {
	hh := h.newHash()
	hh.Write(h.prefix)
	hh.Write(nonce)
	return hh.Sum(nil)
}

// leadingZeroBits counts leading zero bits MSB-first, stopping at the first
// non-zero byte, matching the Rust reference's check_difficulty: it does
// NOT keep scanning past a byte with any set bit.
func leadingZeroBits(sum []byte) uint32 {
	var zeros uint32
	for _, b := range sum {
		z := leadingZerosByte(b)
		zeros += z
		if z != 8 {
			break
		}
	}
	return zeros
}

func leadingZerosByte(b byte) uint32 {
	if b == 0 {
		return 8
	}
	var n uint32
	for b&0x80 == 0 {
		n++
		b <<= 1
	}
	return n
}
