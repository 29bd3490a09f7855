package utils

import (
	"crypto/subtle"
	"runtime"

	"github.com/pkg/errors"
)

// ConstantTimeEqual compares two byte slices in constant time.
// Only the lengths leak.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeSelect returns a copy of a when cond is 1 and of b when cond is 0.
func ConstantTimeSelect(cond int, a, b []byte) []byte {
	if len(a) != len(b) {
		panic("utils: select operands must have the same length")
	}
	out := make([]byte, len(a))
	copy(out, b)
	subtle.ConstantTimeCopy(cond, out, a)
	return out
}

// Zeroize overwrites a byte slice with zeros.
// runtime.KeepAlive keeps the compiler from dropping the stores.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// ZeroizeUint16 overwrites a uint16 slice with zeros.
func ZeroizeUint16(s []uint16) {
	for i := range s {
		s[i] = 0
	}
	runtime.KeepAlive(s)
}

// ZeroizeInt8 overwrites an int8 slice with zeros.
func ZeroizeInt8(s []int8) {
	for i := range s {
		s[i] = 0
	}
	runtime.KeepAlive(s)
}

// ZeroizeUint64 overwrites a uint64 slice with zeros.
func ZeroizeUint64(s []uint64) {
	for i := range s {
		s[i] = 0
	}
	runtime.KeepAlive(s)
}

// ValidateSeedEntropy rejects seeds that are obviously not random: too short,
// constant, sequential, or using fewer than eight distinct byte values.
// It is a sanity check, not a statistical test.
func ValidateSeedEntropy(seed []byte) error {
	if len(seed) < 32 {
		return errors.New("seed must be at least 32 bytes")
	}
	ascending, descending := true, true
	distinct := make(map[byte]struct{}, 8)
	for i, b := range seed {
		if len(distinct) < 8 {
			distinct[b] = struct{}{}
		}
		if i == 0 {
			continue
		}
		if b != seed[i-1]+1 {
			ascending = false
		}
		if b != seed[i-1]-1 {
			descending = false
		}
	}
	switch {
	case len(distinct) == 1:
		return errors.New("seed has low entropy: all bytes are identical")
	case ascending || descending:
		return errors.New("seed has low entropy: sequential pattern detected")
	case len(distinct) < 8:
		return errors.New("seed has low entropy: insufficient byte diversity")
	}
	return nil
}
