// Package utils provides hashing, constant-time and encoding helpers shared
// by the qHybrid components.
package utils

import (
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/sha3"
)

// MaxHashInputSize bounds every single input absorbed by Hash and XOF.
const MaxHashInputSize = 100 * 1024 * 1024

var shake256Pool = sync.Pool{
	New: func() interface{} {
		return sha3.NewShake256()
	},
}

// absorb writes the domain tag and the length-prefixed inputs into w.
// Prefixing every input keeps distinct input lists from colliding.
func absorb(w interface{ Write([]byte) (int, error) }, domain string, inputs [][]byte) {
	if len(domain) > 255 {
		panic("utils: domain string must be at most 255 bytes")
	}
	_, _ = w.Write([]byte{byte(len(domain))})
	_, _ = w.Write([]byte(domain))
	var lenBuf [4]byte
	for _, in := range inputs {
		if len(in) > MaxHashInputSize {
			panic("utils: hash input exceeds maximum size")
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(in)))
		_, _ = w.Write(lenBuf[:])
		_, _ = w.Write(in)
	}
}

// Hash returns SHA3-256 over the domain tag and the length-prefixed inputs.
func Hash(domain string, inputs ...[]byte) []byte {
	h := sha3.New256()
	absorb(h, domain, inputs)
	return h.Sum(nil)
}

// XOF returns outLen bytes of SHAKE256 over the domain tag and the
// length-prefixed inputs.
func XOF(domain string, outLen int, inputs ...[]byte) []byte {
	out := make([]byte, outLen)
	XOFInto(out, domain, inputs...)
	return out
}

// XOFInto fills dst with SHAKE256 output, like XOF.
func XOFInto(dst []byte, domain string, inputs ...[]byte) {
	h := shake256Pool.Get().(sha3.ShakeHash)
	defer func() {
		h.Reset()
		shake256Pool.Put(h)
	}()
	absorb(h, domain, inputs)
	_, _ = h.Read(dst)
}

// NewXOF returns a SHAKE256 reader keyed by the domain and inputs, for
// callers that consume an unknown amount of output (rejection sampling).
func NewXOF(domain string, inputs ...[]byte) sha3.ShakeHash {
	h := sha3.NewShake256()
	absorb(h, domain, inputs)
	return h
}
