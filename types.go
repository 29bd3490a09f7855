package qhybrid

import (
	"crypto/subtle"
	"io"
	"runtime"
)

// SecurityLevel names a fixed parameter set.
type SecurityLevel string

const (
	// Level128 targets 128-bit post-quantum security.
	Level128 SecurityLevel = "QH-128"
	// Level256 targets 256-bit post-quantum security.
	Level256 SecurityLevel = "QH-256"
)

// SharedSecretSize is the length of every combined shared secret.
const SharedSecretSize = 32

// =============================================================================
// Parameter Types
// =============================================================================

// LWEParams contains parameters for the matrix LWE component.
type LWEParams struct {
	N    int `json:"n"`     // Lattice dimension
	NBar int `json:"n_bar"` // Columns of the secret matrix
	LogQ int `json:"log_q"` // Modulus q = 2^LogQ
	B    int `json:"b"`     // Message bits per coefficient
	Eta  int `json:"eta"`   // Centered binomial bound
}

// McElieceParams contains parameters for the Goppa-code component.
type McElieceParams struct {
	M int `json:"m"` // Field degree, GF(2^M)
	N int `json:"n"` // Code length
	T int `json:"t"` // Error weight / correction radius
}

// HybridParams contains the complete parameter set for a security level.
type HybridParams struct {
	Level    SecurityLevel  `json:"level"`
	LWE      LWEParams      `json:"lwe"`
	McEliece McElieceParams `json:"mceliece"`
}

// =============================================================================
// Component Abstraction
// =============================================================================

// ComponentPublicKey is the public key of one component scheme.
type ComponentPublicKey interface {
	// Bytes returns the fixed-length encoding of the key.
	Bytes() []byte
}

// ComponentSecretKey is the secret key of one component scheme.
type ComponentSecretKey interface {
	// Bytes returns the fixed-length encoding of the key.
	Bytes() []byte
	// Zeroize wipes the key material held in memory.
	Zeroize()
}

// Scheme is a single KEM that the hybrid combiner can run.
//
// Decapsulate never fails: a ciphertext that does not decode yields an
// implicit-rejection secret of the usual length, so callers cannot observe
// whether decoding succeeded.
type Scheme interface {
	Name() string
	PublicKeySize() int
	SecretKeySize() int
	CiphertextSize() int
	SharedSecretSize() int

	GenerateKeyPair(rng io.Reader) (ComponentPublicKey, ComponentSecretKey, error)
	Encapsulate(rng io.Reader, pk ComponentPublicKey) (ct, ss []byte, err error)
	Decapsulate(sk ComponentSecretKey, ct []byte) []byte

	ParsePublicKey(data []byte) (ComponentPublicKey, error)
	ParseSecretKey(data []byte) (ComponentSecretKey, error)
}

// =============================================================================
// Shared Secret
// =============================================================================

// SharedSecret is the combined output of encapsulation and decapsulation.
type SharedSecret [SharedSecretSize]byte

// Bytes returns the secret as a slice aliasing the array.
func (s *SharedSecret) Bytes() []byte {
	return s[:]
}

// Equal compares two secrets in constant time.
func (s *SharedSecret) Equal(other *SharedSecret) bool {
	if s == nil || other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

// Zeroize overwrites the secret with zeros.
func (s *SharedSecret) Zeroize() {
	for i := range s {
		s[i] = 0
	}
	runtime.KeepAlive(s)
}
