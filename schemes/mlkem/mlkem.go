// Package mlkem adapts ML-KEM-768 (FIPS 203, from cloudflare/circl) to the
// qHybrid component interface, as a certified replacement for the lattice
// component.
package mlkem

import (
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/pkg/errors"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	Name = "ML-KEM-768"

	domainReject = "qhybrid-mlkem-reject-v1"
)

var _ qhybrid.Scheme = Scheme{}

// Scheme is ML-KEM-768.
type Scheme struct{}

// New returns the ML-KEM-768 component.
func New() Scheme { return Scheme{} }

func (Scheme) Name() string          { return Name }
func (Scheme) PublicKeySize() int    { return mlkem768.PublicKeySize }
func (Scheme) SecretKeySize() int    { return mlkem768.PrivateKeySize }
func (Scheme) CiphertextSize() int   { return mlkem768.CiphertextSize }
func (Scheme) SharedSecretSize() int { return mlkem768.SharedKeySize }

// PublicKey wraps an ML-KEM encapsulation key.
type PublicKey struct {
	key *mlkem768.PublicKey
}

func (pk *PublicKey) Bytes() []byte {
	buf := make([]byte, mlkem768.PublicKeySize)
	pk.key.Pack(buf)
	return buf
}

// SecretKey wraps an ML-KEM decapsulation key.
type SecretKey struct {
	key *mlkem768.PrivateKey
}

func (sk *SecretKey) Bytes() []byte {
	if sk.key == nil {
		return make([]byte, mlkem768.PrivateKeySize)
	}
	buf := make([]byte, mlkem768.PrivateKeySize)
	sk.key.Pack(buf)
	return buf
}

// Zeroize drops the key. circl keeps its own internal buffers, so this only
// releases the reference.
func (sk *SecretKey) Zeroize() { sk.key = nil }

func (Scheme) GenerateKeyPair(rng io.Reader) (qhybrid.ComponentPublicKey, qhybrid.ComponentSecretKey, error) {
	pk, sk, err := mlkem768.GenerateKeyPair(rng)
	if err != nil {
		return nil, nil, errors.Wrapf(qhybrid.ErrEntropyUnavailable, "mlkem: %v", err)
	}
	return &PublicKey{key: pk}, &SecretKey{key: sk}, nil
}

func (Scheme) Encapsulate(rng io.Reader, pk qhybrid.ComponentPublicKey) ([]byte, []byte, error) {
	mpk, ok := pk.(*PublicKey)
	if !ok || mpk.key == nil {
		return nil, nil, errors.Wrapf(qhybrid.ErrSchemeMismatch, "mlkem: public key of type %T", pk)
	}
	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	defer utils.Zeroize(seed)
	if _, err := io.ReadFull(rng, seed); err != nil {
		return nil, nil, errors.Wrapf(qhybrid.ErrEntropyUnavailable, "mlkem: %v", err)
	}
	ct := make([]byte, mlkem768.CiphertextSize)
	ss := make([]byte, mlkem768.SharedKeySize)
	mpk.key.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// Decapsulate relies on ML-KEM's own implicit rejection for well-formed
// ciphertexts. Wrong-length input gets a hash-derived reject value instead
// of reaching circl, which panics on it.
func (Scheme) Decapsulate(sk qhybrid.ComponentSecretKey, ct []byte) []byte {
	msk, ok := sk.(*SecretKey)
	if !ok || msk.key == nil || len(ct) != mlkem768.CiphertextSize {
		var keyBytes []byte
		if ok {
			keyBytes = msk.Bytes()
		}
		return utils.Hash(domainReject, keyBytes, ct)
	}
	ss := make([]byte, mlkem768.SharedKeySize)
	msk.key.DecapsulateTo(ss, ct)
	return ss
}

func (Scheme) ParsePublicKey(data []byte) (qhybrid.ComponentPublicKey, error) {
	if len(data) != mlkem768.PublicKeySize {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "mlkem public key: %d bytes", len(data))
	}
	pk := new(mlkem768.PublicKey)
	if err := pk.Unpack(data); err != nil {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "mlkem public key: %v", err)
	}
	return &PublicKey{key: pk}, nil
}

func (Scheme) ParseSecretKey(data []byte) (qhybrid.ComponentSecretKey, error) {
	if len(data) != mlkem768.PrivateKeySize {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "mlkem secret key: %d bytes", len(data))
	}
	sk := new(mlkem768.PrivateKey)
	if err := sk.Unpack(data); err != nil {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "mlkem secret key: %v", err)
	}
	return &SecretKey{key: sk}, nil
}
