// Package sntrup adapts Streamlined NTRU Prime 4591761 to the qHybrid
// component interface.
package sntrup

import (
	"crypto/subtle"
	"io"

	ntru "github.com/companyzero/sntrup4591761"
	"github.com/pkg/errors"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	Name = "sntrup4591761"

	SharedSecretSize = 32

	domainReject = "qhybrid-sntrup-reject-v1"
)

var _ qhybrid.Scheme = Scheme{}

// Scheme is sntrup4591761.
type Scheme struct{}

// New returns the sntrup4591761 component.
func New() Scheme { return Scheme{} }

func (Scheme) Name() string          { return Name }
func (Scheme) PublicKeySize() int    { return ntru.PublicKeySize }
func (Scheme) SecretKeySize() int    { return ntru.PrivateKeySize }
func (Scheme) CiphertextSize() int   { return ntru.CiphertextSize }
func (Scheme) SharedSecretSize() int { return SharedSecretSize }

type PublicKey struct {
	key ntru.PublicKey
}

func (pk *PublicKey) Bytes() []byte { return append([]byte(nil), pk.key[:]...) }

type SecretKey struct {
	key ntru.PrivateKey
}

func (sk *SecretKey) Bytes() []byte { return append([]byte(nil), sk.key[:]...) }

func (sk *SecretKey) Zeroize() { utils.Zeroize(sk.key[:]) }

func (Scheme) GenerateKeyPair(rng io.Reader) (qhybrid.ComponentPublicKey, qhybrid.ComponentSecretKey, error) {
	pk, sk, err := ntru.GenerateKey(rng)
	if err != nil {
		return nil, nil, errors.Wrapf(qhybrid.ErrEntropyUnavailable, "sntrup: %v", err)
	}
	out := &SecretKey{key: *sk}
	utils.Zeroize(sk[:])
	return &PublicKey{key: *pk}, out, nil
}

func (Scheme) Encapsulate(rng io.Reader, pk qhybrid.ComponentPublicKey) ([]byte, []byte, error) {
	npk, ok := pk.(*PublicKey)
	if !ok {
		return nil, nil, errors.Wrapf(qhybrid.ErrSchemeMismatch, "sntrup: public key of type %T", pk)
	}
	ct, ss, err := ntru.Encapsulate(rng, &npk.key)
	if err != nil {
		return nil, nil, errors.Wrapf(qhybrid.ErrEntropyUnavailable, "sntrup: %v", err)
	}
	return append([]byte(nil), ct[:]...), append([]byte(nil), ss[:]...), nil
}

// Decapsulate maps sntrup's explicit failure flag onto implicit rejection:
// the reject value H(sk, ct) is selected in constant time.
func (Scheme) Decapsulate(sk qhybrid.ComponentSecretKey, ct []byte) []byte {
	nsk, ok := sk.(*SecretKey)
	if !ok {
		return utils.Hash(domainReject, nil, ct)
	}
	reject := utils.Hash(domainReject, nsk.key[:], ct)
	if len(ct) != ntru.CiphertextSize {
		return reject
	}
	var c ntru.Ciphertext
	copy(c[:], ct)
	shared, valid := ntru.Decapsulate(&c, &nsk.key)
	ss := make([]byte, SharedSecretSize)
	if shared != nil {
		copy(ss, shared[:])
	}
	return utils.ConstantTimeSelect(subtle.ConstantTimeEq(int32(valid), 1), ss, reject)
}

func (Scheme) ParsePublicKey(data []byte) (qhybrid.ComponentPublicKey, error) {
	if len(data) != ntru.PublicKeySize {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "sntrup public key: %d bytes", len(data))
	}
	pk := &PublicKey{}
	copy(pk.key[:], data)
	return pk, nil
}

func (Scheme) ParseSecretKey(data []byte) (qhybrid.ComponentSecretKey, error) {
	if len(data) != ntru.PrivateKeySize {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "sntrup secret key: %d bytes", len(data))
	}
	sk := &SecretKey{}
	copy(sk.key[:], data)
	return sk, nil
}
