package kem

import (
	"github.com/pkg/errors"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/combiner"
	"github.com/BackendStack21/qhybrid-go/utils"
)

// maxComponentSize bounds a single length-prefixed component before the
// exact per-scheme size check.
const maxComponentSize = 16 << 20

// PublicKey is a hybrid public key. It is immutable once created.
type PublicKey struct {
	scheme  string
	a, b    qhybrid.ComponentPublicKey
	binding []byte
}

// Bytes returns u32le(len A) || A || u32le(len B) || B.
func (pk *PublicKey) Bytes() []byte {
	return utils.JoinPair(pk.a.Bytes(), pk.b.Bytes())
}

// Binding returns the 32-byte hash binding both component keys.
func (pk *PublicKey) Binding() []byte {
	return append([]byte(nil), pk.binding...)
}

// Scheme names the component pair the key belongs to.
func (pk *PublicKey) Scheme() string { return pk.scheme }

// SecretKey is a hybrid secret key. Call Zeroize when done with it.
type SecretKey struct {
	scheme  string
	a, b    qhybrid.ComponentSecretKey
	binding []byte
}

// Bytes returns u32le(len A) || A || u32le(len B) || B || binding.
func (sk *SecretKey) Bytes() []byte {
	out := utils.JoinPair(sk.a.Bytes(), sk.b.Bytes())
	return append(out, sk.binding...)
}

// Zeroize wipes both component keys.
func (sk *SecretKey) Zeroize() {
	if sk == nil {
		return
	}
	if sk.a != nil {
		sk.a.Zeroize()
	}
	if sk.b != nil {
		sk.b.Zeroize()
	}
}

// Ciphertext is a hybrid ciphertext.
type Ciphertext struct {
	scheme string
	a, b   []byte
}

// Bytes returns u32le(len A) || A || u32le(len B) || B.
func (ct *Ciphertext) Bytes() []byte {
	return utils.JoinPair(ct.a, ct.b)
}

// CiphertextSize is the encoded length of any ciphertext of this KEM.
func (k *KEM) CiphertextSize() int { return 8 + k.a.CiphertextSize() + k.b.CiphertextSize() }

// PublicKeySize is the encoded length of any public key of this KEM.
func (k *KEM) PublicKeySize() int { return 8 + k.a.PublicKeySize() + k.b.PublicKeySize() }

// SecretKeySize is the encoded length of any secret key of this KEM.
func (k *KEM) SecretKeySize() int {
	return 8 + k.a.SecretKeySize() + k.b.SecretKeySize() + combiner.BindingSize
}

func (k *KEM) newPublicKey(a, b qhybrid.ComponentPublicKey) *PublicKey {
	return &PublicKey{
		scheme:  k.name,
		a:       a,
		b:       b,
		binding: combiner.Binding(a.Bytes(), b.Bytes()),
	}
}

// ParsePublicKey decodes a public key produced by PublicKey.Bytes.
func (k *KEM) ParsePublicKey(data []byte) (*PublicKey, error) {
	rawA, rawB, err := k.split("public key", data, k.a.PublicKeySize(), k.b.PublicKeySize())
	if err != nil {
		return nil, err
	}
	a, err := k.a.ParsePublicKey(rawA)
	if err != nil {
		return nil, err
	}
	b, err := k.b.ParsePublicKey(rawB)
	if err != nil {
		return nil, err
	}
	return k.newPublicKey(a, b), nil
}

// ParseSecretKey decodes a secret key produced by SecretKey.Bytes.
func (k *KEM) ParseSecretKey(data []byte) (*SecretKey, error) {
	if len(data) < combiner.BindingSize {
		return nil, errors.Wrap(qhybrid.ErrInvalidKeyEncoding, "kem secret key: too short")
	}
	body, binding := data[:len(data)-combiner.BindingSize], data[len(data)-combiner.BindingSize:]
	rawA, rawB, err := k.split("secret key", body, k.a.SecretKeySize(), k.b.SecretKeySize())
	if err != nil {
		return nil, err
	}
	a, err := k.a.ParseSecretKey(rawA)
	if err != nil {
		return nil, err
	}
	b, err := k.b.ParseSecretKey(rawB)
	if err != nil {
		a.Zeroize()
		return nil, err
	}
	return &SecretKey{
		scheme:  k.name,
		a:       a,
		b:       b,
		binding: append([]byte(nil), binding...),
	}, nil
}

// ParseCiphertext decodes a ciphertext produced by Ciphertext.Bytes.
func (k *KEM) ParseCiphertext(data []byte) (*Ciphertext, error) {
	a, b, err := k.split("ciphertext", data, k.a.CiphertextSize(), k.b.CiphertextSize())
	if err != nil {
		return nil, err
	}
	return &Ciphertext{
		scheme: k.name,
		a:      append([]byte(nil), a...),
		b:      append([]byte(nil), b...),
	}, nil
}

// split decodes the two length-prefixed components and enforces their exact
// sizes.
func (k *KEM) split(what string, data []byte, sizeA, sizeB int) (a, b []byte, err error) {
	a, b, err = utils.SplitPair(data, maxComponentSize)
	if err != nil {
		return nil, nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "kem %s: %v", what, err)
	}
	if len(a) != sizeA || len(b) != sizeB {
		return nil, nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding,
			"kem %s: component sizes %d/%d, want %d/%d", what, len(a), len(b), sizeA, sizeB)
	}
	return a, b, nil
}
