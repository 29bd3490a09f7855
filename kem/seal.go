package kem

import (
	"crypto/cipher"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/kdf"
	"github.com/BackendStack21/qhybrid-go/utils"
)

// DEMLabel is the kdf label of the AEAD key used by Seal and Open.
const DEMLabel = "qhybrid-dem-v1"

// ErrAuthentication means a sealed message failed AEAD verification.
var ErrAuthentication = errors.New("authentication failed")

// Seal encrypts plaintext to pk: a fresh encapsulation, one derived key and
// XChaCha20-Poly1305 with a random nonce. The output is
// ciphertext || nonce || sealed box.
func (k *KEM) Seal(pk *PublicKey, plaintext, aad []byte) (out []byte, err error) {
	start := time.Now()
	defer func() { k.observe(OpSeal, start, err) }()

	ct, ss, err := k.Encapsulate(pk)
	if err != nil {
		return nil, err
	}
	defer ss.Zeroize()

	aead, err := k.demCipher(ss)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if err := k.readRandom(nonce); err != nil {
		return nil, err
	}

	ctBytes := ct.Bytes()
	out = make([]byte, 0, len(ctBytes)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, ctBytes...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open reverses Seal. Any tampering with the sealed bytes or aad returns
// ErrAuthentication.
func (k *KEM) Open(sk *SecretKey, sealed, aad []byte) (plaintext []byte, err error) {
	start := time.Now()
	defer func() { k.observe(OpOpen, start, err) }()

	ctLen := k.CiphertextSize()
	if len(sealed) < ctLen+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, errors.Wrap(ErrAuthentication, "sealed message too short")
	}
	ct, err := k.ParseCiphertext(sealed[:ctLen])
	if err != nil {
		return nil, errors.Wrap(ErrAuthentication, err.Error())
	}
	nonce := sealed[ctLen : ctLen+chacha20poly1305.NonceSizeX]
	box := sealed[ctLen+chacha20poly1305.NonceSizeX:]

	ss, err := k.Decapsulate(ct, sk)
	if err != nil {
		return nil, err
	}
	defer ss.Zeroize()

	aead, err := k.demCipher(ss)
	if err != nil {
		return nil, err
	}
	plaintext, err = aead.Open(nil, nonce, box, aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func (k *KEM) demCipher(ss *qhybrid.SharedSecret) (cipher.AEAD, error) {
	key, err := kdf.DeriveKey(ss.Bytes(), 0, kdf.WithLabel(DEMLabel), kdf.WithKeyLength(chacha20poly1305.KeySize))
	if err != nil {
		return nil, err
	}
	defer utils.Zeroize(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "kem: aead")
	}
	return aead, nil
}
