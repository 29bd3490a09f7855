// Package kdf expands one shared secret into independent symmetric keys with
// HKDF (RFC 5869) over SHA3-256.
package kdf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	// DefaultKeyLength is the length of each derived key unless overridden.
	DefaultKeyLength = 32
	// MaxKeyLength is the HKDF output limit for a 32-byte hash.
	MaxKeyLength = 255 * 32
	// DefaultLabel separates qHybrid keys from other HKDF users.
	DefaultLabel = "qhybrid-kdf-v1"
	// SaltSize is the length of salts produced by NewSalt.
	SaltSize = 32
	// MaxLabelLength bounds WithLabel; the label length is encoded in one byte.
	MaxLabelLength = 255
)

var (
	// ErrInvalidKeyCount means a negative number of keys was requested.
	ErrInvalidKeyCount = errors.New("invalid key count")
	// ErrInvalidKeyLength means the key length is zero or above MaxKeyLength.
	ErrInvalidKeyLength = errors.New("invalid key length")
)

// DerivedKey is one output key.
type DerivedKey []byte

// Zeroize overwrites the key with zeros.
func (k DerivedKey) Zeroize() { utils.Zeroize(k) }

type config struct {
	keyLen int
	label  string
	salt   []byte
}

// Option configures a derivation.
type Option func(*config)

// WithKeyLength sets the length of every derived key.
func WithKeyLength(n int) Option {
	return func(c *config) { c.keyLen = n }
}

// WithLabel sets the context label mixed into every key.
func WithLabel(label string) Option {
	return func(c *config) { c.label = label }
}

// WithSalt sets the HKDF extract salt.
func WithSalt(salt []byte) Option {
	return func(c *config) { c.salt = salt }
}

func newConfig(opts []Option) (*config, error) {
	c := &config{keyLen: DefaultKeyLength, label: DefaultLabel}
	for _, opt := range opts {
		opt(c)
	}
	if c.keyLen <= 0 || c.keyLen > MaxKeyLength {
		return nil, errors.Wrapf(ErrInvalidKeyLength, "%d bytes", c.keyLen)
	}
	if len(c.label) > MaxLabelLength {
		return nil, errors.Errorf("kdf: label longer than %d bytes", MaxLabelLength)
	}
	return c, nil
}

// DeriveKeys returns n keys derived from secret. Key i depends only on
// (secret, salt, label, i, key length), so the result is a pure function of
// its inputs. n == 0 returns an empty slice.
func DeriveKeys(secret []byte, n int, opts ...Option) ([]DerivedKey, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidKeyCount, "%d", n)
	}
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	keys := make([]DerivedKey, 0, n)
	if n == 0 {
		return keys, nil
	}

	prk := hkdf.Extract(sha3.New256, secret, c.salt)
	defer utils.Zeroize(prk)
	for i := 0; i < n; i++ {
		k, err := c.expand(prk, uint64(i))
		if err != nil {
			for _, prev := range keys {
				prev.Zeroize()
			}
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// DeriveKey returns key i alone; it equals DeriveKeys(secret, n)[i] for any
// n > i.
func DeriveKey(secret []byte, i uint64, opts ...Option) (DerivedKey, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	prk := hkdf.Extract(sha3.New256, secret, c.salt)
	defer utils.Zeroize(prk)
	return c.expand(prk, i)
}

// expand runs HKDF-Expand with info = len(label) || label || u64(i) || u32(keyLen).
func (c *config) expand(prk []byte, i uint64) (DerivedKey, error) {
	info := make([]byte, 0, 1+len(c.label)+12)
	info = append(info, byte(len(c.label)))
	info = append(info, c.label...)
	info = binary.BigEndian.AppendUint64(info, i)
	info = binary.BigEndian.AppendUint32(info, uint32(c.keyLen))

	key := make(DerivedKey, c.keyLen)
	if _, err := io.ReadFull(hkdf.Expand(sha3.New256, prk, info), key); err != nil {
		return nil, errors.Wrap(err, "kdf: expand")
	}
	return key, nil
}

// NewSalt draws a random salt from src, typically an entropy.Source.
func NewSalt(src io.Reader) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(src, salt); err != nil {
		return nil, errors.Wrap(err, "kdf: salt")
	}
	return salt, nil
}
