package qhybrid

import "github.com/pkg/errors"

var (
	// ErrEntropyUnavailable means the operating system randomness source failed.
	ErrEntropyUnavailable = errors.New("entropy unavailable")
	// ErrInvalidKeyEncoding means a key or ciphertext encoding is malformed.
	ErrInvalidKeyEncoding = errors.New("invalid key encoding")
	// ErrInvalidParams means a parameter set is unknown or inconsistent.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrSchemeMismatch means keys or ciphertexts belong to a different scheme.
	ErrSchemeMismatch = errors.New("scheme mismatch")
)
