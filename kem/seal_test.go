package kem

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/BackendStack21/qhybrid-go/schemes/mlkem"
	"github.com/BackendStack21/qhybrid-go/schemes/sntrup"
)

func TestSealOpen(t *testing.T) {
	k, pk, sk := level128(t)
	msg := []byte("attack at dawn")
	aad := []byte("header")

	sealed, err := k.Seal(pk, msg, aad)
	require.NoError(t, err)
	assert.Len(t, sealed, k.CiphertextSize()+chacha20poly1305.NonceSizeX+len(msg)+chacha20poly1305.Overhead)

	got, err := k.Open(sk, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestSealOpenEmptyPlaintext(t *testing.T) {
	k, pk, sk := level128(t)
	sealed, err := k.Seal(pk, nil, nil)
	require.NoError(t, err)
	got, err := k.Open(sk, sealed, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenRejectsTampering(t *testing.T) {
	k, pk, sk := level128(t)
	sealed, err := k.Seal(pk, []byte("payload"), []byte("aad"))
	require.NoError(t, err)

	tests := []struct {
		name string
		pos  int
	}{
		{"kem ciphertext", 100},
		{"nonce", k.CiphertextSize() + 3},
		{"box", len(sealed) - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := append([]byte(nil), sealed...)
			bad[tt.pos] ^= 0x40
			_, err := k.Open(sk, bad, []byte("aad"))
			assert.True(t, errors.Is(err, ErrAuthentication), "got %v", err)
		})
	}

	_, err = k.Open(sk, sealed, []byte("other aad"))
	assert.True(t, errors.Is(err, ErrAuthentication))

	_, err = k.Open(sk, sealed[:k.CiphertextSize()], []byte("aad"))
	assert.True(t, errors.Is(err, ErrAuthentication))
}

func TestSealWithComponentSchemes(t *testing.T) {
	k, err := NewWithSchemes(mlkem.New(), sntrup.New())
	require.NoError(t, err)
	assert.Equal(t, mlkem.Name+"+"+sntrup.Name, k.Name())

	pk, sk, err := k.KeyPair()
	require.NoError(t, err)
	sealed, err := k.Seal(pk, []byte("hello"), nil)
	require.NoError(t, err)
	got, err := k.Open(sk, sealed, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}
