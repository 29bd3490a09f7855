package kdf

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BackendStack21/qhybrid-go/entropy"
)

var secret = bytes.Repeat([]byte{0x5a}, 32)

func TestDeriveKeysCount(t *testing.T) {
	keys, err := DeriveKeys(secret, 3)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	for _, k := range keys {
		assert.Len(t, k, DefaultKeyLength)
	}

	empty, err := DeriveKeys(secret, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = DeriveKeys(secret, -1)
	assert.True(t, errors.Is(err, ErrInvalidKeyCount))
}

func TestDerivedKeysDistinct(t *testing.T) {
	keys, err := DeriveKeys(secret, 64)
	require.NoError(t, err)
	seen := make(map[string]bool, len(keys))
	for i, k := range keys {
		require.False(t, seen[string(k)], "key %d repeats", i)
		seen[string(k)] = true
	}
}

func TestDeriveKeysDeterministic(t *testing.T) {
	a, err := DeriveKeys(secret, 4)
	require.NoError(t, err)
	b, err := DeriveKeys(secret, 4)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// prefix stability: asking for more keys does not change earlier ones
	c, err := DeriveKeys(secret, 8)
	require.NoError(t, err)
	assert.Equal(t, a, c[:4])
}

func TestDeriveKeyMatchesDeriveKeys(t *testing.T) {
	keys, err := DeriveKeys(secret, 5, WithLabel("ctx"), WithSalt([]byte("salt")))
	require.NoError(t, err)
	for i := range keys {
		k, err := DeriveKey(secret, uint64(i), WithLabel("ctx"), WithSalt([]byte("salt")))
		require.NoError(t, err)
		assert.Equal(t, keys[i], k)
	}
}

func TestOptionsSeparateOutputs(t *testing.T) {
	base, err := DeriveKey(secret, 0)
	require.NoError(t, err)

	labelled, err := DeriveKey(secret, 0, WithLabel("other"))
	require.NoError(t, err)
	assert.NotEqual(t, base, labelled)

	salted, err := DeriveKey(secret, 0, WithSalt([]byte("pepper")))
	require.NoError(t, err)
	assert.NotEqual(t, base, salted)

	long, err := DeriveKey(secret, 0, WithKeyLength(64))
	require.NoError(t, err)
	assert.Len(t, long, 64)
	assert.NotEqual(t, []byte(base), []byte(long[:32]), "key length is bound into info")

	other, err := DeriveKey(bytes.Repeat([]byte{0x5b}, 32), 0)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)
}

func TestKeyLengthLimits(t *testing.T) {
	_, err := DeriveKeys(secret, 1, WithKeyLength(0))
	assert.True(t, errors.Is(err, ErrInvalidKeyLength))
	_, err = DeriveKeys(secret, 1, WithKeyLength(MaxKeyLength+1))
	assert.True(t, errors.Is(err, ErrInvalidKeyLength))

	k, err := DeriveKey(secret, 0, WithKeyLength(MaxKeyLength))
	require.NoError(t, err)
	assert.Len(t, k, MaxKeyLength)

	_, err = DeriveKeys(secret, 1, WithLabel(string(make([]byte, 256))))
	assert.Error(t, err)
}

func TestZeroize(t *testing.T) {
	k, err := DeriveKey(secret, 1)
	require.NoError(t, err)
	k.Zeroize()
	assert.Equal(t, make([]byte, DefaultKeyLength), []byte(k))
}

func TestNewSalt(t *testing.T) {
	s1, err := NewSalt(entropy.New())
	require.NoError(t, err)
	s2, err := NewSalt(rand.Reader)
	require.NoError(t, err)
	assert.Len(t, s1, SaltSize)
	assert.NotEqual(t, s1, s2)

	_, err = NewSalt(io.LimitReader(rand.Reader, 4))
	assert.Error(t, err)
}
