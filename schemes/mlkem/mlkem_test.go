package mlkem

import (
	"crypto/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qhybrid "github.com/BackendStack21/qhybrid-go"
)

func TestRoundTrip(t *testing.T) {
	s := New()
	pk, sk, err := s.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	assert.Len(t, pk.Bytes(), s.PublicKeySize())
	assert.Len(t, sk.Bytes(), s.SecretKeySize())

	ct, ss, err := s.Encapsulate(rand.Reader, pk)
	require.NoError(t, err)
	assert.Len(t, ct, s.CiphertextSize())
	assert.Equal(t, ss, s.Decapsulate(sk, ct))
}

func TestImplicitRejection(t *testing.T) {
	s := New()
	pk, sk, err := s.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	ct, ss, err := s.Encapsulate(rand.Reader, pk)
	require.NoError(t, err)

	ct[0] ^= 1
	got := s.Decapsulate(sk, ct)
	assert.Len(t, got, s.SharedSecretSize())
	assert.NotEqual(t, ss, got)

	assert.Len(t, s.Decapsulate(sk, ct[:3]), s.SharedSecretSize())
	assert.Len(t, s.Decapsulate(nil, ct), s.SharedSecretSize())
}

func TestParse(t *testing.T) {
	s := New()
	pk, sk, err := s.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	pk2, err := s.ParsePublicKey(pk.Bytes())
	require.NoError(t, err)
	sk2, err := s.ParseSecretKey(sk.Bytes())
	require.NoError(t, err)

	ct, ss, err := s.Encapsulate(rand.Reader, pk2)
	require.NoError(t, err)
	assert.Equal(t, ss, s.Decapsulate(sk2, ct))

	_, err = s.ParsePublicKey(pk.Bytes()[1:])
	assert.True(t, errors.Is(err, qhybrid.ErrInvalidKeyEncoding))
	_, err = s.ParseSecretKey(nil)
	assert.True(t, errors.Is(err, qhybrid.ErrInvalidKeyEncoding))
}
