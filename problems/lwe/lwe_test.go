package lwe

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/core"
)

var testParams = qhybrid.LWEParams{N: 64, NBar: 8, LogQ: 15, B: 2, Eta: 4}

func testSeed(b byte) []byte {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = b ^ byte(i*37+11)
	}
	return seed
}

func TestRoundTrip(t *testing.T) {
	for _, level := range []qhybrid.SecurityLevel{qhybrid.Level128, qhybrid.Level256} {
		t.Run(string(level), func(t *testing.T) {
			params, err := core.GetParams(level)
			require.NoError(t, err)
			s, err := New(params.LWE)
			require.NoError(t, err)

			pk, sk, err := s.GenerateKeyPair(rand.Reader)
			require.NoError(t, err)
			require.Len(t, pk.Bytes(), s.PublicKeySize())
			require.Len(t, sk.Bytes(), s.SecretKeySize())

			for i := 0; i < 10; i++ {
				ct, ss, err := s.Encapsulate(rand.Reader, pk)
				require.NoError(t, err)
				require.Len(t, ct, s.CiphertextSize())
				assert.Equal(t, ss, s.Decapsulate(sk, ct))
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	s, err := New(testParams)
	require.NoError(t, err)
	mu := make([]byte, s.MessageSize())
	_, _ = rand.Read(mu)

	coeffs := s.encode(mu)
	// noise below q/2^(B+1) must round away
	for i := range coeffs {
		if i%2 == 0 {
			coeffs[i] = (coeffs[i] + 1000) & s.mask
		} else {
			coeffs[i] = (coeffs[i] - 1000) & s.mask
		}
	}
	assert.Equal(t, mu, s.decode(coeffs))
}

func TestSampleCBDRange(t *testing.T) {
	buf := make([]byte, 4096)
	_, _ = rand.Read(buf)
	for _, eta := range []int{1, 2, 4, 8} {
		for _, v := range sampleCBD(buf, eta) {
			require.True(t, int(v) >= -eta && int(v) <= eta, "eta=%d v=%d", eta, v)
		}
	}
}

func TestDecapsulateImplicitRejection(t *testing.T) {
	s, err := New(testParams)
	require.NoError(t, err)
	pk, sk, err := s.KeyPairFromSeed(testSeed(1))
	require.NoError(t, err)

	mu := make([]byte, s.MessageSize())
	_, _ = rand.Read(mu)
	ct, ss := s.EncapsulateDeterministic(pk, mu)
	require.Equal(t, ss, s.Decapsulate(sk, ct))

	bad := append([]byte(nil), ct...)
	bad[len(bad)-1] ^= 0x40
	rejected := s.Decapsulate(sk, bad)
	assert.Len(t, rejected, SharedSecretSize)
	assert.NotEqual(t, ss, rejected)
	assert.Equal(t, rejected, s.Decapsulate(sk, bad))

	assert.Len(t, s.Decapsulate(sk, ct[:5]), SharedSecretSize)
	assert.Len(t, s.Decapsulate(nil, ct), SharedSecretSize)
}

func TestKeyPairFromSeed(t *testing.T) {
	s, err := New(testParams)
	require.NoError(t, err)

	pk1, sk1, err := s.KeyPairFromSeed(testSeed(2))
	require.NoError(t, err)
	pk2, sk2, err := s.KeyPairFromSeed(testSeed(2))
	require.NoError(t, err)
	assert.Equal(t, pk1.Bytes(), pk2.Bytes())
	assert.Equal(t, sk1.Bytes(), sk2.Bytes())

	pk3, _, err := s.KeyPairFromSeed(testSeed(3))
	require.NoError(t, err)
	assert.False(t, bytes.Equal(pk1.Bytes(), pk3.Bytes()))

	_, _, err = s.KeyPairFromSeed(make([]byte, 16))
	assert.Error(t, err)
}

func TestSerialization(t *testing.T) {
	s, err := New(testParams)
	require.NoError(t, err)
	pk, sk, err := s.KeyPairFromSeed(testSeed(4))
	require.NoError(t, err)

	pk2, err := s.ParsePublicKey(pk.Bytes())
	require.NoError(t, err)
	sk2, err := s.ParseSecretKey(sk.Bytes())
	require.NoError(t, err)

	ct, ss, err := s.Encapsulate(rand.Reader, pk2)
	require.NoError(t, err)
	assert.Equal(t, ss, s.Decapsulate(sk, ct))
	assert.Equal(t, ss, s.Decapsulate(sk2, ct))

	_, err = s.ParsePublicKey(pk.Bytes()[:10])
	assert.True(t, errors.Is(err, qhybrid.ErrInvalidKeyEncoding))

	// coefficient above the modulus
	enc := pk.Bytes()
	enc[SeedASize+1] = 0xff
	_, err = s.ParsePublicKey(enc)
	assert.True(t, errors.Is(err, qhybrid.ErrInvalidKeyEncoding))

	// secret coefficient out of range
	skEnc := sk.Bytes()
	skEnc[0] = 100
	_, err = s.ParseSecretKey(skEnc)
	assert.True(t, errors.Is(err, qhybrid.ErrInvalidKeyEncoding))

	// embedded public key hash mismatch
	skEnc = sk.Bytes()
	skEnc[len(skEnc)-RejectKeySize-1] ^= 1
	_, err = s.ParseSecretKey(skEnc)
	assert.True(t, errors.Is(err, qhybrid.ErrInvalidKeyEncoding))
}

func TestZeroize(t *testing.T) {
	s, err := New(testParams)
	require.NoError(t, err)
	_, sk, err := s.KeyPairFromSeed(testSeed(5))
	require.NoError(t, err)
	sk.Zeroize()
	for _, v := range sk.s {
		require.Zero(t, v)
	}
	assert.Equal(t, make([]byte, RejectKeySize), sk.z)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestEntropyFailure(t *testing.T) {
	s, err := New(testParams)
	require.NoError(t, err)
	_, _, err = s.GenerateKeyPair(failingReader{})
	assert.True(t, errors.Is(err, qhybrid.ErrEntropyUnavailable))

	pk, _, err := s.KeyPairFromSeed(testSeed(6))
	require.NoError(t, err)
	_, _, err = s.Encapsulate(failingReader{}, pk)
	assert.True(t, errors.Is(err, qhybrid.ErrEntropyUnavailable))
}

func TestExpandMatrixRows(t *testing.T) {
	seedA := testSeed(7)
	mask := uint16(1<<15 - 1)
	n := 128
	a := expandMatrix(seedA, n, mask)

	// row 5 recomputed directly from SHAKE128(seedA || 5)
	h := sha3.NewShake128()
	_, _ = h.Write(seedA)
	_, _ = h.Write([]byte{5, 0})
	buf := make([]byte, 2*n)
	_, _ = h.Read(buf)
	for j := 0; j < n; j++ {
		require.Equal(t, binary.LittleEndian.Uint16(buf[2*j:])&mask, a[5*n+j])
	}
	for _, v := range a {
		require.Zero(t, v&^mask)
	}
}

func FuzzParsePublicKey(f *testing.F) {
	s, err := New(testParams)
	if err != nil {
		f.Fatal(err)
	}
	f.Add([]byte{})
	f.Add(make([]byte, s.PublicKeySize()))
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = s.ParsePublicKey(data)
	})
}

func BenchmarkEncapsulate128(b *testing.B) {
	s, _ := New(core.Level128Params.LWE)
	pk, _, err := s.GenerateKeyPair(rand.Reader)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Encapsulate(rand.Reader, pk)
	}
}
