package utils

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDomainSeparation(t *testing.T) {
	a := Hash("domain-a", []byte("x"))
	b := Hash("domain-b", []byte("x"))
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Hash("domain-a", []byte("x")))
}

func TestHashLengthPrefixing(t *testing.T) {
	// ("ab", "c") and ("a", "bc") must not collide
	h1 := Hash("d", []byte("ab"), []byte("c"))
	h2 := Hash("d", []byte("a"), []byte("bc"))
	assert.NotEqual(t, h1, h2)
}

func TestXOF(t *testing.T) {
	short := XOF("d", 16, []byte("seed"))
	long := XOF("d", 64, []byte("seed"))
	assert.Len(t, long, 64)
	assert.Equal(t, short, long[:16], "XOF output must be a prefix stream")

	dst := make([]byte, 64)
	XOFInto(dst, "d", []byte("seed"))
	assert.Equal(t, long, dst)

	r := NewXOF("d", []byte("seed"))
	streamed := make([]byte, 64)
	_, _ = r.Read(streamed[:10])
	_, _ = r.Read(streamed[10:])
	assert.Equal(t, long, streamed)
}

func TestHashPanicsOnLongDomain(t *testing.T) {
	assert.Panics(t, func() { Hash(string(make([]byte, 256))) })
}

func TestConstantTimeHelpers(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte{1, 2}, []byte{1, 2}))
	assert.False(t, ConstantTimeEqual([]byte{1, 2}, []byte{1, 3}))
	assert.False(t, ConstantTimeEqual([]byte{1}, []byte{1, 2}))

	a, b := []byte{1, 1, 1}, []byte{2, 2, 2}
	assert.Equal(t, a, ConstantTimeSelect(1, a, b))
	assert.Equal(t, b, ConstantTimeSelect(0, a, b))
	assert.Panics(t, func() { ConstantTimeSelect(1, a, b[:1]) })
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3}
	Zeroize(b)
	assert.Equal(t, []byte{0, 0, 0}, b)

	u := []uint16{7, 8}
	ZeroizeUint16(u)
	assert.Equal(t, []uint16{0, 0}, u)

	i := []int8{-1, 1}
	ZeroizeInt8(i)
	assert.Equal(t, []int8{0, 0}, i)

	w := []uint64{1 << 40}
	ZeroizeUint64(w)
	assert.Equal(t, []uint64{0}, w)

	Zeroize(nil)
}

func TestValidateSeedEntropy(t *testing.T) {
	good := Hash("seed", []byte("good"))
	assert.NoError(t, ValidateSeedEntropy(good))

	assert.Error(t, ValidateSeedEntropy(good[:31]))
	assert.Error(t, ValidateSeedEntropy(bytes.Repeat([]byte{7}, 32)))

	seq := make([]byte, 32)
	for i := range seq {
		seq[i] = byte(i)
	}
	assert.Error(t, ValidateSeedEntropy(seq))

	lowDiversity := bytes.Repeat([]byte{1, 2, 3, 9}, 8)
	assert.Error(t, ValidateSeedEntropy(lowDiversity))
}

func TestLengthPrefixed(t *testing.T) {
	enc := JoinPair([]byte("left"), []byte("right-side"))
	a, b, err := SplitPair(enc, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("left"), a)
	assert.Equal(t, []byte("right-side"), b)

	_, _, err = SplitPair(enc[:len(enc)-1], 64)
	assert.True(t, errors.Is(err, ErrTruncated))

	_, _, err = SplitPair(append(enc, 0), 64)
	assert.True(t, errors.Is(err, ErrTrailingData))

	_, _, err = SplitPair(enc, 5)
	assert.True(t, errors.Is(err, ErrExceedsLimit))

	_, _, err = SplitPair([]byte{1, 2}, 64)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func FuzzSplitPair(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff})
	f.Add(JoinPair([]byte{1}, []byte{2, 3}))
	f.Fuzz(func(t *testing.T, data []byte) {
		a, b, err := SplitPair(data, 1<<20)
		if err == nil && !bytes.Equal(JoinPair(a, b), data) {
			t.Fatal("decode/encode mismatch")
		}
	})
}
