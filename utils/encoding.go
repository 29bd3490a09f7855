package utils

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	// ErrTruncated indicates the input ended inside a field.
	ErrTruncated = errors.New("truncated input")
	// ErrExceedsLimit indicates a length field exceeds the allowed limit.
	ErrExceedsLimit = errors.New("value exceeds allowed limit")
	// ErrTrailingData indicates bytes remain after the last field.
	ErrTrailingData = errors.New("trailing data")
)

// AppendLengthPrefixed appends a 4-byte little-endian length and then b.
func AppendLengthPrefixed(dst, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

// ReadLengthPrefixed reads a field written by AppendLengthPrefixed starting at
// offset. The returned slice aliases data.
func ReadLengthPrefixed(data []byte, offset, maxLen int) (field []byte, next int, err error) {
	if offset < 0 || offset+4 > len(data) {
		return nil, offset, errors.Wrap(ErrTruncated, "length field")
	}
	raw := binary.LittleEndian.Uint32(data[offset:])
	if uint64(raw) > uint64(maxLen) {
		return nil, offset, errors.Wrapf(ErrExceedsLimit, "length %d > %d", raw, maxLen)
	}
	start := offset + 4
	end := start + int(raw)
	if end > len(data) {
		return nil, offset, errors.Wrapf(ErrTruncated, "field needs %d bytes, %d left", raw, len(data)-start)
	}
	return data[start:end], end, nil
}

// SplitPair decodes exactly two length-prefixed fields and nothing else.
func SplitPair(data []byte, maxLen int) (a, b []byte, err error) {
	a, off, err := ReadLengthPrefixed(data, 0, maxLen)
	if err != nil {
		return nil, nil, errors.Wrap(err, "first component")
	}
	b, off, err = ReadLengthPrefixed(data, off, maxLen)
	if err != nil {
		return nil, nil, errors.Wrap(err, "second component")
	}
	if off != len(data) {
		return nil, nil, errors.Wrapf(ErrTrailingData, "%d bytes", len(data)-off)
	}
	return a, b, nil
}

// JoinPair is the inverse of SplitPair.
func JoinPair(a, b []byte) []byte {
	out := make([]byte, 0, 8+len(a)+len(b))
	out = AppendLengthPrefixed(out, a)
	return AppendLengthPrefixed(out, b)
}
