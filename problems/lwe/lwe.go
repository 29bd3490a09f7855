// Package lwe implements the lattice component of qHybrid: a matrix
// Learning-With-Errors KEM over a power-of-two modulus, made IND-CCA with a
// Fujisaki-Okamoto re-encryption check and implicit rejection.
package lwe

import (
	"encoding/binary"
	"io"
	"math/bits"
	"runtime"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/core"
	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	DomainSeedA  = "qhybrid-lwe-seed-a-v1"
	DomainNoise  = "qhybrid-lwe-noise-v1"
	DomainReject = "qhybrid-lwe-reject-v1"
	DomainCoins  = "qhybrid-lwe-coins-v1"
	DomainKey    = "qhybrid-lwe-key-v1"
	DomainPK     = "qhybrid-lwe-pk-v1"
	DomainCT     = "qhybrid-lwe-ct-v1"

	SeedSize         = 32
	SeedASize        = 32
	RejectKeySize    = 32
	HashSize         = 32
	SharedSecretSize = 32
)

var _ qhybrid.Scheme = (*Scheme)(nil)

// Scheme is the matrix LWE KEM for one parameter set.
type Scheme struct {
	p    qhybrid.LWEParams
	mask uint16
}

// New returns the LWE scheme for the given parameters.
func New(p qhybrid.LWEParams) (*Scheme, error) {
	if err := core.ValidateLWEParams(p); err != nil {
		return nil, err
	}
	return &Scheme{p: p, mask: uint16((1 << p.LogQ) - 1)}, nil
}

// Params returns the parameter set.
func (s *Scheme) Params() qhybrid.LWEParams { return s.p }

func (s *Scheme) Name() string { return "LWE-" + strconv.Itoa(s.p.N) }

// MessageSize is the length of the encapsulated message in bytes.
func (s *Scheme) MessageSize() int { return core.MessageBytes(s.p) }

func (s *Scheme) PublicKeySize() int { return SeedASize + 2*s.p.N*s.p.NBar }

func (s *Scheme) SecretKeySize() int {
	return s.p.N*s.p.NBar + s.PublicKeySize() + HashSize + RejectKeySize
}

func (s *Scheme) CiphertextSize() int { return 2*s.p.NBar*s.p.N + 2*s.p.NBar*s.p.NBar }

func (s *Scheme) SharedSecretSize() int { return SharedSecretSize }

// PublicKey is an LWE public key. The matrix A is expanded once from seedA
// and cached.
type PublicKey struct {
	seedA []byte
	b     []uint16 // N x NBar, row-major
	a     []uint16 // N x N, row-major
	hash  []byte
	enc   []byte
}

// Bytes returns seedA || B.
func (pk *PublicKey) Bytes() []byte {
	return append([]byte(nil), pk.enc...)
}

// SecretKey is an LWE secret key.
type SecretKey struct {
	s  []int8 // N x NBar, row-major
	pk *PublicKey
	z  []byte
}

// Bytes returns S || pk || H(pk) || z.
func (sk *SecretKey) Bytes() []byte {
	out := make([]byte, 0, len(sk.s)+len(sk.pk.enc)+HashSize+len(sk.z))
	for _, v := range sk.s {
		out = append(out, byte(v))
	}
	out = append(out, sk.pk.enc...)
	out = append(out, sk.pk.hash...)
	return append(out, sk.z...)
}

// PublicKey returns the public half stored inside the secret key.
func (sk *SecretKey) PublicKey() *PublicKey { return sk.pk }

// Zeroize wipes the secret matrix and the rejection key.
func (sk *SecretKey) Zeroize() {
	utils.ZeroizeInt8(sk.s)
	utils.Zeroize(sk.z)
}

// GenerateKeyPair draws a seed from rng and derives a key pair from it.
func (s *Scheme) GenerateKeyPair(rng io.Reader) (qhybrid.ComponentPublicKey, qhybrid.ComponentSecretKey, error) {
	seed := make([]byte, SeedSize)
	defer utils.Zeroize(seed)
	if err := readRandom(rng, seed); err != nil {
		return nil, nil, err
	}
	pk, sk, err := s.KeyPairFromSeed(seed)
	if err != nil {
		return nil, nil, err
	}
	return pk, sk, nil
}

// KeyPairFromSeed derives a key pair deterministically from a 32-byte seed.
func (s *Scheme) KeyPairFromSeed(seed []byte) (*PublicKey, *SecretKey, error) {
	if len(seed) != SeedSize {
		return nil, nil, errors.Errorf("lwe: seed must be %d bytes", SeedSize)
	}
	n, nbar := s.p.N, s.p.NBar

	seedA := utils.XOF(DomainSeedA, SeedASize, seed)
	a := expandMatrix(seedA, n, s.mask)

	noise := utils.XOF(DomainNoise, 2*2*n*nbar, seed)
	defer utils.Zeroize(noise)
	secret := sampleCBD(noise[:2*n*nbar], s.p.Eta)
	e := sampleCBD(noise[2*n*nbar:], s.p.Eta)
	defer utils.ZeroizeInt8(e)

	// B = A*S + E
	b := make([]uint16, n*nbar)
	acc := make([]uint16, nbar)
	for i := 0; i < n; i++ {
		for j := range acc {
			acc[j] = uint16(int16(e[i*nbar+j]))
		}
		row := a[i*n : (i+1)*n]
		for k, aik := range row {
			sRow := secret[k*nbar : (k+1)*nbar]
			for j, sv := range sRow {
				acc[j] += aik * uint16(int16(sv))
			}
		}
		for j, v := range acc {
			b[i*nbar+j] = v & s.mask
		}
	}

	pk := s.newPublicKey(seedA, b, a)
	sk := &SecretKey{
		s:  secret,
		pk: pk,
		z:  utils.XOF(DomainReject, RejectKeySize, seed),
	}
	return pk, sk, nil
}

func (s *Scheme) newPublicKey(seedA []byte, b, a []uint16) *PublicKey {
	enc := make([]byte, s.PublicKeySize())
	copy(enc, seedA)
	packCoeffs(enc[SeedASize:], b)
	return &PublicKey{
		seedA: seedA,
		b:     b,
		a:     a,
		hash:  utils.Hash(DomainPK, enc),
		enc:   enc,
	}
}

// Encapsulate samples a fresh message and encrypts it under pk.
func (s *Scheme) Encapsulate(rng io.Reader, pk qhybrid.ComponentPublicKey) ([]byte, []byte, error) {
	lpk, ok := pk.(*PublicKey)
	if !ok {
		return nil, nil, errors.Wrapf(qhybrid.ErrSchemeMismatch, "lwe: public key of type %T", pk)
	}
	mu := make([]byte, s.MessageSize())
	defer utils.Zeroize(mu)
	if err := readRandom(rng, mu); err != nil {
		return nil, nil, err
	}
	ct, ss := s.EncapsulateDeterministic(lpk, mu)
	return ct, ss, nil
}

// EncapsulateDeterministic encrypts mu under pk with coins derived from mu.
func (s *Scheme) EncapsulateDeterministic(pk *PublicKey, mu []byte) (ct, ss []byte) {
	ct = s.encrypt(pk, mu)
	ss = utils.Hash(DomainKey, mu, utils.Hash(DomainCT, ct))
	return ct, ss
}

// encrypt computes B' = S'A + E' and V = S'B + E'' + Encode(mu).
func (s *Scheme) encrypt(pk *PublicKey, mu []byte) []byte {
	n, nbar := s.p.N, s.p.NBar

	coins := utils.XOF(DomainCoins, 2*(2*nbar*n+nbar*nbar), mu, pk.hash)
	defer utils.Zeroize(coins)
	sp := sampleCBD(coins[:2*nbar*n], s.p.Eta)
	ep := sampleCBD(coins[2*nbar*n:4*nbar*n], s.p.Eta)
	epp := sampleCBD(coins[4*nbar*n:], s.p.Eta)
	defer func() {
		utils.ZeroizeInt8(sp)
		utils.ZeroizeInt8(ep)
		utils.ZeroizeInt8(epp)
	}()

	bp := make([]uint16, nbar*n)
	for i := 0; i < nbar; i++ {
		out := bp[i*n : (i+1)*n]
		for j := range out {
			out[j] = uint16(int16(ep[i*n+j]))
		}
		for k := 0; k < n; k++ {
			sv := uint16(int16(sp[i*n+k]))
			row := pk.a[k*n : (k+1)*n]
			for j, av := range row {
				out[j] += sv * av
			}
		}
		for j := range out {
			out[j] &= s.mask
		}
	}

	v := s.encode(mu)
	defer utils.ZeroizeUint16(v)
	for i := 0; i < nbar; i++ {
		for j := 0; j < nbar; j++ {
			acc := v[i*nbar+j] + uint16(int16(epp[i*nbar+j]))
			for k := 0; k < n; k++ {
				acc += uint16(int16(sp[i*n+k])) * pk.b[k*nbar+j]
			}
			v[i*nbar+j] = acc & s.mask
		}
	}

	ct := make([]byte, s.CiphertextSize())
	packCoeffs(ct[:2*nbar*n], bp)
	packCoeffs(ct[2*nbar*n:], v)
	return ct
}

// Decapsulate recovers the shared secret. Ciphertexts that fail the
// re-encryption check, including malformed ones, yield H(z, ct) instead.
func (s *Scheme) Decapsulate(sk qhybrid.ComponentSecretKey, ct []byte) []byte {
	lsk, ok := sk.(*SecretKey)
	if !ok {
		return utils.Hash(DomainReject, nil, ct)
	}
	ctHash := utils.Hash(DomainCT, ct)
	reject := utils.Hash(DomainReject, lsk.z, ctHash)
	if len(ct) != s.CiphertextSize() {
		return reject
	}

	n, nbar := s.p.N, s.p.NBar
	bp := unpackCoeffs(ct[:2*nbar*n], s.mask)
	m := unpackCoeffs(ct[2*nbar*n:], s.mask)
	defer utils.ZeroizeUint16(m)

	// M = V - B'S
	for i := 0; i < nbar; i++ {
		for j := 0; j < nbar; j++ {
			acc := m[i*nbar+j]
			for k := 0; k < n; k++ {
				acc -= bp[i*n+k] * uint16(int16(lsk.s[k*nbar+j]))
			}
			m[i*nbar+j] = acc & s.mask
		}
	}
	mu := s.decode(m)
	defer utils.Zeroize(mu)

	reenc := s.encrypt(lsk.pk, mu)
	accept := 0
	if utils.ConstantTimeEqual(ct, reenc) {
		accept = 1
	}
	return utils.ConstantTimeSelect(accept, utils.Hash(DomainKey, mu, ctHash), reject)
}

// ParsePublicKey decodes seedA || B and expands A.
func (s *Scheme) ParsePublicKey(data []byte) (qhybrid.ComponentPublicKey, error) {
	return s.parsePublicKey(data)
}

func (s *Scheme) parsePublicKey(data []byte) (*PublicKey, error) {
	if len(data) != s.PublicKeySize() {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "lwe public key: %d bytes, want %d", len(data), s.PublicKeySize())
	}
	b, err := unpackCanonical(data[SeedASize:], s.mask)
	if err != nil {
		return nil, err
	}
	seedA := append([]byte(nil), data[:SeedASize]...)
	return s.newPublicKey(seedA, b, expandMatrix(seedA, s.p.N, s.mask)), nil
}

// ParseSecretKey decodes S || pk || H(pk) || z.
func (s *Scheme) ParseSecretKey(data []byte) (qhybrid.ComponentSecretKey, error) {
	if len(data) != s.SecretKeySize() {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "lwe secret key: %d bytes, want %d", len(data), s.SecretKeySize())
	}
	sLen := s.p.N * s.p.NBar
	secret := make([]int8, sLen)
	for i := range secret {
		v := int8(data[i])
		if v < -int8(s.p.Eta) || v > int8(s.p.Eta) {
			utils.ZeroizeInt8(secret)
			return nil, errors.Wrap(qhybrid.ErrInvalidKeyEncoding, "lwe secret key: coefficient out of range")
		}
		secret[i] = v
	}
	off := sLen
	pk, err := s.parsePublicKey(data[off : off+s.PublicKeySize()])
	if err != nil {
		utils.ZeroizeInt8(secret)
		return nil, err
	}
	off += s.PublicKeySize()
	if !utils.ConstantTimeEqual(pk.hash, data[off:off+HashSize]) {
		utils.ZeroizeInt8(secret)
		return nil, errors.Wrap(qhybrid.ErrInvalidKeyEncoding, "lwe secret key: public key hash mismatch")
	}
	off += HashSize
	return &SecretKey{
		s:  secret,
		pk: pk,
		z:  append([]byte(nil), data[off:]...),
	}, nil
}

// encode spreads the message bits over NBar*NBar coefficients, B bits each,
// scaled into the top bits of the modulus.
func (s *Scheme) encode(mu []byte) []uint16 {
	count := s.p.NBar * s.p.NBar
	shift := uint(s.p.LogQ - s.p.B)
	out := make([]uint16, count)
	for c := 0; c < count; c++ {
		var val uint16
		for t := 0; t < s.p.B; t++ {
			bit := c*s.p.B + t
			val |= uint16((mu[bit>>3]>>(bit&7))&1) << t
		}
		out[c] = val << shift
	}
	return out
}

// decode rounds each coefficient to the nearest multiple of q/2^B.
func (s *Scheme) decode(coeffs []uint16) []byte {
	shift := uint(s.p.LogQ - s.p.B)
	half := uint16(1) << (shift - 1)
	valMask := uint16(1)<<s.p.B - 1
	out := make([]byte, s.MessageSize())
	for c, coeff := range coeffs {
		val := (((coeff + half) & s.mask) >> shift) & valMask
		for t := 0; t < s.p.B; t++ {
			bit := c*s.p.B + t
			out[bit>>3] |= byte((val>>t)&1) << (bit & 7)
		}
	}
	return out
}

// sampleCBD maps two bytes per output to a centered binomial sample in
// [-eta, eta].
func sampleCBD(buf []byte, eta int) []int8 {
	mask := byte(1)<<eta - 1
	if eta == 8 {
		mask = 0xFF
	}
	out := make([]int8, len(buf)/2)
	for i := range out {
		x := bits.OnesCount8(buf[2*i] & mask)
		y := bits.OnesCount8(buf[2*i+1] & mask)
		out[i] = int8(x - y)
	}
	return out
}

// expandMatrix generates the N x N public matrix from seedA with SHAKE128,
// one row per absorb of seedA || row index. Rows are produced in parallel.
func expandMatrix(seedA []byte, n int, mask uint16) []uint16 {
	a := make([]uint16, n*n)
	genRow := func(i int, buf []byte) {
		h := sha3.NewShake128()
		_, _ = h.Write(seedA)
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], uint16(i))
		_, _ = h.Write(idx[:])
		_, _ = h.Read(buf)
		row := a[i*n : (i+1)*n]
		for j := range row {
			row[j] = binary.LittleEndian.Uint16(buf[2*j:]) & mask
		}
	}

	workers := runtime.GOMAXPROCS(0)
	if n < 64 || workers <= 1 {
		buf := make([]byte, 2*n)
		for i := 0; i < n; i++ {
			genRow(i, buf)
		}
		return a
	}

	var wg sync.WaitGroup
	rowsPerWorker := (n + workers - 1) / workers
	for start := 0; start < n; start += rowsPerWorker {
		end := start + rowsPerWorker
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			buf := make([]byte, 2*n)
			for i := start; i < end; i++ {
				genRow(i, buf)
			}
		}(start, end)
	}
	wg.Wait()
	return a
}

func packCoeffs(dst []byte, coeffs []uint16) {
	for i, c := range coeffs {
		binary.LittleEndian.PutUint16(dst[2*i:], c)
	}
}

func unpackCoeffs(src []byte, mask uint16) []uint16 {
	out := make([]uint16, len(src)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(src[2*i:]) & mask
	}
	return out
}

// unpackCanonical rejects coefficients with bits set above the modulus.
func unpackCanonical(src []byte, mask uint16) ([]uint16, error) {
	out := make([]uint16, len(src)/2)
	for i := range out {
		v := binary.LittleEndian.Uint16(src[2*i:])
		if v&^mask != 0 {
			return nil, errors.Wrap(qhybrid.ErrInvalidKeyEncoding, "lwe: coefficient exceeds modulus")
		}
		out[i] = v
	}
	return out, nil
}

func readRandom(rng io.Reader, buf []byte) error {
	if _, err := io.ReadFull(rng, buf); err != nil {
		if errors.Is(err, qhybrid.ErrEntropyUnavailable) {
			return err
		}
		return errors.Wrapf(qhybrid.ErrEntropyUnavailable, "lwe: %v", err)
	}
	return nil
}
