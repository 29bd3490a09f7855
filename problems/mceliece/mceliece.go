// Package mceliece implements the code-based component of qHybrid: a
// McEliece KEM over binary Goppa codes in GF(2^12).
//
// The public key is the non-identity part Tm of the systematic parity-check
// matrix [I | Tm]. A ciphertext is a codeword (Tm*m, m) with exactly T bits
// flipped. Decoding computes the syndrome with respect to g^2, which lets
// Berlekamp-Massey locate all T errors, so honest ciphertexts never fail to
// decode.
package mceliece

import (
	"crypto/subtle"
	"encoding/binary"
	"io"
	"math/bits"
	"runtime"
	"strconv"

	"github.com/pkg/errors"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/core"
	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	DomainKeygen = "qhybrid-mceliece-keygen-v1"
	DomainEncap  = "qhybrid-mceliece-encap-v1"
	DomainReject = "qhybrid-mceliece-reject-v1"
	DomainKey    = "qhybrid-mceliece-key-v1"
	DomainCT     = "qhybrid-mceliece-ct-v1"

	SeedSize         = 32
	RejectKeySize    = 32
	SharedSecretSize = 32

	// MaxKeygenAttempts bounds the retries when the first M*T columns of the
	// parity-check matrix are not independent (about 29% of draws succeed).
	MaxKeygenAttempts = 128
)

// DecodingFailureProbability is the probability that an honestly generated
// ciphertext fails to decapsulate. Exactly T errors are added and the Goppa
// decoder corrects up to T.
const DecodingFailureProbability = 0.0

var _ qhybrid.Scheme = (*Scheme)(nil)

// Scheme is the Goppa-code KEM for one parameter set.
type Scheme struct {
	p  qhybrid.McElieceParams
	mt int
	k  int
}

// New returns the scheme for the given parameters.
func New(p qhybrid.McElieceParams) (*Scheme, error) {
	if err := core.ValidateMcElieceParams(p); err != nil {
		return nil, err
	}
	return &Scheme{p: p, mt: p.M * p.T, k: p.N - p.M*p.T}, nil
}

// Params returns the parameter set.
func (s *Scheme) Params() qhybrid.McElieceParams { return s.p }

func (s *Scheme) Name() string {
	return "McEliece-" + strconv.Itoa(s.p.N) + "-" + strconv.Itoa(s.p.T)
}

// MessageSize is the length of the message m in bytes (K/8).
func (s *Scheme) MessageSize() int { return s.k / 8 }

func (s *Scheme) PublicKeySize() int { return s.mt * s.k / 8 }

func (s *Scheme) SecretKeySize() int { return 2*s.p.T + 2*s.p.N + RejectKeySize }

func (s *Scheme) CiphertextSize() int { return s.p.N / 8 }

func (s *Scheme) SharedSecretSize() int { return SharedSecretSize }

// PublicKey holds the rows of Tm, K bits each.
type PublicKey struct {
	rows [][]uint64
	enc  []byte
}

// Bytes returns Tm row by row, bits little-endian within each byte.
func (pk *PublicKey) Bytes() []byte {
	return append([]byte(nil), pk.enc...)
}

// SecretKey holds the Goppa polynomial, the support and the rejection key.
type SecretKey struct {
	g       poly // monic, degree T
	support []gf
	w       []gf // 1 / g(support[i])^2
	z       []byte
}

// Bytes returns g_0..g_{T-1} || support || z, field elements as uint16 LE.
func (sk *SecretKey) Bytes() []byte {
	t := len(sk.g) - 1
	out := make([]byte, 0, 2*t+2*len(sk.support)+len(sk.z))
	for _, c := range sk.g[:t] {
		out = binary.LittleEndian.AppendUint16(out, uint16(c))
	}
	for _, a := range sk.support {
		out = binary.LittleEndian.AppendUint16(out, uint16(a))
	}
	return append(out, sk.z...)
}

// Zeroize wipes the Goppa polynomial, the support and the rejection key.
func (sk *SecretKey) Zeroize() {
	zeroizeGF(sk.g)
	zeroizeGF(sk.support)
	zeroizeGF(sk.w)
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
// Each attempt draws a fresh support and Goppa polynomial from
// SHAKE256(seed || attempt).
func (s *Scheme) KeyPairFromSeed(seed []byte) (*PublicKey, *SecretKey, error) {
	if len(seed) != SeedSize {
		return nil, nil, errors.Errorf("mceliece: seed must be %d bytes", SeedSize)
	}
	var ctr [4]byte
	for attempt := 0; attempt < MaxKeygenAttempts; attempt++ {
		binary.LittleEndian.PutUint32(ctr[:], uint32(attempt))
		xof := utils.NewXOF(DomainKeygen, seed, ctr[:])

		support := s.sampleSupport(xof)
		g := s.sampleGoppa(xof)
		rows, ok := s.systematicForm(g, support)
		if !ok {
			zeroizeGF(support)
			zeroizeGF(g)
			continue
		}
		pk := s.newPublicKey(rows)
		sk := newSecretKey(g, support, utils.XOF(DomainReject, RejectKeySize, seed))
		return pk, sk, nil
	}
	return nil, nil, errors.Errorf("mceliece: no systematic form after %d attempts", MaxKeygenAttempts)
}

// sampleSupport picks N distinct non-zero field elements with a partial
// Fisher-Yates shuffle.
func (s *Scheme) sampleSupport(r io.Reader) []gf {
	perm := make([]gf, gfOrder)
	for i := range perm {
		perm[i] = gf(i + 1)
	}
	for i := 0; i < s.p.N; i++ {
		j := i + uniform(r, gfOrder-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	support := append([]gf(nil), perm[:s.p.N]...)
	zeroizeGF(perm)
	return support
}

// sampleGoppa draws monic degree-T polynomials until one is irreducible.
func (s *Scheme) sampleGoppa(r io.Reader) poly {
	g := make(poly, s.p.T+1)
	for {
		for i := 0; i < s.p.T; i++ {
			g[i] = readGF(r)
		}
		g[s.p.T] = 1
		if irreducible(g) {
			return g
		}
	}
}

// systematicForm builds the binary parity-check matrix H_{j,i} =
// support_i^j / g(support_i), expanded bitwise, and row-reduces it to
// [I | Tm]. It returns the rows of Tm, or false if the first M*T columns
// are dependent.
func (s *Scheme) systematicForm(g poly, support []gf) ([][]uint64, bool) {
	n, m, t := s.p.N, s.p.M, s.p.T
	nWords := (n + 63) / 64
	h := make([][]uint64, s.mt)
	for r := range h {
		h[r] = make([]uint64, nWords)
	}
	defer func() {
		for _, row := range h {
			utils.ZeroizeUint64(row)
		}
	}()

	for i, a := range support {
		v := gfInv(g.eval(a))
		for j := 0; j < t; j++ {
			for b := 0; b < m; b++ {
				if (v>>b)&1 == 1 {
					h[j*m+b][i>>6] |= 1 << uint(i&63)
				}
			}
			v = gfMul(v, a)
		}
	}

	for c := 0; c < s.mt; c++ {
		word, bit := c>>6, uint(c&63)
		pivot := -1
		for r := c; r < s.mt; r++ {
			if (h[r][word]>>bit)&1 == 1 {
				pivot = r
				break
			}
		}
		if pivot < 0 {
			return nil, false
		}
		h[c], h[pivot] = h[pivot], h[c]
		for r := 0; r < s.mt; r++ {
			if r != c && (h[r][word]>>bit)&1 == 1 {
				for w := range h[r] {
					h[r][w] ^= h[c][w]
				}
			}
		}
	}

	rows := make([][]uint64, s.mt)
	for r := range rows {
		rows[r] = extractBits(h[r], s.mt, s.k)
	}
	return rows, true
}

func (s *Scheme) newPublicKey(rows [][]uint64) *PublicKey {
	rowBytes := s.k / 8
	enc := make([]byte, 0, s.PublicKeySize())
	for _, row := range rows {
		enc = append(enc, wordsToBytes(row, rowBytes)...)
	}
	return &PublicKey{rows: rows, enc: enc}
}

func newSecretKey(g poly, support []gf, z []byte) *SecretKey {
	w := make([]gf, len(support))
	for i, a := range support {
		ga := g.eval(a)
		w[i] = gfInv(gfMul(ga, ga))
	}
	return &SecretKey{g: g, support: support, w: w, z: z}
}

// Encapsulate draws a seed from rng and encapsulates under pk.
func (s *Scheme) Encapsulate(rng io.Reader, pk qhybrid.ComponentPublicKey) ([]byte, []byte, error) {
	mpk, ok := pk.(*PublicKey)
	if !ok {
		return nil, nil, errors.Wrapf(qhybrid.ErrSchemeMismatch, "mceliece: public key of type %T", pk)
	}
	seed := make([]byte, SeedSize)
	defer utils.Zeroize(seed)
	if err := readRandom(rng, seed); err != nil {
		return nil, nil, err
	}
	ct, ss := s.EncapsulateDeterministic(mpk, seed)
	return ct, ss, nil
}

// EncapsulateDeterministic derives the message and the weight-T error from
// seed, and returns (Tm*m ^ e_0, m ^ e_1) with H(m, e, H(ct)).
func (s *Scheme) EncapsulateDeterministic(pk *PublicKey, seed []byte) (ct, ss []byte) {
	xof := utils.NewXOF(DomainEncap, seed)
	msg := make([]byte, s.MessageSize())
	defer utils.Zeroize(msg)
	_, _ = xof.Read(msg)
	e := s.sampleError(xof)
	defer utils.Zeroize(e)

	ct = s.encode(pk, msg)
	for i := range ct {
		ct[i] ^= e[i]
	}
	ss = utils.Hash(DomainKey, msg, e, utils.Hash(DomainCT, ct))
	return ct, ss
}

// sampleError returns an N-bit vector of weight exactly T.
func (s *Scheme) sampleError(r io.Reader) []byte {
	e := make([]byte, s.p.N/8)
	for weight := 0; weight < s.p.T; {
		pos := int(readGF(r))
		if pos >= s.p.N || (e[pos>>3]>>(pos&7))&1 == 1 {
			continue
		}
		e[pos>>3] |= 1 << (pos & 7)
		weight++
	}
	return e
}

// encode returns the codeword (Tm*m, m) as N/8 bytes.
func (s *Scheme) encode(pk *PublicKey, msg []byte) []byte {
	mw := bytesToWords(msg)
	defer utils.ZeroizeUint64(mw)
	out := make([]byte, s.p.N/8)
	for r, row := range pk.rows {
		var acc uint64
		for w, v := range row {
			acc ^= v & mw[w]
		}
		out[r>>3] |= byte(bits.OnesCount64(acc)&1) << (r & 7)
	}
	copy(out[s.mt/8:], msg)
	return out
}

// Decapsulate decodes ct with the Goppa decoder. Anything that is not a
// codeword plus exactly T errors yields H(z, H(ct)).
func (s *Scheme) Decapsulate(sk qhybrid.ComponentSecretKey, ct []byte) []byte {
	msk, ok := sk.(*SecretKey)
	if !ok {
		return utils.Hash(DomainReject, nil, ct)
	}
	ctHash := utils.Hash(DomainCT, ct)
	reject := utils.Hash(DomainReject, msk.z, ctHash)
	if len(ct) != s.CiphertextSize() || len(msk.support) != s.p.N {
		return reject
	}

	synY := msk.syndrome(ct, 2*s.p.T)
	sigma := berlekampMassey(synY)

	e := make([]byte, len(ct))
	defer utils.Zeroize(e)
	weight := 0
	for i, a := range msk.support {
		// sigma(x) = prod(1 - a_i x), so the reversed polynomial vanishes
		// exactly on the error locators a_i.
		var r gf
		for _, c := range sigma {
			r = gfMul(r, a) ^ c
		}
		if r == 0 {
			e[i>>3] |= 1 << (i & 7)
			weight++
		}
	}

	// y ^ e is a codeword iff both have the same syndrome.
	synE := msk.syndrome(e, 2*s.p.T)
	var diff gf
	for j := range synY {
		diff |= synY[j] ^ synE[j]
	}
	accept := subtle.ConstantTimeEq(int32(diff), 0) & subtle.ConstantTimeEq(int32(weight), int32(s.p.T))

	msg := make([]byte, s.MessageSize())
	defer utils.Zeroize(msg)
	for i := range msg {
		msg[i] = ct[s.mt/8+i] ^ e[s.mt/8+i]
	}
	return utils.ConstantTimeSelect(accept, utils.Hash(DomainKey, msg, e, ctHash), reject)
}

// syndrome returns S_j = sum over set bits i of support_i^j / g(support_i)^2
// for j < count.
func (sk *SecretKey) syndrome(v []byte, count int) []gf {
	out := make([]gf, count)
	for i, a := range sk.support {
		if (v[i>>3]>>(i&7))&1 == 0 {
			continue
		}
		p := sk.w[i]
		for j := range out {
			out[j] ^= p
			p = gfMul(p, a)
		}
	}
	return out
}

// ParsePublicKey decodes Tm.
func (s *Scheme) ParsePublicKey(data []byte) (qhybrid.ComponentPublicKey, error) {
	if len(data) != s.PublicKeySize() {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "mceliece public key: %d bytes, want %d", len(data), s.PublicKeySize())
	}
	rowBytes := s.k / 8
	rows := make([][]uint64, s.mt)
	for r := range rows {
		rows[r] = bytesToWords(data[r*rowBytes : (r+1)*rowBytes])
	}
	return &PublicKey{rows: rows, enc: append([]byte(nil), data...)}, nil
}

// ParseSecretKey decodes g || support || z and checks that g is an
// irreducible polynomial with no root on the support.
func (s *Scheme) ParseSecretKey(data []byte) (qhybrid.ComponentSecretKey, error) {
	if len(data) != s.SecretKeySize() {
		return nil, errors.Wrapf(qhybrid.ErrInvalidKeyEncoding, "mceliece secret key: %d bytes, want %d", len(data), s.SecretKeySize())
	}
	invalid := func(msg string) error {
		return errors.Wrap(qhybrid.ErrInvalidKeyEncoding, "mceliece secret key: "+msg)
	}
	t, n := s.p.T, s.p.N
	g := make(poly, t+1)
	for i := 0; i < t; i++ {
		v := binary.LittleEndian.Uint16(data[2*i:])
		if v >= gfSize {
			return nil, invalid("goppa coefficient out of range")
		}
		g[i] = gf(v)
	}
	g[t] = 1
	if !irreducible(g) {
		return nil, invalid("goppa polynomial is not irreducible")
	}

	off := 2 * t
	support := make([]gf, n)
	var seen [gfSize]bool
	for i := range support {
		v := binary.LittleEndian.Uint16(data[off+2*i:])
		if v == 0 || v >= gfSize || seen[v] {
			return nil, invalid("support elements must be distinct and non-zero")
		}
		seen[v] = true
		support[i] = gf(v)
	}
	off += 2 * n
	return newSecretKey(g, support, append([]byte(nil), data[off:]...)), nil
}

// readGF reads one uniformly random field element.
func readGF(r io.Reader) gf {
	var b [2]byte
	_, _ = io.ReadFull(r, b[:])
	return gf(binary.LittleEndian.Uint16(b[:]) & gfOrder)
}

// uniform returns a uniformly random integer in [0, bound) by rejection
// sampling 16-bit values.
func uniform(r io.Reader, bound int) int {
	limit := 1<<16 - (1<<16)%bound
	var b [2]byte
	for {
		_, _ = io.ReadFull(r, b[:])
		v := int(binary.LittleEndian.Uint16(b[:]))
		if v < limit {
			return v % bound
		}
	}
}

func extractBits(src []uint64, from, count int) []uint64 {
	dst := make([]uint64, (count+63)/64)
	for i := 0; i < count; i++ {
		j := from + i
		dst[i>>6] |= ((src[j>>6] >> uint(j&63)) & 1) << uint(i&63)
	}
	return dst
}

func bytesToWords(b []byte) []uint64 {
	w := make([]uint64, (len(b)+7)/8)
	for i, v := range b {
		w[i>>3] |= uint64(v) << (8 * uint(i&7))
	}
	return w
}

func wordsToBytes(w []uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(w[i>>3] >> (8 * uint(i&7)))
	}
	return out
}

func zeroizeGF(s []gf) {
	for i := range s {
		s[i] = 0
	}
	runtime.KeepAlive(s)
}

func readRandom(rng io.Reader, buf []byte) error {
	if _, err := io.ReadFull(rng, buf); err != nil {
		if errors.Is(err, qhybrid.ErrEntropyUnavailable) {
			return err
		}
		return errors.Wrapf(qhybrid.ErrEntropyUnavailable, "mceliece: %v", err)
	}
	return nil
}
