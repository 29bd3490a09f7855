// Package kem implements the qHybrid key encapsulation mechanism: two
// component KEMs run side by side and the combiner merges their secrets.
package kem

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/combiner"
	"github.com/BackendStack21/qhybrid-go/core"
	"github.com/BackendStack21/qhybrid-go/entropy"
	"github.com/BackendStack21/qhybrid-go/kdf"
	"github.com/BackendStack21/qhybrid-go/problems/lwe"
	"github.com/BackendStack21/qhybrid-go/problems/mceliece"
	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	DomainSeedA = "qhybrid-kem-a-v1"
	DomainSeedB = "qhybrid-kem-b-v1"

	// SeedSize is the amount of entropy drawn for one keypair or one
	// encapsulation.
	SeedSize = 32
)

// Operation names reported to an Observer.
const (
	OpKeyPair     = "keypair"
	OpEncapsulate = "encapsulate"
	OpDecapsulate = "decapsulate"
	OpSeal        = "seal"
	OpOpen        = "open"
)

// Observer receives the outcome of every KEM operation. metrics.Collector
// implements it.
type Observer interface {
	Observe(op, scheme string, elapsed time.Duration, err error)
}

// KEM is a hybrid KEM bound to two component schemes and an entropy source.
// It is safe for concurrent use.
type KEM struct {
	a, b     qhybrid.Scheme
	name     string
	rng      io.Reader
	observer Observer
	log      zerolog.Logger
}

// Option configures a KEM.
type Option func(*KEM)

// WithEntropy sets the randomness source. The default is entropy.Default().
func WithEntropy(r io.Reader) Option {
	return func(k *KEM) { k.rng = r }
}

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(k *KEM) { k.observer = o }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(k *KEM) { k.log = l }
}

// New returns the hybrid KEM for a security level: matrix LWE combined with
// McEliece over a binary Goppa code.
func New(level qhybrid.SecurityLevel, opts ...Option) (*KEM, error) {
	params, err := core.GetParams(level)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateParams(params); err != nil {
		return nil, err
	}
	a, err := lwe.New(params.LWE)
	if err != nil {
		return nil, err
	}
	b, err := mceliece.New(params.McEliece)
	if err != nil {
		return nil, err
	}
	return NewWithSchemes(a, b, opts...)
}

// NewWithSchemes returns a hybrid KEM over arbitrary component schemes, for
// example schemes/mlkem and schemes/sntrup.
func NewWithSchemes(a, b qhybrid.Scheme, opts ...Option) (*KEM, error) {
	if a == nil || b == nil {
		return nil, errors.Wrap(qhybrid.ErrInvalidParams, "kem: both component schemes are required")
	}
	k := &KEM{
		a:    a,
		b:    b,
		name: a.Name() + "+" + b.Name(),
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.rng == nil {
		k.rng = entropy.Default()
	}
	return k, nil
}

// Name identifies the component pair, e.g. "LWE-640+McEliece-2048-32".
func (k *KEM) Name() string { return k.name }

// Schemes returns the two component schemes.
func (k *KEM) Schemes() (a, b qhybrid.Scheme) { return k.a, k.b }

// KeyPair generates a fresh hybrid key pair from one 32-byte entropy draw.
func (k *KEM) KeyPair() (pk *PublicKey, sk *SecretKey, err error) {
	start := time.Now()
	defer func() { k.observe(OpKeyPair, start, err) }()

	seed := make([]byte, SeedSize)
	defer utils.Zeroize(seed)
	if err := k.readRandom(seed); err != nil {
		return nil, nil, err
	}
	return k.keyPair(seed)
}

// KeyPairFromSeed derives a hybrid key pair deterministically. The seed must
// be at least 32 bytes and pass utils.ValidateSeedEntropy.
func (k *KEM) KeyPairFromSeed(seed []byte) (*PublicKey, *SecretKey, error) {
	if err := utils.ValidateSeedEntropy(seed); err != nil {
		return nil, nil, errors.Wrap(err, "kem")
	}
	return k.keyPair(seed)
}

func (k *KEM) keyPair(seed []byte) (*PublicKey, *SecretKey, error) {
	var (
		pkA, pkB qhybrid.ComponentPublicKey
		skA, skB qhybrid.ComponentSecretKey
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		pkA, skA, err = k.a.GenerateKeyPair(utils.NewXOF(DomainSeedA, seed))
		return errors.Wrapf(err, "%s keypair", k.a.Name())
	})
	g.Go(func() error {
		var err error
		pkB, skB, err = k.b.GenerateKeyPair(utils.NewXOF(DomainSeedB, seed))
		return errors.Wrapf(err, "%s keypair", k.b.Name())
	})
	if err := g.Wait(); err != nil {
		if skA != nil {
			skA.Zeroize()
		}
		if skB != nil {
			skB.Zeroize()
		}
		return nil, nil, err
	}

	pk := k.newPublicKey(pkA, pkB)
	sk := &SecretKey{scheme: k.name, a: skA, b: skB, binding: pk.binding}
	k.log.Debug().Str("scheme", k.name).Msg("key pair generated")
	return pk, sk, nil
}

// Encapsulate produces a ciphertext and the shared secret it carries.
func (k *KEM) Encapsulate(pk *PublicKey) (ct *Ciphertext, ss *qhybrid.SharedSecret, err error) {
	start := time.Now()
	defer func() { k.observe(OpEncapsulate, start, err) }()

	if err := k.checkPublicKey(pk); err != nil {
		return nil, nil, err
	}
	seed := make([]byte, SeedSize)
	defer utils.Zeroize(seed)
	if err := k.readRandom(seed); err != nil {
		return nil, nil, err
	}

	var (
		ctA, ctB, ssA, ssB []byte
		g                  errgroup.Group
	)
	defer func() {
		utils.Zeroize(ssA)
		utils.Zeroize(ssB)
	}()
	g.Go(func() error {
		var err error
		ctA, ssA, err = k.a.Encapsulate(utils.NewXOF(DomainSeedA, seed), pk.a)
		return errors.Wrapf(err, "%s encapsulate", k.a.Name())
	})
	g.Go(func() error {
		var err error
		ctB, ssB, err = k.b.Encapsulate(utils.NewXOF(DomainSeedB, seed), pk.b)
		return errors.Wrapf(err, "%s encapsulate", k.b.Name())
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	secret, err := combiner.Combine(ssA, ssB, ctA, ctB, pk.binding)
	if err != nil {
		return nil, nil, err
	}
	return &Ciphertext{scheme: k.name, a: ctA, b: ctB}, &secret, nil
}

// Decapsulate recovers the shared secret. It fails only for nil inputs or
// inputs from a different scheme; a tampered ciphertext yields an unrelated
// pseudorandom secret rather than an error.
func (k *KEM) Decapsulate(ct *Ciphertext, sk *SecretKey) (ss *qhybrid.SharedSecret, err error) {
	start := time.Now()
	defer func() { k.observe(OpDecapsulate, start, err) }()

	if ct == nil || sk == nil {
		return nil, errors.Wrap(qhybrid.ErrSchemeMismatch, "kem: nil ciphertext or secret key")
	}
	if ct.scheme != k.name || sk.scheme != k.name {
		return nil, errors.Wrapf(qhybrid.ErrSchemeMismatch, "kem: %s/%s used with %s", ct.scheme, sk.scheme, k.name)
	}

	var ssA, ssB []byte
	defer func() {
		utils.Zeroize(ssA)
		utils.Zeroize(ssB)
	}()
	var g errgroup.Group
	g.Go(func() error {
		ssA = k.a.Decapsulate(sk.a, ct.a)
		return nil
	})
	g.Go(func() error {
		ssB = k.b.Decapsulate(sk.b, ct.b)
		return nil
	})
	_ = g.Wait()

	secret, err := combiner.Combine(ssA, ssB, ct.a, ct.b, sk.binding)
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

// DeriveKeys expands a shared secret into n keys; see kdf.DeriveKeys.
func DeriveKeys(ss *qhybrid.SharedSecret, n int, opts ...kdf.Option) ([]kdf.DerivedKey, error) {
	if ss == nil {
		return nil, errors.New("kem: nil shared secret")
	}
	return kdf.DeriveKeys(ss.Bytes(), n, opts...)
}

func (k *KEM) checkPublicKey(pk *PublicKey) error {
	if pk == nil {
		return errors.Wrap(qhybrid.ErrSchemeMismatch, "kem: nil public key")
	}
	if pk.scheme != k.name {
		return errors.Wrapf(qhybrid.ErrSchemeMismatch, "kem: %s key used with %s", pk.scheme, k.name)
	}
	return nil
}

func (k *KEM) readRandom(buf []byte) error {
	if _, err := io.ReadFull(k.rng, buf); err != nil {
		k.log.Error().Err(err).Str("scheme", k.name).Msg("entropy read failed")
		if errors.Is(err, qhybrid.ErrEntropyUnavailable) {
			return err
		}
		return errors.Wrapf(qhybrid.ErrEntropyUnavailable, "kem: %v", err)
	}
	return nil
}

func (k *KEM) observe(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	if k.observer != nil {
		k.observer.Observe(op, k.name, elapsed, err)
	}
	if err != nil {
		k.log.Debug().Err(err).Str("op", op).Msg("operation failed")
	}
}
