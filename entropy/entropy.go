// Package entropy implements the process-wide randomness source used for key
// and noise generation.
//
// Output is never raw operating-system randomness: every request draws fresh
// bytes from the OS CSPRNG, absorbs them together with a ratcheting internal
// state and timing jitter into SHAKE256, and releases part of the squeezed
// output. The jitter is a supplement only; with it disabled the output is
// exactly as strong as the OS source.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	DomainSeed   = "qhybrid-entropy-seed-v1"
	DomainOutput = "qhybrid-entropy-output-v1"

	// DefaultReseedInterval is the number of requests served between full
	// reseeds from the OS.
	DefaultReseedInterval = 1 << 16

	// MaxRequest bounds a single NextBytes call.
	MaxRequest = 1 << 24

	stateSize     = 64
	seedSize      = 64
	freshSize     = 32
	jitterSamples = 16
)

// Source is a mutex-protected entropy generator. The zero value is not
// usable; construct one with New or use Default.
type Source struct {
	mu sync.Mutex

	osReader       io.Reader
	jitter         bool
	reseedInterval uint64
	log            zerolog.Logger

	state    [stateSize]byte
	seeded   bool
	requests uint64 // since the last seed
	reseeds  uint64
}

// Option configures a Source.
type Option func(*Source)

// WithOSReader replaces crypto/rand.Reader as the underlying OS source.
func WithOSReader(r io.Reader) Option {
	return func(s *Source) { s.osReader = r }
}

// WithJitter enables or disables mixing of timing jitter.
func WithJitter(enabled bool) Option {
	return func(s *Source) { s.jitter = enabled }
}

// WithReseedInterval sets how many requests are served between reseeds.
// Zero disables periodic reseeding.
func WithReseedInterval(n uint64) Option {
	return func(s *Source) { s.reseedInterval = n }
}

// WithLogger sets the logger used for seeding events.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) { s.log = l }
}

// New returns an unseeded Source. Seeding happens on first use.
func New(opts ...Option) *Source {
	s := &Source{
		osReader:       rand.Reader,
		jitter:         true,
		reseedInterval: DefaultReseedInterval,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	defaultOnce   sync.Once
	defaultSource *Source
)

// Default returns the process-wide Source, creating it on first call.
func Default() *Source {
	defaultOnce.Do(func() {
		defaultSource = New()
	})
	return defaultSource
}

// NextBytes returns n unpredictable bytes. It fails with
// qhybrid.ErrEntropyUnavailable if the OS source cannot be read.
func (s *Source) NextBytes(n int) ([]byte, error) {
	if n < 0 || n > MaxRequest {
		return nil, errors.Errorf("entropy: request size %d out of range", n)
	}
	out := make([]byte, n)
	if _, err := s.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Read fills p entirely or returns an error; it implements io.Reader so a
// Source can be handed to any component that takes an rng.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded || (s.reseedInterval > 0 && s.requests >= s.reseedInterval) {
		if err := s.seedLocked(); err != nil {
			return 0, err
		}
	}

	fresh := make([]byte, freshSize)
	defer utils.Zeroize(fresh)
	if err := s.readOS(fresh); err != nil {
		return 0, err
	}

	var counter [8]byte
	s.requests++
	binary.LittleEndian.PutUint64(counter[:], s.requests)

	buf := make([]byte, stateSize+len(p))
	defer utils.Zeroize(buf)
	utils.XOFInto(buf, DomainOutput, s.state[:], counter[:], fresh, s.noise())

	copy(s.state[:], buf[:stateSize])
	copy(p, buf[stateSize:])
	return len(p), nil
}

// Reseed discards the internal state and seeds again from the OS.
func (s *Source) Reseed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedLocked()
}

// Reseeds reports how many times the source has been seeded.
func (s *Source) Reseeds() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reseeds
}

func (s *Source) seedLocked() error {
	raw := make([]byte, seedSize)
	defer utils.Zeroize(raw)
	if err := s.readOS(raw); err != nil {
		return err
	}
	utils.XOFInto(s.state[:], DomainSeed, raw, s.state[:], s.noise())
	s.seeded = true
	s.requests = 0
	s.reseeds++
	s.log.Debug().Uint64("reseeds", s.reseeds).Msg("entropy source seeded")
	return nil
}

func (s *Source) readOS(buf []byte) error {
	if _, err := io.ReadFull(s.osReader, buf); err != nil {
		s.log.Error().Err(err).Msg("os entropy read failed")
		return errors.Wrapf(qhybrid.ErrEntropyUnavailable, "os source: %v", err)
	}
	return nil
}

func (s *Source) noise() []byte {
	if !s.jitter {
		return nil
	}
	return timingJitter()
}

// timingJitter samples scheduler-induced timing differences. Each sample is
// the nanosecond delta across a goroutine yield.
func timingJitter() []byte {
	out := make([]byte, 8*(jitterSamples+1))
	prev := time.Now().UnixNano()
	binary.LittleEndian.PutUint64(out, uint64(prev))
	for i := 1; i <= jitterSamples; i++ {
		runtime.Gosched()
		now := time.Now().UnixNano()
		binary.LittleEndian.PutUint64(out[i*8:], uint64(now-prev))
		prev = now
	}
	return out
}
