package entropy

import (
	"bytes"
	"crypto/rand"
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qhybrid "github.com/BackendStack21/qhybrid-go"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

// countingReader serves crypto/rand and counts bytes read.
type countingReader struct {
	mu sync.Mutex
	n  int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.mu.Lock()
	c.n += len(p)
	c.mu.Unlock()
	return rand.Read(p)
}

func TestNextBytes(t *testing.T) {
	s := New()
	a, err := s.NextBytes(32)
	require.NoError(t, err)
	b, err := s.NextBytes(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)

	empty, err := s.NextBytes(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.NextBytes(-1)
	assert.Error(t, err)
	_, err = s.NextBytes(MaxRequest + 1)
	assert.Error(t, err)
}

func TestFailingOSSource(t *testing.T) {
	var logBuf bytes.Buffer
	s := New(WithOSReader(failingReader{}), WithLogger(zerolog.New(&logBuf)))

	_, err := s.NextBytes(16)
	require.Error(t, err)
	assert.True(t, errors.Is(err, qhybrid.ErrEntropyUnavailable))
	assert.Contains(t, logBuf.String(), "os entropy read failed")

	_, err = s.Read(make([]byte, 8))
	assert.True(t, errors.Is(err, qhybrid.ErrEntropyUnavailable))
}

func TestShortOSRead(t *testing.T) {
	s := New(WithOSReader(io.LimitReader(rand.Reader, 10)))
	_, err := s.NextBytes(16)
	assert.True(t, errors.Is(err, qhybrid.ErrEntropyUnavailable))
}

func TestReseedPolicy(t *testing.T) {
	cr := &countingReader{}
	s := New(WithOSReader(cr), WithReseedInterval(3), WithJitter(false))

	for i := 0; i < 7; i++ {
		_, err := s.NextBytes(8)
		require.NoError(t, err)
	}
	// seeds before requests 1, 4 and 7
	assert.Equal(t, uint64(3), s.Reseeds())
	assert.Equal(t, 3*seedSize+7*freshSize, cr.n)

	require.NoError(t, s.Reseed())
	assert.Equal(t, uint64(4), s.Reseeds())
}

func TestNoPeriodicReseed(t *testing.T) {
	s := New(WithReseedInterval(0))
	for i := 0; i < 10; i++ {
		_, err := s.NextBytes(1)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(1), s.Reseeds())
}

func TestConcurrentReadersDistinct(t *testing.T) {
	s := New()
	const workers, perWorker = 8, 50

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				out, err := s.NextBytes(32)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[string(out)], "duplicate output")
				seen[string(out)] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestSourceIsReader(t *testing.T) {
	var r io.Reader = New()
	buf := make([]byte, 1000)
	n, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.NotEqual(t, make([]byte, 1000), buf)
}

func TestDefaultSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestTimingJitter(t *testing.T) {
	j := timingJitter()
	assert.Len(t, j, 8*(jitterSamples+1))
}
