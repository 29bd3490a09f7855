package metrics

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.Observe("encapsulate", "LWE+McEliece", time.Millisecond, nil)
	c.Observe("encapsulate", "LWE+McEliece", 2*time.Millisecond, nil)
	c.Observe("decapsulate", "LWE+McEliece", time.Millisecond, errors.New("bad"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("LWE+McEliece", "encapsulate")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.failures.WithLabelValues("LWE+McEliece", "encapsulate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("LWE+McEliece", "decapsulate")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.latency))
}

func TestDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestBuildInfo(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterBuildInfo(reg, "1.2.3"))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "qhybrid_build_info", families[0].GetName())
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	c.Observe("keypair", "test", time.Millisecond, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	shutdownC := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- ServeMetrics(l, reg, shutdownC, zerolog.Nop()) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, string(body), "qhybrid_kem_operations_total")

	close(shutdownC)
	assert.NoError(t, <-done)
}
