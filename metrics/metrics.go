// Package metrics exports qHybrid operation counts and latencies to
// Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	metricsNamespace = "qhybrid"
	kemSubsystem     = "kem"

	shutdownTimeout = 5 * time.Second
)

// Collector records KEM operations. It satisfies kem.Observer.
type Collector struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kemSubsystem,
				Name:      "operations_total",
				Help:      "Number of KEM operations by scheme and operation",
			},
			[]string{"scheme", "operation"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kemSubsystem,
				Name:      "failures_total",
				Help:      "Number of KEM operations that returned an error",
			},
			[]string{"scheme", "operation"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: kemSubsystem,
				Name:      "latency_secs",
				Help:      "Latency of KEM operations",
				// 100us, 400us, 1.6ms, ... up to ~1.6s
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"scheme", "operation"},
		),
	}
	for _, col := range []prometheus.Collector{c.operations, c.failures, c.latency} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "metrics: register")
		}
	}
	return c, nil
}

// Observe records one operation.
func (c *Collector) Observe(op, scheme string, elapsed time.Duration, err error) {
	c.operations.WithLabelValues(scheme, op).Inc()
	if err != nil {
		c.failures.WithLabelValues(scheme, op).Inc()
	}
	c.latency.WithLabelValues(scheme, op).Observe(elapsed.Seconds())
}

// RegisterBuildInfo publishes the module version as a constant gauge.
func RegisterBuildInfo(reg prometheus.Registerer, version string) error {
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "build_info",
			Help:      "Build and version information",
		},
		[]string{"goversion", "version"},
	)
	if err := reg.Register(buildInfo); err != nil {
		return errors.Wrap(err, "metrics: register build info")
	}
	buildInfo.WithLabelValues(runtime.Version(), version).Set(1)
	return nil
}

// ServeMetrics serves /metrics for g on l until shutdownC is closed.
func ServeMetrics(l net.Listener, g prometheus.Gatherer, shutdownC <-chan struct{}, log zerolog.Logger) (err error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err = server.Serve(l)
	}()
	log.Info().Str("addr", l.Addr().String()).Msg("Starting metrics server")

	<-shutdownC
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	_ = server.Shutdown(ctx)
	cancel()

	wg.Wait()
	if err == http.ErrServerClosed {
		log.Info().Msg("Metrics server stopped")
		return nil
	}
	log.Error().Err(err).Msg("Metrics server quit with error")
	return err
}
