package kem

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BackendStack21/qhybrid-go/metrics"
	"github.com/BackendStack21/qhybrid-go/schemes/mlkem"
	"github.com/BackendStack21/qhybrid-go/schemes/sntrup"
)

func TestComponentSchemeRoundTrip(t *testing.T) {
	k, err := NewWithSchemes(mlkem.New(), sntrup.New())
	require.NoError(t, err)

	pk, sk, err := k.KeyPair()
	require.NoError(t, err)

	pk2, err := k.ParsePublicKey(pk.Bytes())
	require.NoError(t, err)
	sk2, err := k.ParseSecretKey(sk.Bytes())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		ct, ss1, err := k.Encapsulate(pk2)
		require.NoError(t, err)
		ss2, err := k.Decapsulate(ct, sk2)
		require.NoError(t, err)
		assert.True(t, ss1.Equal(ss2))

		bad := ct.Bytes()
		bad[len(bad)/3] ^= 1
		badCt, err := k.ParseCiphertext(bad)
		require.NoError(t, err)
		ss3, err := k.Decapsulate(badCt, sk2)
		require.NoError(t, err)
		assert.False(t, ss1.Equal(ss3))
	}
}

func TestMixedSchemeKeysRejected(t *testing.T) {
	lattice, pk, _ := level128(t)
	other, err := NewWithSchemes(mlkem.New(), sntrup.New())
	require.NoError(t, err)

	_, err = other.ParsePublicKey(pk.Bytes())
	assert.Error(t, err)
	_, _, err = other.Encapsulate(pk)
	assert.Error(t, err)

	otherPK, _, err := other.KeyPair()
	require.NoError(t, err)
	_, err = lattice.ParsePublicKey(otherPK.Bytes())
	assert.Error(t, err)
}

func TestMetricsCollectorObservesKEM(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	require.NoError(t, err)

	k, err := NewWithSchemes(mlkem.New(), sntrup.New(), WithObserver(collector))
	require.NoError(t, err)
	pk, sk, err := k.KeyPair()
	require.NoError(t, err)
	ct, _, err := k.Encapsulate(pk)
	require.NoError(t, err)
	_, err = k.Decapsulate(ct, sk)
	require.NoError(t, err)
	_, err = k.Decapsulate(nil, sk)
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	series := map[string]int{}
	for _, mf := range families {
		series[mf.GetName()] = len(mf.GetMetric())
	}
	// keypair, encapsulate and decapsulate label sets
	assert.Equal(t, 3, series["qhybrid_kem_operations_total"])
	assert.Equal(t, 1, series["qhybrid_kem_failures_total"])
	assert.Equal(t, 3, series["qhybrid_kem_latency_secs"])
}

type slowObserver struct{ last time.Duration }

func (s *slowObserver) Observe(_, _ string, elapsed time.Duration, _ error) { s.last = elapsed }

func TestObserverSeesElapsed(t *testing.T) {
	obs := &slowObserver{}
	k, err := NewWithSchemes(mlkem.New(), sntrup.New(), WithObserver(obs))
	require.NoError(t, err)
	_, _, err = k.KeyPair()
	require.NoError(t, err)
	assert.Greater(t, obs.last, time.Duration(0))
}
