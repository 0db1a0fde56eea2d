package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/born-ml/gradarena/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCollector(t *testing.T) {
	p, err := pool.New[int]("nodes", 2)
	require.NoError(t, err)
	_, err = p.Get()
	require.NoError(t, err)
	_, err = p.Get()
	require.NoError(t, err)
	_, err = p.Get()
	require.ErrorIs(t, err, pool.ErrExhausted)

	c := NewPoolCollector("test", func() []pool.Stats {
		return []pool.Stats{p.Stats()}
	})

	expected := `
# HELP test_pool_exhausted_total Total number of requests refused because the arena was full
# TYPE test_pool_exhausted_total counter
test_pool_exhausted_total{pool="nodes"} 1
# HELP test_pool_slots_in_use Number of slots currently issued
# TYPE test_pool_slots_in_use gauge
test_pool_slots_in_use{pool="nodes"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"test_pool_exhausted_total", "test_pool_slots_in_use"))
	assert.Equal(t, 4, testutil.CollectAndCount(c))
}

func TestPoolCollector_MultipleSources(t *testing.T) {
	stats := func(names ...string) StatsFunc {
		return func() []pool.Stats {
			out := make([]pool.Stats, len(names))
			for i, n := range names {
				out[i] = pool.Stats{Name: n, Capacity: 8}
			}
			return out
		}
	}
	c := NewPoolCollector("test", stats("tensors", "buffers"), stats("nodes"))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	assert.Equal(t, 12, testutil.CollectAndCount(c))
	assert.Equal(t, 3, testutil.CollectAndCount(c, "test_pool_slots_capacity"))
}

func TestGraphMetrics(t *testing.T) {
	m := NewGraphMetrics("test")

	m.ObserveBackward(4, 2*time.Millisecond, nil)
	m.ObserveBackward(3, time.Millisecond, errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.passes), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.failures), 1e-9)
	assert.InDelta(t, 7, testutil.ToFloat64(m.processed), 1e-9)
	assert.Equal(t, 4, testutil.CollectAndCount(m))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))
	n, err := testutil.GatherAndCount(reg, "test_backward_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
