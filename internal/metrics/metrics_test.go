package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmirror/internal/stream"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg))

	m.SessionsTotal.Inc()
	m.AuthFailures.WithLabelValues("bad_secret").Inc()
	m.AuthFailures.WithLabelValues("bad_secret").Inc()
	m.ActiveSessions.Set(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("bad_secret")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestPumpCountersSurviveSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("t"))

	a := new(stream.Stats)
	untrack := m.Track(a)
	a.Packets.Add(3)
	a.Bytes.Add(100)
	assert.Equal(t, 3.0, gather(t, reg, "t_stream_packets_total"))

	untrack()
	untrack()
	a.Packets.Add(50) // no longer tracked

	b := new(stream.Stats)
	m.Track(b)
	b.Packets.Add(2)
	assert.Equal(t, 5.0, gather(t, reg, "t_stream_packets_total"))
	assert.Equal(t, 100.0, gather(t, reg, "t_stream_bytes_total"))
}

func TestLint(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(WithRegistry(reg))
	problems, err := testutil.GatherAndLint(reg)
	require.NoError(t, err)
	assert.Empty(t, problems)
}
