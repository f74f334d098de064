package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestRecordFrameSentIncrementsCounters(t *testing.T) {
	c := NewCollector()
	c.RecordFrameSent("data", 128)
	assert.Equal(t, float64(1), counterValue(t, c.FramesSent.WithLabelValues("data")))
	assert.Equal(t, float64(128), counterValue(t, c.BytesSent.WithLabelValues("data")))
}

func TestRecordStreamOpenedAndClosed(t *testing.T) {
	c := NewCollector()
	c.RecordStreamOpened()
	assert.Equal(t, float64(1), counterValue(t, c.StreamsOpened))
	assert.Equal(t, float64(1), counterValue(t, c.ActiveStreams))

	c.RecordStreamClosed()
	assert.Equal(t, float64(1), counterValue(t, c.StreamsClosed))
	assert.Equal(t, float64(0), counterValue(t, c.ActiveStreams))
}

func TestRecordReconnectAttempt(t *testing.T) {
	c := NewCollector()
	c.RecordReconnectAttempt(true)
	c.RecordReconnectAttempt(false)
	assert.Equal(t, float64(2), counterValue(t, c.ReconnectAttempts))
	assert.Equal(t, float64(1), counterValue(t, c.ReconnectSuccess))
	assert.Equal(t, float64(1), counterValue(t, c.ReconnectFailure))
}

func TestRegisterTwiceFails(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg))
}
