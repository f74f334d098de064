package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayExponentialGrowth(t *testing.T) {
	r := New(&Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: 0})
	d1 := r.NextDelay()
	d2 := r.NextDelay()
	assert.Equal(t, 10*time.Millisecond, d1)
	assert.Equal(t, 20*time.Millisecond, d2)
}

func TestNextDelayClampsToMax(t *testing.T) {
	r := New(&Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond, Multiplier: 10, Jitter: 0})
	r.NextDelay()
	d2 := r.NextDelay()
	assert.LessOrEqual(t, d2, 150*time.Millisecond)
}

func TestNextDelayFlatWithMultiplierOne(t *testing.T) {
	r := New(&Config{InitialDelay: 500 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Multiplier: 1, Jitter: 0})
	d1 := r.NextDelay()
	d2 := r.NextDelay()
	assert.Equal(t, 500*time.Millisecond, d1)
	assert.Equal(t, 500*time.Millisecond, d2)
}

func TestResetClearsAttempts(t *testing.T) {
	r := New(nil)
	r.NextDelay()
	r.NextDelay()
	assert.Equal(t, 2, r.Attempts())
	r.Reset()
	assert.Equal(t, 0, r.Attempts())
}
