package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerHaltsImmediatelyOnCriticalError(t *testing.T) {
	cb := newCircuitBreaker(time.Minute, 5)
	assert.True(t, cb.RecordError(true))
	assert.True(t, cb.Halted())
}

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb := newCircuitBreaker(time.Minute, 3)
	assert.False(t, cb.RecordError(false))
	assert.False(t, cb.RecordError(false))
	assert.True(t, cb.RecordError(false))
}

func TestCircuitBreakerResetClearsState(t *testing.T) {
	cb := newCircuitBreaker(time.Minute, 2)
	cb.RecordError(false)
	cb.RecordError(false)
	assert.True(t, cb.Halted())

	cb.Reset()
	assert.False(t, cb.Halted())
	assert.False(t, cb.RecordError(false))
}

func TestPruneDropsOlderEntries(t *testing.T) {
	now := time.Now()
	errs := []time.Time{now.Add(-2 * time.Hour), now.Add(-1 * time.Minute), now}
	kept := prune(errs, now.Add(-time.Hour))
	assert.Len(t, kept, 2)
}
