package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTickRecordsSample(t *testing.T) {
	ObserveTick("wavax-usdc-metrics-test", 0.25)
	count := testutil.CollectAndCount(tickDuration)
	assert.GreaterOrEqual(t, count, 1)
}

func TestRecordOpportunityIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(opportunitiesFound.WithLabelValues("pair-a", "BUY"))
	RecordOpportunity("pair-a", "BUY", 0)
	after := testutil.ToFloat64(opportunitiesFound.WithLabelValues("pair-a", "BUY"))
	assert.Equal(t, before, after)

	RecordOpportunity("pair-a", "BUY", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(opportunitiesFound.WithLabelValues("pair-a", "BUY")))
}

func TestRecordGasSpentIgnoresNilAndZero(t *testing.T) {
	before := testutil.ToFloat64(gasSpentWei.WithLabelValues("pair-b"))
	RecordGasSpent("pair-b", nil)
	RecordGasSpent("pair-b", big.NewInt(0))
	assert.Equal(t, before, testutil.ToFloat64(gasSpentWei.WithLabelValues("pair-b")))

	RecordGasSpent("pair-b", big.NewInt(21000))
	assert.Equal(t, before+21000, testutil.ToFloat64(gasSpentWei.WithLabelValues("pair-b")))
}

func TestRecordTradeIncrementsOutcome(t *testing.T) {
	before := testutil.ToFloat64(tradesExecuted.WithLabelValues("pair-c", "success"))
	RecordTrade("pair-c", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(tradesExecuted.WithLabelValues("pair-c", "success")))
}

func TestRecordCircuitBreakerTripIncrements(t *testing.T) {
	before := testutil.ToFloat64(circuitBreakerTrips.WithLabelValues("pair-d", "threshold"))
	RecordCircuitBreakerTrip("pair-d", "threshold")
	assert.Equal(t, before+1, testutil.ToFloat64(circuitBreakerTrips.WithLabelValues("pair-d", "threshold")))
}
