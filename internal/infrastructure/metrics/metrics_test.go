package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGateDecisionsTotal(t *testing.T) {
	counter := GateDecisionsTotal.WithLabelValues("test.job", "admitted")
	before := testutil.ToFloat64(counter)

	counter.Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestCollectorsRegistered(t *testing.T) {
	LedgerGuardRejectionsTotal.Add(0)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(LedgerGuardRejectionsTotal), 1)
}
