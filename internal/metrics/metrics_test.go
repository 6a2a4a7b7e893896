package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStartAndStop(t *testing.T) {
	before := testutil.ToFloat64(SessionStartsTotal.WithLabelValues(ResultOK))
	RecordStart(ResultOK, 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(SessionStartsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(SessionActive))

	stops := testutil.ToFloat64(SessionStopsTotal.WithLabelValues(CauseCrash))
	RecordStop(CauseCrash)
	assert.Equal(t, stops+1, testutil.ToFloat64(SessionStopsTotal.WithLabelValues(CauseCrash)))
	assert.Equal(t, float64(0), testutil.ToFloat64(SessionActive))
}

func TestRecordFailedStartLeavesGauge(t *testing.T) {
	SessionActive.Set(0)
	RecordStart("tunnel_url_not_found", 30*time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(SessionActive))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(StartDuration), 1)
}
