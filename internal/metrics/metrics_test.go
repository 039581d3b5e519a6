package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(operations.WithLabelValues("split", "ok"))
	ObserveOperation("split", "ok", 20*time.Millisecond)
	ObserveOperation("split", "invalid", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(operations.WithLabelValues("split", "ok")))

	AddPages("split", 3)
	assert.GreaterOrEqual(t, testutil.ToFloat64(pagesWritten.WithLabelValues("split")), 3.0)
}

func TestObserveSweep(t *testing.T) {
	before := testutil.ToFloat64(sweptFiles)
	ObserveSweep(2, 5, time.Millisecond)
	assert.Equal(t, before+2, testutil.ToFloat64(SweptTotal()))
	assert.Equal(t, 5.0, testutil.ToFloat64(tempFiles))
}

func TestCleanupFailures(t *testing.T) {
	IncCleanupFailure("request")
	IncCleanupFailure("request")
	assert.GreaterOrEqual(t, testutil.ToFloat64(cleanupFailures.WithLabelValues("request")), 2.0)
}
