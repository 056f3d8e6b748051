package prometheusmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCountEngineEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.VotingCreated()
	m.VoteCast(true, 2)
	m.VoteCast(false, 1)
	m.VoteCast(true, 1)
	m.VoteRejected("already_voted")
	m.VoteRejected("")
	m.VotingCompleted()
	m.NotificationSent()
	m.NotificationFailed()
	m.ReconcileSweep(20*time.Millisecond, 2)
	m.ReconcileSweep(10*time.Millisecond, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.votingsCreated))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.votesCast.WithLabelValues("true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.votesCast.WithLabelValues("false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.votesRejected.WithLabelValues("already_voted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.votesRejected.WithLabelValues("unknown")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notificationsFailed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.sweepFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sweepDuration))
}
