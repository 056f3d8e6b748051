package prometheusmetrics

import (
	"strconv"
	"time"

	"sntportal/contexts/governance/voting-engine/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voting_engine"

type Metrics struct {
	votingsCreated      prometheus.Counter
	votesCast           *prometheus.CounterVec
	voteSelections      prometheus.Histogram
	votesRejected       *prometheus.CounterVec
	votingsCompleted    prometheus.Counter
	votingsArchived     prometheus.Counter
	votingsDeleted      prometheus.Counter
	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter
	sweepDuration       prometheus.Histogram
	sweepFailures       prometheus.Counter
}

// New registers the engine collectors on registry. A nil registry uses the
// default registerer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		votingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votings_created_total",
			Help:      "Ballots created",
		}),
		votesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Accepted votes by ballot kind",
		}, []string{"multiple_choice"}),
		voteSelections: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_selected_options",
			Help:      "Options selected per accepted vote",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}),
		votesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_rejected_total",
			Help:      "Rejected votes by reason",
		}, []string{"reason"}),
		votingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votings_completed_total",
			Help:      "Ballots moved to completed",
		}),
		votingsArchived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votings_archived_total",
			Help:      "Ballots archived",
		}),
		votingsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votings_deleted_total",
			Help:      "Ballots deleted",
		}),
		notificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_notifications_sent_total",
			Help:      "Completion notices accepted by the delivery service",
		}),
		notificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_notifications_failed_total",
			Help:      "Completion notice attempts that failed",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_sweep_duration_seconds",
			Help:      "Duration of reconcile sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_sweep_failures_total",
			Help:      "Ballots that failed to reconcile during a sweep",
		}),
	}
}

func (m *Metrics) VotingCreated() { m.votingsCreated.Inc() }

func (m *Metrics) VoteCast(multipleChoice bool, selected int) {
	m.votesCast.WithLabelValues(strconv.FormatBool(multipleChoice)).Inc()
	m.voteSelections.Observe(float64(selected))
}

func (m *Metrics) VoteRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.votesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) VotingCompleted()    { m.votingsCompleted.Inc() }
func (m *Metrics) VotingArchived()     { m.votingsArchived.Inc() }
func (m *Metrics) VotingDeleted()      { m.votingsDeleted.Inc() }
func (m *Metrics) NotificationSent()   { m.notificationsSent.Inc() }
func (m *Metrics) NotificationFailed() { m.notificationsFailed.Inc() }

func (m *Metrics) ReconcileSweep(duration time.Duration, failed int) {
	m.sweepDuration.Observe(duration.Seconds())
	if failed > 0 {
		m.sweepFailures.Add(float64(failed))
	}
}

var _ ports.Metrics = (*Metrics)(nil)
