package application

import (
	"log/slog"
	"time"

	"sntportal/contexts/governance/voting-engine/ports"
)

const LogModule = "governance/voting-engine"

// ResolveLogger guarantees a non-nil logger for application and worker paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ResolveMetrics substitutes a no-op sink when metrics are not wired.
func ResolveMetrics(metrics ports.Metrics) ports.Metrics {
	if metrics == nil {
		return nopMetrics{}
	}
	return metrics
}

type nopMetrics struct{}

func (nopMetrics) VotingCreated()                    {}
func (nopMetrics) VoteCast(bool, int)                {}
func (nopMetrics) VoteRejected(string)               {}
func (nopMetrics) VotingCompleted()                  {}
func (nopMetrics) VotingArchived()                   {}
func (nopMetrics) VotingDeleted()                    {}
func (nopMetrics) NotificationSent()                 {}
func (nopMetrics) NotificationFailed()               {}
func (nopMetrics) ReconcileSweep(time.Duration, int) {}
