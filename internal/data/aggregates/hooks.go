package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/observability"
)

// Hooks receives one event per dataset write, plus conflict and retryable
// failure counts keyed by operation name.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

// MetricsHooks serves both the storage writes in this package and the
// aggregator. It is safe to use with nil metrics.
type MetricsHooks interface {
	Hooks
	aggregator.Hooks
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) IncLinkCreated(string)                          {}
func (noopHooks) IncUpdatePath(string)                           {}

// metricsHooks forwards to observability metrics, whose methods are nil safe.
type metricsHooks struct {
	m *observability.Metrics
}

// NewObservabilityHooks creates hooks backed by observability metrics.
func NewObservabilityHooks(m *observability.Metrics) MetricsHooks {
	if m == nil {
		return noopHooks{}
	}
	return metricsHooks{m: m}
}

func (h metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.m.ObserveAggregateOperation(strings.TrimSpace(name), strings.TrimSpace(status), dur)
}

func (h metricsHooks) IncConflict(name string) { h.m.IncAggregateConflict(strings.TrimSpace(name)) }

func (h metricsHooks) IncRetry(name string) { h.m.IncAggregateRetry(strings.TrimSpace(name)) }

func (h metricsHooks) IncLinkCreated(signature string) { h.m.IncLinkCreated(signature) }

func (h metricsHooks) IncUpdatePath(path string) { h.m.IncUpdatePath(strings.TrimSpace(path)) }
