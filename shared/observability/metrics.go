package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Submission outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeBlocked  = "blocked"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// ChatMetrics groups the instruments recorded by the chat pipeline. A nil
// *ChatMetrics records nothing.
type ChatMetrics struct {
	submissions     metric.Int64Counter
	decisions       metric.Int64Counter
	liveDeliveries  metric.Int64Counter
	readTransitions metric.Int64Counter
	connections     metric.Int64UpDownCounter
	submitLatency   metric.Float64Histogram
	breakerChanges  metric.Int64Counter
}

// NewChatMetrics creates the chat instruments on meter
func NewChatMetrics(meter metric.Meter) (*ChatMetrics, error) {
	m := &ChatMetrics{}
	var err error

	if m.submissions, err = meter.Int64Counter("chat_messages_submitted_total",
		metric.WithDescription("Messages submitted, by outcome")); err != nil {
		return nil, err
	}
	if m.decisions, err = meter.Int64Counter("chat_moderation_decisions_total",
		metric.WithDescription("Moderation decisions, by verdict and method")); err != nil {
		return nil, err
	}
	if m.liveDeliveries, err = meter.Int64Counter("chat_live_deliveries_total",
		metric.WithDescription("Messages pushed to an online recipient")); err != nil {
		return nil, err
	}
	if m.readTransitions, err = meter.Int64Counter("chat_messages_read_total",
		metric.WithDescription("Messages moved to read")); err != nil {
		return nil, err
	}
	if m.connections, err = meter.Int64UpDownCounter("chat_active_connections",
		metric.WithDescription("Open websocket connections")); err != nil {
		return nil, err
	}
	if m.submitLatency, err = meter.Float64Histogram("chat_submit_duration_seconds",
		metric.WithDescription("Time spent in the submit pipeline"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.breakerChanges, err = meter.Int64Counter("chat_dependency_breaker_transitions_total",
		metric.WithDescription("Circuit breaker state changes, by dependency and target state")); err != nil {
		return nil, err
	}
	return m, nil
}

// Submission records one submit outcome and its duration
func (m *ChatMetrics) Submission(ctx context.Context, outcome string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.submissions.Add(ctx, 1, attrs)
	m.submitLatency.Record(ctx, seconds, attrs)
}

// Decision records a moderation verdict
func (m *ChatMetrics) Decision(ctx context.Context, verdict, method string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", verdict),
		attribute.String("method", method),
	))
}

func (m *ChatMetrics) LiveDelivery(ctx context.Context) {
	if m == nil {
		return
	}
	m.liveDeliveries.Add(ctx, 1)
}

func (m *ChatMetrics) Read(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.readTransitions.Add(ctx, int64(n))
}

// ConnectionOpened and ConnectionClosed track the live socket gauge
func (m *ChatMetrics) ConnectionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, 1)
}

func (m *ChatMetrics) ConnectionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, -1)
}

// BreakerTransition counts a circuit state change of a dependency
func (m *ChatMetrics) BreakerTransition(ctx context.Context, dependency, to string) {
	if m == nil {
		return
	}
	m.breakerChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dependency", dependency),
		attribute.String("state", to),
	))
}
