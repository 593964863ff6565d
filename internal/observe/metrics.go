// Package observe holds the OpenTelemetry instruments shared by the call
// machine and the relay. Tests should build their own [Metrics] with
// [NewMetrics] over a private MeterProvider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dkeye/peercall"

// Metrics holds all metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	// CallsStarted counts sessions by attribute.String("direction", "outgoing"|"incoming").
	CallsStarted metric.Int64Counter

	// CallsEnded counts sessions by attribute.String("reason", ...).
	CallsEnded metric.Int64Counter

	// Renegotiations counts rounds by attribute.String("outcome", ...):
	// sent, coalesced, collision, timeout.
	Renegotiations metric.Int64Counter

	// SignalsRelayed counts frames forwarded by the relay, by event.
	SignalsRelayed metric.Int64Counter

	// SignalsDropped counts frames the relay could not deliver, by reason.
	SignalsDropped metric.Int64Counter

	ActiveCalls   metric.Int64UpDownCounter
	ActiveParties metric.Int64UpDownCounter

	// CallSetupDuration is the time from session start to first remote media.
	CallSetupDuration metric.Float64Histogram
}

var setupBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallsStarted, err = m.Int64Counter("peercall.calls.started",
		metric.WithDescription("Call sessions started by direction."),
	); err != nil {
		return nil, err
	}
	if met.CallsEnded, err = m.Int64Counter("peercall.calls.ended",
		metric.WithDescription("Call sessions ended by reason."),
	); err != nil {
		return nil, err
	}
	if met.Renegotiations, err = m.Int64Counter("peercall.renegotiations",
		metric.WithDescription("Renegotiation triggers by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SignalsRelayed, err = m.Int64Counter("peercall.relay.signals",
		metric.WithDescription("Signaling frames forwarded by event."),
	); err != nil {
		return nil, err
	}
	if met.SignalsDropped, err = m.Int64Counter("peercall.relay.dropped",
		metric.WithDescription("Signaling frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("peercall.active_calls",
		metric.WithDescription("Call sessions currently past Idle."),
	); err != nil {
		return nil, err
	}
	if met.ActiveParties, err = m.Int64UpDownCounter("peercall.relay.active_parties",
		metric.WithDescription("Parties connected to the relay."),
	); err != nil {
		return nil, err
	}
	if met.CallSetupDuration, err = m.Float64Histogram("peercall.call.setup.duration",
		metric.WithDescription("Time from call start to first remote media."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(setupBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance over the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) CallStarted(ctx context.Context, direction string) {
	if m == nil {
		return
	}
	m.CallsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
	m.ActiveCalls.Add(ctx, 1)
}

func (m *Metrics) CallEnded(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.CallsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.ActiveCalls.Add(ctx, -1)
}

func (m *Metrics) CallConnected(ctx context.Context, setup time.Duration) {
	if m == nil {
		return
	}
	m.CallSetupDuration.Record(ctx, setup.Seconds())
}

func (m *Metrics) Renegotiation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Renegotiations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Relayed(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.SignalsRelayed.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *Metrics) Dropped(ctx context.Context, event, reason string) {
	if m == nil {
		return
	}
	m.SignalsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) PartyOnline(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveParties.Add(ctx, delta)
}
