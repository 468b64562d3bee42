// Package telemetry owns the OpenTelemetry instruments of the server. The
// global meter provider is a no-op unless the process installs one, so every
// instrument is safe to use in tests.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "tankarena.gg/internal/telemetry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// World instruments the tick loop. A nil *World records nothing.
type World struct {
	stepMS   metric.Float64Histogram
	commands metric.Int64Counter
	kills    metric.Int64Counter
	players  metric.Int64ObservableGauge
}

// NewWorld registers the world instruments. players is polled by the
// collector and must be safe to call from any goroutine.
func NewWorld(players func() int64) (*World, error) {
	m := meter()
	w := &World{}
	var err error

	w.stepMS, err = m.Float64Histogram(
		"world.step.duration",
		metric.WithDescription("Wall time spent in one simulation tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating step histogram: %w", err)
	}
	w.commands, err = m.Int64Counter(
		"world.commands.ingested",
		metric.WithDescription("Client commands routed into the simulation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating commands counter: %w", err)
	}
	w.kills, err = m.Int64Counter(
		"world.kills",
		metric.WithDescription("Tanks destroyed by bullets"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kills counter: %w", err)
	}
	w.players, err = m.Int64ObservableGauge(
		"world.players",
		metric.WithDescription("Tanks currently in the arena"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating players gauge: %w", err)
	}
	if players != nil {
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(w.players, players())
			return nil
		}, w.players)
		if err != nil {
			return nil, fmt.Errorf("registering players callback: %w", err)
		}
	}
	return w, nil
}

func (w *World) Step(ctx context.Context, ms float64) {
	if w == nil {
		return
	}
	w.stepMS.Record(ctx, ms)
}

func (w *World) Command(ctx context.Context, typ string) {
	if w == nil {
		return
	}
	w.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("type", typ)))
}

func (w *World) Kill(ctx context.Context, blocked bool) {
	if w == nil || blocked {
		return
	}
	w.kills.Add(ctx, 1)
}

// Broadcast instruments snapshot fan-out. A nil *Broadcast records nothing.
type Broadcast struct {
	frames  metric.Int64Counter
	dropped metric.Int64Counter
	bytes   metric.Int64Counter
}

func NewBroadcast() (*Broadcast, error) {
	m := meter()
	b := &Broadcast{}
	var err error

	b.frames, err = m.Int64Counter(
		"broadcast.frames.sent",
		metric.WithDescription("Frames queued to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	b.dropped, err = m.Int64Counter(
		"broadcast.frames.dropped",
		metric.WithDescription("Frames dropped from full subscriber queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	b.bytes, err = m.Int64Counter(
		"broadcast.bytes.encoded",
		metric.WithDescription("Encoded snapshot bytes per encoding"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bytes counter: %w", err)
	}
	return b, nil
}

func (b *Broadcast) Sent(ctx context.Context, n int, dropped int) {
	if b == nil {
		return
	}
	b.frames.Add(ctx, int64(n))
	if dropped > 0 {
		b.dropped.Add(ctx, int64(dropped))
	}
}

func (b *Broadcast) Encoded(ctx context.Context, encoding string, n int) {
	if b == nil {
		return
	}
	b.bytes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("encoding", encoding)))
}
