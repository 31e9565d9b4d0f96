package feed

import (
	"context"
	"log/slog"
	"sync/atomic"

	"order-matcher/internal/engine"
)

// Sink receives batches of executed trades. Sinks must not modify the batch.
type Sink interface {
	Name() string
	Publish(ctx context.Context, trades []engine.Trade) error
}

// Dispatcher fans trade batches out to every sink on its own goroutine,
// so the matching loop never waits on a slow consumer.
type Dispatcher struct {
	batches chan []engine.Trade
	sinks   []Sink
	log     *slog.Logger

	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher buffering up to buffer batches
func NewDispatcher(buffer int, log *slog.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		batches: make(chan []engine.Trade, buffer),
		sinks:   sinks,
		log:     log,
	}
}

// Send queues a batch without blocking. It returns false and drops the batch when the buffer is full.
func (d *Dispatcher) Send(trades []engine.Trade) bool {
	if len(trades) == 0 {
		return true
	}
	select {
	case d.batches <- trades:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn("trade feed full, batch dropped",
			slog.Int("trades", len(trades)),
			slog.Uint64("dropped_total", d.dropped.Load()),
		)
		return false
	}
}

// Dropped returns how many batches were discarded
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers batches until ctx is cancelled, then flushes whatever is still buffered
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("trade feed started", slog.Int("sinks", len(d.sinks)))
	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			d.log.Info("trade feed stopped")
			return
		case batch := <-d.batches:
			d.deliver(ctx, batch)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case batch := <-d.batches:
			d.deliver(ctx, batch)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, batch []engine.Trade) {
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, batch); err != nil {
			d.log.Error("trade sink failed",
				slog.String("sink", sink.Name()),
				slog.Int("trades", len(batch)),
				slog.Any("error", err),
			)
		}
	}
}
