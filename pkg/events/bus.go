package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/bookhook/pkg/metrics"
)

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ev Event)
}

// Sink delivers events to one external system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Bus queues events and hands them to every sink from a single goroutine, so hook
// callbacks never wait on the network.
type Bus struct {
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewBus(log *zap.SugaredLogger, m *metrics.Metrics, buffer int, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bus{
		sinks:   sinks,
		queue:   make(chan Event, buffer),
		timeout: 2 * time.Second,
		log:     log,
		metrics: m,
	}
}

// Add registers another sink. Call before Run.
func (b *Bus) Add(s Sink) { b.sinks = append(b.sinks, s) }

// Publish enqueues ev, dropping it when the queue is full.
func (b *Bus) Publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		b.log.Warnw("event_dropped", "kind", ev.Kind, "pool", ev.PoolID)
	}
}

// Run delivers queued events until ctx is done, then drains what is left.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.queue:
					b.deliver(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ctx context.Context, ev Event) {
	for _, s := range b.sinks {
		sctx, cancel := context.WithTimeout(ctx, b.timeout)
		err := s.Publish(sctx, ev)
		cancel()
		b.metrics.RecordPublish(s.Name(), err)
		if err != nil {
			b.log.Warnw("event_publish_failed", "sink", s.Name(), "kind", ev.Kind, "pool", ev.PoolID, "err", err)
		}
	}
}
