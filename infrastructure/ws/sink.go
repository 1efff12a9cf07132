package ws

import (
	"context"
	"log/slog"

	"mentorlink/domain/event"
	"mentorlink/observability"
)

// ChannelSink bridges the fanout worker and one websocket connection. The
// fanout goroutine pushes into the buffer; the connection's write pump
// drains it. A full buffer drops the event rather than stalling fan-out
// for every other channel.
type ChannelSink struct {
	log        *slog.Logger
	events     chan event.ChannelEvent
	monitoring *observability.MonitoringManager // nil when metrics are off
}

func NewChannelSink(log *slog.Logger, bufferSize int, monitoring *observability.MonitoringManager) *ChannelSink {
	return &ChannelSink{
		log:        log,
		events:     make(chan event.ChannelEvent, bufferSize),
		monitoring: monitoring,
	}
}

// Consume is called by the fanout worker. It hands the event over to the
// connection's write pump.
func (s *ChannelSink) Consume(ctx context.Context, e event.ChannelEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Warn("Channel sink backpressure, dropping event", "kind", e.Kind())
		if s.monitoring != nil {
			s.monitoring.IncrDroppedEvents()
		}
		return nil
	}
}

// Events exposes the buffer to the connection's write pump.
func (s *ChannelSink) Events() <-chan event.ChannelEvent {
	return s.events
}
