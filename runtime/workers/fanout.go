package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mentorlink/contract"
	"mentorlink/domain/event"
)

// Fanout routes channel events to connected client sinks and to the
// permanent sinks (search index, telemetry).
//
// Routing rules:
//   - NewMessage: every channel of the sender and of the recipient. The
//     recipient sees it live on all tabs; the sender's tabs render from the
//     same event stream, keeping one source of truth for order.
//   - UserTyping / UserStopTyping: only channels subscribed to the event's
//     conversation, excluding the typist's own channels.
//   - UserOnline / UserOffline: every connected channel.
//
// A single goroutine drains the event channel, so events keep their emit
// order per sender. Delivery to one sink is bounded by sinkTimeout; a slow
// client cannot stall the others beyond that.
type Fanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	events         chan event.ChannelEvent
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
}

func NewFanout(log *slog.Logger, registry contract.IRegistry,
	events chan event.ChannelEvent, sinkTimeout time.Duration) *Fanout {
	return &Fanout{
		log:         log,
		registry:    registry,
		events:      events,
		sinkTimeout: sinkTimeout,
	}
}

// Add appends permanent sinks consuming every routed event.
func (w *Fanout) Add(sinks ...contract.EventSink) *Fanout {
	w.permanentSinks = append(w.permanentSinks, sinks...)
	return w
}

func (w *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Route(ctx, evt)
		}
	}
}

// Route resolves the target sinks of one event and delivers to each.
func (w *Fanout) Route(ctx context.Context, evt event.ChannelEvent) {
	var targets []contract.EventSink

	switch e := evt.(type) {
	case event.NewMessage:
		targets = append(w.registry.SinksForUser(e.RecipientID),
			w.registry.SinksForUser(e.SenderID)...)
	case event.UserTyping:
		targets = w.registry.SinksForConversation(e.ConversationID, e.UserID)
	case event.UserStopTyping:
		targets = w.registry.SinksForConversation(e.ConversationID, e.UserID)
	case event.UserOnline, event.UserOffline:
		targets = w.registry.AllSinks()
	default:
		w.log.Debug(fmt.Sprintf("No routing rule for event %T", evt))
	}

	for _, sink := range targets {
		w.deliver(ctx, sink, evt)
	}
	for _, sink := range w.permanentSinks {
		w.deliver(ctx, sink, evt)
	}
}

func (w *Fanout) deliver(ctx context.Context, sink contract.EventSink, evt event.ChannelEvent) {
	deliveryCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()

	if err := sink.Consume(deliveryCtx, evt); err != nil {
		// A recipient without a responsive channel is not an error of the
		// core: the store remains the source of truth on next fetch.
		w.log.Warn("Sink did not accept event", "kind", evt.Kind(), "error", err)
	}
}
