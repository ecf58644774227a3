package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/upstreampay/payrouter/internal/domain"
)

// Sender is the interface each delivery channel must implement.
type Sender interface {
	// Send delivers one encoded event.
	Send(ctx context.Context, body []byte) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Dispatcher implements domain.EventSink by queueing events and
// delivering them to every sender from a background loop. Publish never
// blocks; when the queue is full the event is dropped with a warning.
type Dispatcher struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty allows all
	queue   chan domain.Event
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher delivering to the given senders.
// Only events whose type appears in events are forwarded; an empty list
// allows everything.
func NewDispatcher(senders []Sender, events []string, logger *slog.Logger) *Dispatcher {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Dispatcher{
		senders: senders,
		events:  allowed,
		queue:   make(chan domain.Event, 256),
		logger:  logger.With(slog.String("component", "webhook_dispatcher")),
	}
}

// Publish implements domain.EventSink.
func (d *Dispatcher) Publish(evt domain.Event) {
	if len(d.events) > 0 && !d.events[evt.Type] {
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Warn("webhook queue full, dropping event",
			slog.String("type", evt.Type),
		)
	}
}

// Run drains the queue until the context is cancelled. It should be
// called in a goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-d.queue:
			d.deliver(ctx, evt)
		}
	}
}

// deliver encodes the event once and sends it to every sender. Errors
// are logged per sender; one failure does not stop the others.
func (d *Dispatcher) deliver(ctx context.Context, evt domain.Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		d.logger.Error("failed to encode event",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, s := range d.senders {
		if err := s.Send(ctx, body); err != nil {
			d.logger.Error("webhook delivery failed",
				slog.String("endpoint", s.Name()),
				slog.String("type", evt.Type),
				slog.String("error", err.Error()),
			)
			continue
		}
		d.logger.Debug("webhook delivered",
			slog.String("endpoint", s.Name()),
			slog.String("type", evt.Type),
		)
	}
}

// Compile-time interface check.
var _ domain.EventSink = (*Dispatcher)(nil)
