package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/vinstackcode/internal/events"
)

// Subscriber is the read side of the event bus.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.ChangeEvent, error)
}

// Broadcaster is the part of the hub the bridge needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, msg Message) error
}

// Bridge forwards change events from the bus to websocket rooms. Snippet
// events become row_change messages in the snippet's room; events addressed
// to a user become notification messages in that user's room.
type Bridge struct {
	sub    Subscriber
	out    Broadcaster
	logger *slog.Logger
}

func NewBridge(sub Subscriber, out Broadcaster, logger *slog.Logger) *Bridge {
	return &Bridge{
		sub:    sub,
		out:    out,
		logger: logger.With(slog.String("component", "event-bridge")),
	}
}

func (b *Bridge) String() string { return "event-bridge" }

// Serve forwards events until ctx is canceled. A closed subscription is an
// error so the supervisor resubscribes.
func (b *Bridge) Serve(ctx context.Context) error {
	ch, err := b.sub.Subscribe(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("event bridge subscribed", slog.String("topic", events.Topic))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("realtime: event subscription closed")
			}
			if err := b.Forward(ctx, ev); err != nil && ctx.Err() == nil {
				b.logger.Warn("failed to forward change event",
					slog.String("table", ev.Table),
					slog.String("recordId", ev.RecordID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Forward routes a single event. An event may go to both a snippet room and
// a user room.
func (b *Bridge) Forward(ctx context.Context, ev events.ChangeEvent) error {
	if ev.SnippetID != "" {
		msg, err := NewMessage(TypeRowChange, ev)
		if err != nil {
			return err
		}
		if err := b.out.Broadcast(ctx, SnippetRoom(ev.SnippetID), msg); err != nil {
			return err
		}
	}
	if ev.UserID != "" {
		msg, err := NewMessage(TypeNotification, ev)
		if err != nil {
			return err
		}
		if err := b.out.Broadcast(ctx, UserRoom(ev.UserID), msg); err != nil {
			return err
		}
	}
	return nil
}
