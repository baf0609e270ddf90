package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/sakif/vinstackcode/internal/breaker"
	"github.com/sakif/vinstackcode/internal/metrics"
)

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Bus publishes and subscribes to change events over watermill.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *breaker.Breaker
	logger     *slog.Logger
	closers    []func() error
}

var _ Publisher = (*Bus)(nil)

// NewInProcessBus returns a bus backed by a watermill gochannel. Events only
// reach subscribers in this process.
func NewInProcessBus(logger *slog.Logger) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewSlogLogger(logger))

	return &Bus{
		publisher:  ch,
		subscriber: ch,
		logger:     logger,
		closers:    []func() error{ch.Close},
	}
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration
}

// NewNATSBus returns a bus over core NATS. JetStream is disabled: events
// drive live screens and a client that misses one re-fetches on reconnect, so
// nothing needs to be persisted. Every instance subscribes without a queue
// group so each one sees every event.
func NewNATSBus(cfg NATSConfig, b *breaker.Breaker, logger *slog.Logger) (*Bus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &Bus{
		publisher:  pub,
		subscriber: sub,
		breaker:    b,
		logger:     logger,
		closers:    []func() error{sub.Close, pub.Close},
	}, nil
}

// Publish validates and sends ev. A failing transport trips the breaker so
// writes are not held up by a dead broker; the caller treats publish errors
// as non-fatal.
func (b *Bus) Publish(ctx context.Context, ev ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encoding event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("table", ev.Table)
	msg.Metadata.Set("action", string(ev.Action))

	send := func() error { return b.publisher.Publish(Topic, msg) }
	if b.breaker != nil {
		err = b.breaker.Do(send)
	} else {
		err = send()
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.EventsPublished.WithLabelValues(ev.Table, outcome).Inc()
	if err != nil {
		return fmt.Errorf("events: publishing %s %s: %w", ev.Action, ev.Table, err)
	}
	return nil
}

// Subscribe streams decoded events until ctx is canceled. Undecodable
// messages are logged and skipped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	msgs, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribing: %w", err)
	}

	out := make(chan ChangeEvent, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			ev, err := Decode(msg.Payload)
			msg.Ack()
			if err != nil {
				b.logger.Warn("dropping malformed change event",
					slog.String("messageId", msg.UUID),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Decode parses a message payload.
func Decode(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("events: decoding event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}

// Close releases the transport.
func (b *Bus) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards every event. It stands in when realtime delivery is not
// wanted, for example in command-line tools and tests.
type Nop struct{}

func (Nop) Publish(context.Context, ChangeEvent) error { return nil }
