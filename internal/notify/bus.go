package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"mediavault/internal/logging"
)

// Topic is the watermill topic carrying media events.
const Topic = "mediavault.media"

const defaultBuffer = 64

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("notification bus closed")

// Bus is an in-process, fire-and-forget event channel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
	buffer int
	closed atomic.Bool
}

// Option customizes a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// NewBus constructs a Bus. A nil logger discards watermill output.
func NewBus(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	bus := &Bus{
		logger: logging.NewComponentLogger(logger, "notify"),
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(bus)
	}
	bus.pubsub = gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: int64(bus.buffer)},
		watermill.NewSlogLogger(bus.logger),
	)
	return bus
}

// Publish broadcasts an event to the current subscribers.
func (b *Bus) Publish(event Event) error {
	if b == nil {
		return nil
	}
	if b.closed.Load() {
		return ErrClosed
	}
	payload, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(event.Kind))
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}
	return nil
}

// Subscribe returns a channel of events published after the call. The
// channel closes when ctx ends or the bus closes.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	out := make(chan Event, b.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			event, err := decodeEvent(msg.Payload)
			msg.Ack()
			if err != nil {
				b.logger.Warn("dropping malformed event",
					logging.String("message_uuid", msg.UUID),
					logging.Error(err),
				)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() error {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pubsub.Close()
}
