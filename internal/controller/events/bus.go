package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
)

const (
	metadataEventType = "event_type"
	metadataAppSlug   = "app_slug"

	defaultBufferSize = 64
)

// Publisher is the side of the bus used by components producing outcomes.
type Publisher interface {
	Publish(*Event) error
}

// Bus is the notification channel between the coordinators and whatever
// presents their outcomes. Each subscription receives events of its topic in
// publish order on its own channel.
type Bus struct {
	logger *zap.Logger
	pubSub *gochannel.GoChannel

	alertsLock sync.RWMutex
	alerts     map[string]string
}

func NewBus(zLogger *zap.Logger) *Bus {
	l := zLogger.Named(logger.ComponentNameEvents)

	return &Bus{
		logger: l,
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: defaultBufferSize,

				// Without waiting for the ack, consecutive messages race each
				// other to the subscriber and lose their order. Subscriptions
				// ack without blocking, see subscribe.
				BlockPublishUntilSubscriberAck: true,
			},
			logger.NewWatermillAdapter(l),
		),
		alerts: make(map[string]string),
	}
}

func (b *Bus) Publish(e *Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(metadataEventType, string(e.Type))
	msg.Metadata.Set(metadataAppSlug, e.AppSlug)

	if e.Type == TypeAlertMessage {
		b.alertsLock.Lock()
		b.alerts[e.AppSlug] = e.Message
		b.alertsLock.Unlock()
	}

	if err := b.pubSub.Publish(string(e.Type), msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("published event",
		zap.String("type", string(e.Type)),
		zap.String("app_slug", e.AppSlug))

	return nil
}

// AlertMessage returns the latest alert published for the app slug, or the
// empty string meaning "no alert".
func (b *Bus) AlertMessage(appSlug string) string {
	b.alertsLock.RLock()
	defer b.alertsLock.RUnlock()
	return b.alerts[appSlug]
}

// Subscribe returns the events of one topic, optionally restricted to one
// app slug when appSlug is not empty. The channel is closed when ctx is done,
// the bus is closed or the subscriber falls more than defaultBufferSize
// events behind.
func (b *Bus) Subscribe(ctx context.Context, topic Type, appSlug string) (<-chan *Event, error) {
	return b.subscribe(ctx, appSlug, []Type{topic})
}

// SubscribeAll merges the given topics, or every topic when none is given,
// into one channel. Events arrive in the order they were published.
func (b *Bus) SubscribeAll(ctx context.Context, appSlug string, topics ...Type) (<-chan *Event, error) {
	if len(topics) == 0 {
		topics = Topics
	}
	return b.subscribe(ctx, appSlug, topics)
}

// subscribe never blocks the publisher: each message is acked only after it
// has been queued on out, and a full out ends the subscription.
func (b *Bus) subscribe(ctx context.Context, appSlug string, topics []Type) (<-chan *Event, error) {

	ctx, cancel := context.WithCancel(ctx)

	out := make(chan *Event, defaultBufferSize)

	var (
		wg         sync.WaitGroup
		overflowed atomic.Bool
	)

	overflow := func(topic Type) {
		if overflowed.CompareAndSwap(false, true) {
			b.logger.Warn("subscriber is not keeping up, closing subscription",
				zap.String("topic", string(topic)),
				zap.String("app_slug", appSlug))
			cancel()
		}
	}

	for _, topic := range topics {
		messages, err := b.pubSub.Subscribe(ctx, string(topic))
		if err != nil {
			cancel()
			wg.Wait()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			for msg := range messages {
				if overflowed.Load() || (appSlug != "" && msg.Metadata.Get(metadataAppSlug) != appSlug) {
					msg.Ack()
					continue
				}

				var e Event
				if err := json.Unmarshal(msg.Payload, &e); err != nil {
					b.logger.Error("failed to decode event", zap.String("message_uuid", msg.UUID), zap.Error(err))
					msg.Ack()
					continue
				}

				select {
				case out <- &e:
				default:
					overflow(topic)
				}
				msg.Ack()
			}
		}()
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	return out, nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}
