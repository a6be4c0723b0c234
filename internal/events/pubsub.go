package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
)

// PubSub is a publisher/subscriber pair.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both sides.
func (ps *PubSub) Close() error {
	perr := ps.Publisher.Close()
	if ps.Subscriber == nil || any(ps.Subscriber) == any(ps.Publisher) {
		return perr
	}
	if err := ps.Subscriber.Close(); err != nil {
		return err
	}
	return perr
}

// NewPubSub uses redis streams when client is set so every instance sees
// every event, and an in-process channel otherwise.
func NewPubSub(client *redis.Client, logger watermill.LoggerAdapter) (*PubSub, error) {
	if client == nil {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch}, nil
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("redis publisher: %w", err)
	}
	// no consumer group: fan-out to every instance
	subscriber, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{Client: client},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("redis subscriber: %w", err)
	}
	return &PubSub{Publisher: publisher, Subscriber: subscriber}, nil
}

// SubscribeTips calls handle for every verified tip until ctx ends.
// Undecodable messages are logged and acked so they are not redelivered.
func SubscribeTips(ctx context.Context, sub message.Subscriber, log *zap.Logger, handle func(models.Tip)) error {
	messages, err := sub.Subscribe(ctx, TopicTipVerified)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicTipVerified, err)
	}

	go func() {
		for msg := range messages {
			var tip models.Tip
			if err := json.Unmarshal(msg.Payload, &tip); err != nil {
				log.Warn("drop malformed tip event", zap.String("uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			handle(tip)
			msg.Ack()
		}
	}()
	return nil
}
