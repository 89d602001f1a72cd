// Package eventbus fans events out between daemons over redis pub/sub.
// The captions daemon publishes caption events to a meeting's channel; every
// signaling server with members in that meeting subscribes and forwards the
// payloads into its local websocket sessions.
package eventbus

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const meetingChannelPrefix = "meeting:"

type Publisher interface {
	Publish(meetingID string, payload []byte) error
}

type Subscriber interface {
	Subscribe(meetingID string) (Bus, error)
}

// Bus is the channel of messages a subscription drains.
type Bus interface {
	Channel() <-chan *redis.Message
	Close() error
}

type Subscription struct {
	pubsub *redis.PubSub
}

func (s *Subscription) Channel() <-chan *redis.Message {
	return s.pubsub.Channel()
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

type Eventbus struct {
	rdb *redis.Client
}

// RedisPubSub is factory for building Eventbus based on redis pubsub
func RedisPubSub(rdb *redis.Client) *Eventbus {
	return &Eventbus{rdb: rdb}
}

func (e *Eventbus) Publish(meetingID string, payload []byte) error {
	return e.rdb.Publish(context.Background(), meetingChannelPrefix+meetingID, payload).Err()
}

func (e *Eventbus) Subscribe(meetingID string) (Bus, error) {
	ctx := context.Background()
	pubsub := e.rdb.Subscribe(ctx, meetingChannelPrefix+meetingID)
	// Wait until the subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	return &Subscription{pubsub: pubsub}, nil
}
