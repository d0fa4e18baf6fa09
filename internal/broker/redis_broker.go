package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Baaaki/parley/pkg/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// GroupPattern matches every conversation group channel.
const GroupPattern = "conversation:*"

// ConnectRedis parses url and pings until Redis answers or the retry budget
// is spent.
func ConnectRedis(ctx context.Context, url string, attempts int, maxWait time.Duration) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Log.Warn("Redis not ready, retrying",
				zap.Duration("next_retry", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// RedisBroadcaster publishes through Redis so every instance's Hub receives
// every group payload, including the publisher's own.
type RedisBroadcaster struct {
	client *redis.Client
	pubsub *redis.PubSub
	hub    *Hub

	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisBroadcaster subscribes to GroupPattern and starts relaying into hub.
// It returns once the subscription is confirmed, so nothing published after
// it returns can be missed.
func NewRedisBroadcaster(ctx context.Context, client *redis.Client, hub *Hub) (*RedisBroadcaster, error) {
	pubsub := client.PSubscribe(ctx, GroupPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", GroupPattern, err)
	}

	b := &RedisBroadcaster{
		client: client,
		pubsub: pubsub,
		hub:    hub,
		done:   make(chan struct{}),
	}
	go b.relay()
	return b, nil
}

func (b *RedisBroadcaster) relay() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		b.hub.Publish(msg.Channel, []byte(msg.Payload))
	}
}

func (b *RedisBroadcaster) Join(key string, sub Subscriber)  { b.hub.Join(key, sub) }
func (b *RedisBroadcaster) Leave(key string, sub Subscriber) { b.hub.Leave(key, sub) }

func (b *RedisBroadcaster) Publish(ctx context.Context, key string, payload []byte) error {
	return b.client.Publish(ctx, key, payload).Err()
}

// Close stops the relay. The Redis client belongs to the caller.
func (b *RedisBroadcaster) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.pubsub.Close()
		<-b.done
	})
	return err
}
