package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Baaaki/parley/internal/metrics"
	"github.com/Baaaki/parley/internal/wal"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher hands one serialized event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// RedisPublisher publishes to MessageCreatedChannel.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.client.Publish(ctx, MessageCreatedChannel, payload).Err()
}

// Forwarder drains the outbox into a Publisher.
type Forwarder struct {
	outbox    *wal.WAL
	publisher Publisher
	interval  time.Duration
}

func NewForwarder(outbox *wal.WAL, publisher Publisher, interval time.Duration) *Forwarder {
	return &Forwarder{outbox: outbox, publisher: publisher, interval: interval}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (f *Forwarder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flushAndLog(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.flushAndLog(final)
			cancel()
			return
		}
	}
}

func (f *Forwarder) flushAndLog(ctx context.Context) {
	if _, err := f.Flush(ctx); err != nil {
		logger.Log.Warn("Outbox flush incomplete", zap.Error(err))
	}
}

// Flush publishes outbox entries in order and removes the published ones.
// It stops at the first publish failure; the rest stay for the next flush,
// so delivery is at-least-once.
func (f *Forwarder) Flush(ctx context.Context) (int, error) {
	entries, err := f.outbox.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(entries))
	var pubErr error
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			// Unencodable entries can never succeed; drop them.
			published = append(published, e.MessageID)
			continue
		}
		if pubErr = f.publisher.Publish(ctx, payload); pubErr != nil {
			break
		}
		published = append(published, e.MessageID)
	}

	if err := f.outbox.Cleanup(published); err != nil {
		return 0, err
	}
	metrics.OutboxForwarded.Add(float64(len(published)))
	return len(published), pubErr
}
