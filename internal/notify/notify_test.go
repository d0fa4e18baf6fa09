package notify

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/wal"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOutbox(t *testing.T) *wal.WAL {
	t.Helper()
	w, err := wal.Open(filepath.Join(t.TempDir(), "outbox.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func message(text string) *models.Message {
	return &models.Message{
		ConversationID:   uuid.New(),
		MessageID:        uuid.Must(uuid.NewV7()),
		SenderID:         uuid.New(),
		Text:             text,
		MessageTimestamp: time.Now().UTC(),
	}
}

type flakyPublisher struct {
	mu      sync.Mutex
	failAt  int
	calls   int
	payload [][]byte
}

func (p *flakyPublisher) Publish(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls == p.failAt {
		return errors.New("broker down")
	}
	p.payload = append(p.payload, payload)
	return nil
}

func TestDispatcher_CloseFlushesQueue(t *testing.T) {
	outbox := openOutbox(t)
	d := NewDispatcher(outbox, 16)

	first := message("one")
	d.MessageCreated(first)
	d.MessageCreated(message("two"))
	d.Close()
	d.Close()

	entries, err := outbox.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.MessageID.String(), entries[0].MessageID)
	assert.Equal(t, first.ConversationID.String(), entries[0].ConversationID)

	// After Close, events are dropped rather than panicking.
	d.MessageCreated(message("late"))
}

func TestForwarder_StopsAtFirstFailureAndRetriesLater(t *testing.T) {
	outbox := openOutbox(t)
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, outbox.Write(wal.Entry{MessageID: text, Text: text}))
	}

	pub := &flakyPublisher{failAt: 2}
	f := NewForwarder(outbox, pub, time.Hour)

	n, err := f.Flush(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	remaining, err := outbox.ReadAll()
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "b", remaining[0].MessageID)

	n, err = f.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err = outbox.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestForwarder_PublishesToRedisChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, MessageCreatedChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	outbox := openOutbox(t)
	msg := message("hello")
	d := NewDispatcher(outbox, 4)
	d.MessageCreated(msg)
	d.Close()

	n, err := NewForwarder(outbox, NewRedisPublisher(client), time.Hour).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case got := <-sub.Channel():
		var entry wal.Entry
		require.NoError(t, json.Unmarshal([]byte(got.Payload), &entry))
		assert.Equal(t, msg.MessageID.String(), entry.MessageID)
		assert.Equal(t, "hello", entry.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no event on redis channel")
	}
}

func TestForwarder_RunFlushesOnShutdown(t *testing.T) {
	outbox := openOutbox(t)
	require.NoError(t, outbox.Write(wal.Entry{MessageID: "x"}))
	pub := &flakyPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewForwarder(outbox, pub, time.Hour).Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Len(t, pub.payload, 1)
}
