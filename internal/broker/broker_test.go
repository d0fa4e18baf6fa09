package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id    string
	queue chan []byte
}

func newFakeSubscriber(id string, capacity int) *fakeSubscriber {
	return &fakeSubscriber{id: id, queue: make(chan []byte, capacity)}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Deliver(payload []byte) bool {
	select {
	case f.queue <- payload:
		return true
	default:
		return false
	}
}

func (f *fakeSubscriber) next(t *testing.T) string {
	t.Helper()
	select {
	case p := <-f.queue:
		return string(p)
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber %s received nothing", f.id)
		return ""
	}
}

func TestHub_PublishReachesOnlyGroupMembers(t *testing.T) {
	hub := NewHub()
	a := newFakeSubscriber("a", 4)
	b := newFakeSubscriber("b", 4)
	other := newFakeSubscriber("other", 4)

	hub.Join("conversation:1", a)
	hub.Join("conversation:1", b)
	hub.Join("conversation:2", other)

	assert.Equal(t, 2, hub.Publish("conversation:1", []byte("hi")))
	assert.Equal(t, "hi", a.next(t))
	assert.Equal(t, "hi", b.next(t))
	assert.Empty(t, other.queue)
}

func TestHub_LeaveIsIdempotent(t *testing.T) {
	hub := NewHub()
	a := newFakeSubscriber("a", 1)

	hub.Join("k", a)
	hub.Leave("k", a)
	hub.Leave("k", a)
	hub.Leave("never-joined", a)

	assert.Equal(t, 0, hub.Size("k"))
	assert.Equal(t, 0, hub.Publish("k", []byte("x")))
}

func TestHub_SlowMemberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	slow := newFakeSubscriber("slow", 0)
	fast := newFakeSubscriber("fast", 8)
	hub.Join("k", slow)
	hub.Join("k", fast)

	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, hub.Publish("k", []byte(fmt.Sprint(i))))
	}
	assert.Len(t, fast.queue, 5)
}

func TestHub_ConcurrentJoinLeavePublish(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := newFakeSubscriber(fmt.Sprintf("s%d", i), 64)
			key := fmt.Sprintf("k%d", i%3)
			hub.Join(key, sub)
			hub.Publish(key, []byte("x"))
			hub.Leave(key, sub)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, hub.Size(fmt.Sprintf("k%d", i)))
	}
}

func TestLocalBroadcaster(t *testing.T) {
	b := NewLocalBroadcaster(NewHub())
	sub := newFakeSubscriber("a", 1)

	b.Join("k", sub)
	require.NoError(t, b.Publish(context.Background(), "k", []byte("local")))
	assert.Equal(t, "local", sub.next(t))
	assert.NoError(t, b.Close())
}

func TestRedisBroadcaster_FansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := ConnectRedis(ctx, "redis://"+mr.Addr(), 3, time.Second)
	require.NoError(t, err)
	defer client.Close()

	// Two broadcasters on one Redis stand in for two server instances.
	first, err := NewRedisBroadcaster(ctx, client, NewHub())
	require.NoError(t, err)
	defer first.Close()
	second, err := NewRedisBroadcaster(ctx, client, NewHub())
	require.NoError(t, err)
	defer second.Close()

	onFirst := newFakeSubscriber("a", 4)
	onSecond := newFakeSubscriber("b", 4)
	first.Join("conversation:42", onFirst)
	second.Join("conversation:42", onSecond)

	require.NoError(t, first.Publish(ctx, "conversation:42", []byte("hello")))

	assert.Equal(t, "hello", onFirst.next(t))
	assert.Equal(t, "hello", onSecond.next(t))
}

func TestRedisBroadcaster_CloseIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := ConnectRedis(ctx, "redis://"+mr.Addr(), 1, time.Second)
	require.NoError(t, err)
	defer client.Close()

	b, err := NewRedisBroadcaster(ctx, client, NewHub())
	require.NoError(t, err)

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestConnectRedis_BadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "not a url", 1, time.Second)
	assert.Error(t, err)
}
