package broker

import "context"

// Broadcaster fans payloads out to every member of a group key, on this
// process and, depending on the implementation, on every other instance.
//
// Join and Leave only touch local membership. Publish may cross the network.
type Broadcaster interface {
	Join(key string, sub Subscriber)
	Leave(key string, sub Subscriber)
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

// LocalBroadcaster serves a single instance straight from its Hub.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Join(key string, sub Subscriber)  { b.hub.Join(key, sub) }
func (b *LocalBroadcaster) Leave(key string, sub Subscriber) { b.hub.Leave(key, sub) }

func (b *LocalBroadcaster) Publish(_ context.Context, key string, payload []byte) error {
	b.hub.Publish(key, payload)
	return nil
}

func (b *LocalBroadcaster) Close() error { return nil }
