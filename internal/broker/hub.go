package broker

import (
	"sync"

	"github.com/Baaaki/parley/internal/metrics"
	"github.com/Baaaki/parley/pkg/logger"
	"go.uber.org/zap"
)

// Subscriber is one live member of a broadcast group.
//
// Deliver must not block: it either queues payload and returns true, or
// returns false when the member cannot keep up. A false return only affects
// that member.
type Subscriber interface {
	ID() string
	Deliver(payload []byte) bool
}

// Hub is the in-process membership table: group key -> subscriber id -> subscriber.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]Subscriber
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[string]Subscriber)}
}

func (h *Hub) Join(key string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[key]
	if !ok {
		members = make(map[string]Subscriber)
		h.groups[key] = members
	}
	members[sub.ID()] = sub
}

// Leave is a no-op for subscribers that are not members.
func (h *Hub) Leave(key string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[key]
	if !ok {
		return
	}
	delete(members, sub.ID())
	if len(members) == 0 {
		delete(h.groups, key)
	}
}

// Publish delivers payload to every current member of key and returns how
// many accepted it. Delivery happens outside the lock, so a subscriber may
// Leave from inside Deliver.
func (h *Hub) Publish(key string, payload []byte) int {
	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.groups[key]))
	for _, sub := range h.groups[key] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range members {
		if sub.Deliver(payload) {
			delivered++
			continue
		}
		metrics.BroadcastDrops.Inc()
		logger.Log.Warn("Broadcast dropped for slow member",
			zap.String("group", key),
			zap.String("session_id", sub.ID()),
		)
	}
	metrics.BroadcastDeliveries.Add(float64(delivered))
	return delivered
}

// Size returns the number of local members of key.
func (h *Hub) Size(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[key])
}
