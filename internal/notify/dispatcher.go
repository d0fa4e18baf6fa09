// Package notify emits the "message created" fact to external notifiers.
//
// The sender path only ever enqueues (Dispatcher.MessageCreated). A single
// writer goroutine appends queued events to the outbox, and a Forwarder
// periodically publishes outbox entries and compacts the file.
package notify

import (
	"sync"

	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/wal"
	"github.com/Baaaki/parley/pkg/logger"
	"go.uber.org/zap"
)

// MessageCreatedChannel is the Redis channel external notifiers subscribe to.
const MessageCreatedChannel = "events:message_created"

type Dispatcher struct {
	outbox *wal.WAL
	queue  chan wal.Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the outbox writer. buffer bounds how many events may
// wait for the disk; beyond it events are dropped and logged.
func NewDispatcher(outbox *wal.WAL, buffer int) *Dispatcher {
	d := &Dispatcher{
		outbox: outbox,
		queue:  make(chan wal.Entry, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// MessageCreated never blocks.
func (d *Dispatcher) MessageCreated(msg *models.Message) {
	entry := wal.Entry{
		MessageID:      msg.MessageID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID.String(),
		Text:           msg.Text,
		HasAttachment:  msg.HasAttachment,
		Timestamp:      msg.MessageTimestamp,
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.Log.Warn("Notification dropped after shutdown", zap.String("message_id", entry.MessageID))
		return
	}

	select {
	case d.queue <- entry:
	default:
		logger.Log.Warn("Notification queue full, dropping event",
			zap.String("message_id", entry.MessageID),
			zap.String("conversation_id", entry.ConversationID),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for entry := range d.queue {
		if err := d.outbox.Write(entry); err != nil {
			logger.Log.Warn("Failed to record notification",
				zap.String("message_id", entry.MessageID),
				zap.Error(err),
			)
		}
	}
}

// Close flushes queued events to the outbox and stops the writer.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
