// Package wal is an append-only JSON-lines log used as the notification
// outbox: events are appended and fsynced, read back in order, and removed
// once a forwarder has handed them off.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Baaaki/parley/pkg/logger"
	"go.uber.org/zap"
)

// Entry is one "message created" event.
type Entry struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	HasAttachment  bool      `json:"has_attachment"`
	Timestamp      time.Time `json:"timestamp"`
}

type WAL struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// Open creates the parent directory if needed and opens path for appending.
func Open(path string) (*WAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &WAL{path: path, file: file}, nil
}

// rename is swapped in tests to simulate a failed replace.
var rename = os.Rename

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
}

// Write appends entry and syncs it to disk before returning.
func (w *WAL) Write(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(data); err != nil {
		logger.Log.Error("Outbox write failed",
			zap.String("message_id", entry.MessageID),
			zap.Error(err),
		)
		return err
	}
	return w.file.Sync()
}

// ReadAll returns every entry in write order. Corrupt lines are skipped.
func (w *WAL) ReadAll() ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readLocked()
}

// Cleanup drops the entries whose MessageID is in done. The file is rewritten
// through a temp file and renamed into place.
func (w *WAL) Cleanup(done []string) error {
	if len(done) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := w.readLocked()
	if err != nil {
		return err
	}

	drop := make(map[string]struct{}, len(done))
	for _, id := range done {
		drop[id] = struct{}{}
	}

	tmpPath := w.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	kept := 0
	for _, e := range entries {
		if _, ok := drop[e.MessageID]; ok {
			continue
		}
		if err := enc.Encode(e); err != nil {
			tmp.Close()
			return err
		}
		kept++
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// The replacement descriptor is opened before the rename and follows the
	// inode into place, so w.file stays usable whichever step fails.
	next, err := openAppend(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("open compacted outbox: %w", err)
	}
	if err := rename(tmpPath, w.path); err != nil {
		next.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace outbox: %w", err)
	}

	prev := w.file
	w.file = next
	if err := prev.Close(); err != nil {
		logger.Log.Warn("Failed to close replaced outbox", zap.Error(err))
	}

	logger.Log.Debug("Outbox compacted",
		zap.Int("removed", len(entries)-kept),
		zap.Int("remaining", kept),
	)
	return nil
}

func (w *WAL) readLocked() ([]Entry, error) {
	file, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
