// Package alertstore keeps the deduplicated alerts of an audit session.
package alertstore

import (
	"sync"

	"github.com/Hara602/usbAudit/internal/model"
)

// Store is an append-only, message-deduplicated alert collection scoped to
// one session.
type Store interface {
	// Add inserts the alert unless one with the same message is already
	// stored, and reports whether it was inserted.
	Add(alert model.Alert) (bool, error)
	// All returns the alerts in insertion order.
	All() ([]model.Alert, error)
	Close() error
}

// MemoryStore lives and dies with the process.
type MemoryStore struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	alerts []model.Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) Add(alert model.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[alert.Message]; ok {
		return false, nil
	}
	s.seen[alert.Message] = struct{}{}
	s.alerts = append(s.alerts, alert)
	return true, nil
}

func (s *MemoryStore) All() ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
