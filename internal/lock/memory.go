package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type heldLease struct {
	token   string
	expires time.Time
}

// Memory is a Locker for a single process.
type Memory struct {
	mu   sync.Mutex
	held map[string]heldLease
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory returns an in-process Locker. Leases older than ttl are reclaimed; ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{held: make(map[string]heldLease), ttl: ttl, now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string) (Lease, error) {
	if key == "" {
		return Lease{}, fmt.Errorf("lock key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if current, ok := m.held[key]; ok {
		if current.expires.IsZero() || now.Before(current.expires) {
			return Lease{}, fmt.Errorf("%w: %s", ErrLocked, key)
		}
	}
	entry := heldLease{token: uuid.NewString()}
	if m.ttl > 0 {
		entry.expires = now.Add(m.ttl)
	}
	m.held[key] = entry
	return Lease{Key: key, Token: entry.token}, nil
}

func (m *Memory) Release(_ context.Context, lease Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.held[lease.Key]; ok && current.token == lease.Token {
		delete(m.held, lease.Key)
	}
	return nil
}

func (m *Memory) Refresh(_ context.Context, lease Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	current, ok := m.held[lease.Key]
	if !ok || current.token != lease.Token {
		return fmt.Errorf("%w: %s", ErrLost, lease.Key)
	}
	if !current.expires.IsZero() && !now.Before(current.expires) {
		delete(m.held, lease.Key)
		return fmt.Errorf("%w: %s", ErrLost, lease.Key)
	}
	if m.ttl > 0 {
		current.expires = now.Add(m.ttl)
		m.held[lease.Key] = current
	}
	return nil
}
