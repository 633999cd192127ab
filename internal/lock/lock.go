// Package lock provides per-target mutual exclusion with a reject policy.
package lock

import (
	"context"
	"errors"
)

var (
	// ErrLocked is returned when another operation holds the key.
	ErrLocked = errors.New("target is busy with another operation")

	// ErrLost is returned by Refresh when the lease expired or another holder took the key.
	ErrLost = errors.New("lock lease lost")
)

// Lease proves ownership of a key until released.
type Lease struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

// Locker grants at most one lease per key at a time.
type Locker interface {
	// Acquire returns ErrLocked instead of waiting when key is held.
	Acquire(ctx context.Context, key string) (Lease, error)
	// Release frees the lease. Releasing a lease that no longer owns the key is a no-op.
	Release(ctx context.Context, lease Lease) error
	// Refresh restarts the lease TTL, or returns ErrLost if lease no longer owns its key.
	Refresh(ctx context.Context, lease Lease) error
}

// Key namespaces a project identifier.
func Key(projectID string) string {
	return "project:" + projectID
}
