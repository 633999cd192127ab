// Package allocator hands out unique subdomains and host ports through a reservation table.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/subdomain"
)

const defaultAttempts = 8

// ErrNamespaceExhausted is returned when no free value was found within the attempt budget.
var ErrNamespaceExhausted = errors.New("allocation namespace exhausted")

// Options configures an Allocator.
type Options struct {
	PortStart   int
	PortEnd     int
	MaxAttempts int
}

// Allocator reserves subdomains and ports for deployments.
type Allocator struct {
	repo      repository.ReservationRepository
	portStart int
	portEnd   int
	attempts  int

	generate func(name string) string
	pick     func(n int) int
	now      func() time.Time
}

// New constructs an Allocator.
func New(repo repository.ReservationRepository, opts Options) (*Allocator, error) {
	if repo == nil {
		return nil, errors.New("reservation repository required")
	}
	if opts.PortStart <= 0 || opts.PortEnd < opts.PortStart || opts.PortEnd > 65535 {
		return nil, fmt.Errorf("invalid port range %d-%d", opts.PortStart, opts.PortEnd)
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &Allocator{
		repo:      repo,
		portStart: opts.PortStart,
		portEnd:   opts.PortEnd,
		attempts:  attempts,
		generate:  subdomain.Generate,
		pick:      rand.IntN,
		now:       time.Now,
	}, nil
}

// AllocateSubdomain reserves a generated subdomain for projectName.
func (a *Allocator) AllocateSubdomain(ctx context.Context, projectName, deploymentID string) (string, error) {
	return a.claim(ctx, domain.ReservationSubdomain, deploymentID, func() string {
		return a.generate(projectName)
	})
}

// AllocatePort reserves a host port from the configured range.
func (a *Allocator) AllocatePort(ctx context.Context, deploymentID string) (int, error) {
	size := a.portEnd - a.portStart + 1
	value, err := a.claim(ctx, domain.ReservationPort, deploymentID, func() string {
		return strconv.Itoa(a.portStart + a.pick(size))
	})
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// Release frees every reservation held by deploymentID.
func (a *Allocator) Release(ctx context.Context, deploymentID string) error {
	if err := a.repo.ReleaseReservations(ctx, deploymentID); err != nil {
		return fmt.Errorf("release reservations: %w", err)
	}
	return nil
}

func (a *Allocator) claim(ctx context.Context, kind domain.ReservationKind, deploymentID string, next func() string) (string, error) {
	for attempt := 0; attempt < a.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := next()
		ok, err := a.repo.Reserve(ctx, domain.Reservation{
			Kind:         kind,
			Value:        candidate,
			DeploymentID: deploymentID,
			CreatedAt:    a.now().UTC(),
		})
		if err != nil {
			return "", fmt.Errorf("reserve %s: %w", kind, err)
		}
		if ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free %s after %d attempts", ErrNamespaceExhausted, kind, a.attempts)
}
