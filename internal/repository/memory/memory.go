// Package memory provides an in-process store used when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
)

type reservationKey struct {
	kind  domain.ReservationKind
	value string
}

// Store keeps deployments, reservations, logs and sources in maps.
type Store struct {
	mu           sync.Mutex
	deployments  map[string]domain.Deployment
	reservations map[reservationKey]domain.Reservation
	logs         map[string][]domain.LogLine
	sources      map[string][]domain.SourceFile
	nextLogID    int64
}

var (
	_ repository.DeploymentRepository  = (*Store)(nil)
	_ repository.ReservationRepository = (*Store)(nil)
	_ repository.LogRepository         = (*Store)(nil)
	_ repository.SourceRepository      = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		deployments:  make(map[string]domain.Deployment),
		reservations: make(map[reservationKey]domain.Reservation),
		logs:         make(map[string][]domain.LogLine),
		sources:      make(map[string][]domain.SourceFile),
	}
}

func (s *Store) CreateDeployment(_ context.Context, d *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployments[d.ID] = *d
	return nil
}

func (s *Store) UpdateDeployment(_ context.Context, u domain.DeploymentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.Status != "" {
		d.Status = u.Status
	}
	if u.ContainerID != "" {
		d.ContainerID = u.ContainerID
	}
	if u.Port != 0 {
		d.Port = u.Port
	}
	if u.DeploymentURL != "" {
		d.DeploymentURL = u.DeploymentURL
	}
	if u.ImageName != "" {
		d.ImageName = u.ImageName
	}
	if u.Framework != "" {
		d.Framework = u.Framework
	}
	if u.Logs != "" {
		d.Logs = u.Logs
	}
	if u.ErrorMessage != "" {
		d.ErrorMessage = u.ErrorMessage
	}
	if u.CompletedAt != nil {
		completed := *u.CompletedAt
		d.CompletedAt = &completed
	}
	d.UpdatedAt = time.Now().UTC()
	s.deployments[u.ID] = d
	return nil
}

func (s *Store) GetDeploymentByID(_ context.Context, id string) (*domain.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (s *Store) ListDeploymentsByProject(_ context.Context, projectID string, limit int) ([]domain.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Deployment
	for _, d := range s.deployments {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDeploymentsByStatus(_ context.Context, statuses ...domain.Status) ([]domain.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Deployment
	for _, d := range s.deployments {
		for _, st := range statuses {
			if d.Status == st {
				out = append(out, d)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Reserve(_ context.Context, r domain.Reservation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reservationKey{kind: r.Kind, value: r.Value}
	if _, taken := s.reservations[key]; taken {
		return false, nil
	}
	s.reservations[key] = r
	return true, nil
}

func (s *Store) ReleaseReservations(_ context.Context, deploymentID string, kinds ...domain.ReservationKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, r := range s.reservations {
		if r.DeploymentID != deploymentID {
			continue
		}
		if len(kinds) == 0 || containsKind(kinds, key.kind) {
			delete(s.reservations, key)
		}
	}
	return nil
}

func (s *Store) ListReservations(_ context.Context, deploymentID string) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.DeploymentID == deploymentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (s *Store) AppendLog(_ context.Context, line *domain.LogLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	line.ID = s.nextLogID
	s.logs[line.DeploymentID] = append(s.logs[line.DeploymentID], *line)
	return nil
}

func (s *Store) ListLogs(_ context.Context, deploymentID string, limit int) ([]domain.LogLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.logs[deploymentID]
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return append([]domain.LogLine(nil), lines...), nil
}

func (s *Store) SaveSources(_ context.Context, deploymentID string, files []domain.SourceFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[deploymentID] = append([]domain.SourceFile(nil), files...)
	return nil
}

func (s *Store) GetSources(_ context.Context, deploymentID string) ([]domain.SourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.sources[deploymentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append([]domain.SourceFile(nil), files...), nil
}

func (s *Store) DeleteSources(_ context.Context, deploymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, deploymentID)
	return nil
}

// Ping satisfies the health check signature used by the HTTP router.
func (s *Store) Ping(context.Context) error {
	return nil
}

func containsKind(kinds []domain.ReservationKind, k domain.ReservationKind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}
