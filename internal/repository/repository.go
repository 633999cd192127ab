package repository

import (
	"context"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
)

// DeploymentRepository stores deployment records.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	UpdateDeployment(ctx context.Context, update domain.DeploymentUpdate) error
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error)
	ListDeploymentsByProject(ctx context.Context, projectID string, limit int) ([]domain.Deployment, error)
	ListDeploymentsByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Deployment, error)
}

// ReservationRepository claims values from allocation namespaces.
type ReservationRepository interface {
	// Reserve inserts r and reports false when the value is already held.
	Reserve(ctx context.Context, r domain.Reservation) (bool, error)
	// ReleaseReservations frees the deployment's reservations of the given kinds, or all when none are given.
	ReleaseReservations(ctx context.Context, deploymentID string, kinds ...domain.ReservationKind) error
	ListReservations(ctx context.Context, deploymentID string) ([]domain.Reservation, error)
}

// LogRepository handles deployment log persistence.
type LogRepository interface {
	AppendLog(ctx context.Context, line *domain.LogLine) error
	ListLogs(ctx context.Context, deploymentID string, limit int) ([]domain.LogLine, error)
}

// SourceRepository keeps submitted sources until a worker builds them.
type SourceRepository interface {
	SaveSources(ctx context.Context, deploymentID string, files []domain.SourceFile) error
	GetSources(ctx context.Context, deploymentID string) ([]domain.SourceFile, error)
	DeleteSources(ctx context.Context, deploymentID string) error
}
