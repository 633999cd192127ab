package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ repository.DeploymentRepository  = (*Repository)(nil)
	_ repository.ReservationRepository = (*Repository)(nil)
	_ repository.LogRepository         = (*Repository)(nil)
	_ repository.SourceRepository      = (*Repository)(nil)
)

const deploymentColumns = `id, project_id, project_name, provider, subdomain, status,
	COALESCE(container_id, ''), COALESCE(port, 0), COALESCE(deployment_url, ''),
	COALESCE(image_name, ''), COALESCE(framework, ''), cpu_limit, memory_limit,
	COALESCE(logs, ''), COALESCE(error_message, ''), created_at, updated_at, completed_at`

// CreateDeployment inserts a deployment record.
func (r *Repository) CreateDeployment(ctx context.Context, d *domain.Deployment) error {
	const query = `INSERT INTO deployments (id, project_id, project_name, provider, subdomain, status,
		container_id, port, deployment_url, image_name, framework, cpu_limit, memory_limit,
		logs, error_message, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.pool.Exec(ctx, query, d.ID, d.ProjectID, d.ProjectName, d.Provider, d.Subdomain, string(d.Status),
		emptyToNil(d.ContainerID), intToNil(d.Port), emptyToNil(d.DeploymentURL), emptyToNil(d.ImageName),
		emptyToNil(d.Framework), d.CPULimit, d.MemoryLimit, emptyToNil(d.Logs), emptyToNil(d.ErrorMessage),
		d.CreatedAt, d.UpdatedAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// UpdateDeployment applies the non-empty fields of update.
func (r *Repository) UpdateDeployment(ctx context.Context, u domain.DeploymentUpdate) error {
	const query = `UPDATE deployments SET
		status = COALESCE($2, status),
		container_id = COALESCE($3, container_id),
		port = COALESCE($4, port),
		deployment_url = COALESCE($5, deployment_url),
		image_name = COALESCE($6, image_name),
		framework = COALESCE($7, framework),
		logs = COALESCE($8, logs),
		error_message = COALESCE($9, error_message),
		completed_at = COALESCE($10, completed_at),
		updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, u.ID, emptyToNil(string(u.Status)), emptyToNil(u.ContainerID), intToNil(u.Port),
		emptyToNil(u.DeploymentURL), emptyToNil(u.ImageName), emptyToNil(u.Framework), emptyToNil(u.Logs),
		emptyToNil(u.ErrorMessage), timePtrToNil(u.CompletedAt))
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetDeploymentByID fetches a deployment.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, deploymentID)
	d, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListDeploymentsByProject returns the newest deployments of a project.
func (r *Repository) ListDeploymentsByProject(ctx context.Context, projectID string, limit int) ([]domain.Deployment, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+deploymentColumns+` FROM deployments
		WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, err
	}
	return collectDeployments(rows)
}

// ListDeploymentsByStatus returns every deployment in one of statuses.
func (r *Repository) ListDeploymentsByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Deployment, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+deploymentColumns+` FROM deployments
		WHERE status = ANY($1) ORDER BY created_at`, values)
	if err != nil {
		return nil, err
	}
	return collectDeployments(rows)
}

// Reserve claims a namespace value. A conflicting row means the value is taken.
func (r *Repository) Reserve(ctx context.Context, res domain.Reservation) (bool, error) {
	const query = `INSERT INTO reservations (kind, value, deployment_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, value) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, string(res.Kind), res.Value, res.DeploymentID, res.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseReservations deletes reservations held by a deployment.
func (r *Repository) ReleaseReservations(ctx context.Context, deploymentID string, kinds ...domain.ReservationKind) error {
	if len(kinds) == 0 {
		_, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE deployment_id = $1`, deploymentID)
		return err
	}
	values := make([]string, 0, len(kinds))
	for _, k := range kinds {
		values = append(values, string(k))
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE deployment_id = $1 AND kind = ANY($2)`, deploymentID, values)
	return err
}

// ListReservations returns the reservations held by a deployment.
func (r *Repository) ListReservations(ctx context.Context, deploymentID string) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT kind, value, deployment_id, created_at FROM reservations
		WHERE deployment_id = $1 ORDER BY kind`, deploymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		var kind string
		if err := rows.Scan(&kind, &res.Value, &res.DeploymentID, &res.CreatedAt); err != nil {
			return nil, err
		}
		res.Kind = domain.ReservationKind(kind)
		out = append(out, res)
	}
	return out, rows.Err()
}

// AppendLog stores a log line and sets its identifier.
func (r *Repository) AppendLog(ctx context.Context, line *domain.LogLine) error {
	const query = `INSERT INTO deployment_logs (deployment_id, stream, level, message, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.pool.QueryRow(ctx, query, line.DeploymentID, line.Stream, line.Level, line.Message, line.CreatedAt).Scan(&line.ID)
}

// ListLogs returns the newest limit lines of a deployment in chronological order.
func (r *Repository) ListLogs(ctx context.Context, deploymentID string, limit int) ([]domain.LogLine, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `SELECT id, deployment_id, stream, level, message, created_at FROM (
		SELECT id, deployment_id, stream, level, message, created_at FROM deployment_logs
		WHERE deployment_id = $1 ORDER BY id DESC LIMIT $2) recent ORDER BY id`
	rows, err := r.pool.Query(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LogLine
	for rows.Next() {
		var l domain.LogLine
		if err := rows.Scan(&l.ID, &l.DeploymentID, &l.Stream, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveSources stores the submitted files of a deployment.
func (r *Repository) SaveSources(ctx context.Context, deploymentID string, files []domain.SourceFile) error {
	payload, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	const query = `INSERT INTO deployment_sources (deployment_id, files, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (deployment_id) DO UPDATE SET files = EXCLUDED.files`
	_, err = r.pool.Exec(ctx, query, deploymentID, payload)
	return err
}

// GetSources loads the submitted files of a deployment.
func (r *Repository) GetSources(ctx context.Context, deploymentID string) ([]domain.SourceFile, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT files FROM deployment_sources WHERE deployment_id = $1`, deploymentID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var files []domain.SourceFile
	if err := json.Unmarshal(payload, &files); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return files, nil
}

// DeleteSources removes stored files once a build finished.
func (r *Repository) DeleteSources(ctx context.Context, deploymentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM deployment_sources WHERE deployment_id = $1`, deploymentID)
	return err
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	var status string
	if err := row.Scan(&d.ID, &d.ProjectID, &d.ProjectName, &d.Provider, &d.Subdomain, &status,
		&d.ContainerID, &d.Port, &d.DeploymentURL, &d.ImageName, &d.Framework, &d.CPULimit, &d.MemoryLimit,
		&d.Logs, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt, &d.CompletedAt); err != nil {
		return nil, err
	}
	d.Status = domain.ParseStatus(status)
	return &d, nil
}

func collectDeployments(rows pgx.Rows) ([]domain.Deployment, error) {
	defer rows.Close()
	var out []domain.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func emptyToNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func intToNil(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func timePtrToNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}
