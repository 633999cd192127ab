package logs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/ws"
)

// Service persists deployment log lines and streams them to subscribers.
type Service struct {
	repo   repository.LogRepository
	hub    *ws.Hub
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a log service.
func New(repo repository.LogRepository, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{repo: repo, hub: hub, logger: logger, now: time.Now}
}

// Append stores and broadcasts a log line.
func (s Service) Append(ctx context.Context, line domain.LogLine) error {
	line.Message = strings.TrimRight(line.Message, "\r\n")
	if line.Level == "" {
		line.Level = "info"
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = s.now()
	}
	line.CreatedAt = line.CreatedAt.UTC()
	if err := s.repo.AppendLog(ctx, &line); err != nil {
		return err
	}
	s.broadcast(line)
	return nil
}

// List returns the newest limit lines of a deployment.
func (s Service) List(ctx context.Context, deploymentID string, limit int) ([]domain.LogLine, error) {
	return s.repo.ListLogs(ctx, deploymentID, limit)
}

// Hub returns the websocket hub.
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) broadcast(line domain.LogLine) {
	if s.hub == nil {
		return
	}
	data, err := MarshalLine(line)
	if err != nil {
		s.logger.Warn("failed to marshal log payload", "error", err)
		return
	}
	s.hub.Broadcast(line.DeploymentID, data)
}

// MarshalLine formats a log line for streaming payloads.
func MarshalLine(line domain.LogLine) ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":            line.ID,
		"deployment_id": line.DeploymentID,
		"stream":        line.Stream,
		"level":         line.Level,
		"message":       line.Message,
		"created_at":    line.CreatedAt.Format(time.RFC3339Nano),
	})
}
