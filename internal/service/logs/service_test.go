package logs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository/memory"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/ws"
)

type captureSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *captureSubscriber) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
	return nil
}

func (c *captureSubscriber) Close() {}

func TestAppendPersistsAndBroadcasts(t *testing.T) {
	store := memory.New()
	hub := ws.NewHub()
	defer hub.Close()
	svc := New(store, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sub := &captureSubscriber{}
	hub.Register("dep-1", sub)

	if err := svc.Append(context.Background(), domain.LogLine{DeploymentID: "dep-1", Stream: domain.StreamBuild, Message: "Step 1/4\n"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = hub.Subscribers("dep-1")

	lines, err := svc.List(context.Background(), "dep-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lines) != 1 || lines[0].Message != "Step 1/4" || lines[0].Level != "info" {
		t.Fatalf("unexpected stored lines %+v", lines)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.payloads) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(sub.payloads))
	}
	var decoded map[string]any
	if err := json.Unmarshal(sub.payloads[0], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded["stream"] != "build" || decoded["deployment_id"] != "dep-1" {
		t.Fatalf("unexpected payload %v", decoded)
	}
}
