package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
)

func TestReserveRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	ok, err := s.Reserve(ctx, domain.Reservation{Kind: domain.ReservationPort, Value: "20001", DeploymentID: "a"})
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	ok, err = s.Reserve(ctx, domain.Reservation{Kind: domain.ReservationPort, Value: "20001", DeploymentID: "b"})
	if err != nil || ok {
		t.Fatalf("duplicate reserve should report taken: ok=%v err=%v", ok, err)
	}
	ok, _ = s.Reserve(ctx, domain.Reservation{Kind: domain.ReservationSubdomain, Value: "20001", DeploymentID: "b"})
	if !ok {
		t.Fatalf("namespaces must be independent")
	}

	if err := s.ReleaseReservations(ctx, "a", domain.ReservationSubdomain); err != nil {
		t.Fatalf("release: %v", err)
	}
	if res, _ := s.ListReservations(ctx, "a"); len(res) != 1 {
		t.Fatalf("kind-scoped release removed too much: %v", res)
	}
	if err := s.ReleaseReservations(ctx, "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = s.Reserve(ctx, domain.Reservation{Kind: domain.ReservationPort, Value: "20001", DeploymentID: "c"})
	if !ok {
		t.Fatalf("released value should be reservable again")
	}
}

func TestUpdateDeploymentKeepsUnsetFields(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	if err := s.CreateDeployment(ctx, &domain.Deployment{ID: "d1", ProjectID: "p", Status: domain.StatusPending, Subdomain: "x-abc123", CreatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateDeployment(ctx, domain.DeploymentUpdate{ID: "d1", Status: domain.StatusRunning, Port: 20010}); err != nil {
		t.Fatalf("update: %v", err)
	}
	d, err := s.GetDeploymentByID(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Status != domain.StatusRunning || d.Port != 20010 || d.Subdomain != "x-abc123" {
		t.Fatalf("unexpected record %+v", d)
	}
	if err := s.UpdateDeployment(ctx, domain.DeploymentUpdate{ID: "missing"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListLogsReturnsTail(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, msg := range []string{"one", "two", "three"} {
		if err := s.AppendLog(ctx, &domain.LogLine{DeploymentID: "d", Message: msg}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	lines, _ := s.ListLogs(ctx, "d", 2)
	if len(lines) != 2 || lines[0].Message != "two" || lines[1].Message != "three" {
		t.Fatalf("unexpected tail %+v", lines)
	}
}
