package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository/memory"
)

func TestSealedSourcesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sealed, err := repository.NewSealedSources(store, "k")
	if err != nil {
		t.Fatalf("new sealed sources: %v", err)
	}
	files := []domain.SourceFile{{Path: ".env", Content: "API_KEY=abc"}}
	if err := sealed.SaveSources(ctx, "d1", files); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := store.GetSources(ctx, "d1")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if strings.Contains(raw[0].Content, "API_KEY") || raw[0].Path != ".env" {
		t.Fatalf("expected sealed content at rest, got %+v", raw[0])
	}

	got, err := sealed.GetSources(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got[0].Content != "API_KEY=abc" {
		t.Fatalf("unexpected content %q", got[0].Content)
	}

	if err := sealed.DeleteSources(ctx, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := sealed.GetSources(ctx, "d1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSealedSourcesPassesPlainRows(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.SaveSources(ctx, "d1", []domain.SourceFile{{Path: "a.txt", Content: "plain"}})
	sealed, _ := repository.NewSealedSources(store, "k")
	got, err := sealed.GetSources(ctx, "d1")
	if err != nil || got[0].Content != "plain" {
		t.Fatalf("unexpected %+v %v", got, err)
	}
}
