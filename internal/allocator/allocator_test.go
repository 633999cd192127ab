package allocator

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository/memory"
)

func newAllocator(t *testing.T, start, end int) (*Allocator, *memory.Store) {
	t.Helper()
	store := memory.New()
	a, err := New(store, Options{PortStart: start, PortEnd: end, MaxAttempts: 4})
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	return a, store
}

func TestAllocateSubdomainIsUnique(t *testing.T) {
	a, _ := newAllocator(t, 20000, 20010)
	pattern := regexp.MustCompile(`^my-app-[a-z0-9]{6}$`)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		s, err := a.AllocateSubdomain(context.Background(), "My App", "dep")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if !pattern.MatchString(s) {
			t.Fatalf("unexpected subdomain %q", s)
		}
		if seen[s] {
			t.Fatalf("duplicate subdomain %q", s)
		}
		seen[s] = true
	}
}

func TestAllocateSubdomainRetriesCollisions(t *testing.T) {
	a, _ := newAllocator(t, 20000, 20010)
	calls := 0
	a.generate = func(string) string {
		calls++
		if calls < 3 {
			return "taken-aaaaaa"
		}
		return "free-bbbbbb"
	}
	if _, err := a.AllocateSubdomain(context.Background(), "x", "first"); err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	got, err := a.AllocateSubdomain(context.Background(), "x", "second")
	if err != nil {
		t.Fatalf("second allocation: %v", err)
	}
	if got != "free-bbbbbb" {
		t.Fatalf("expected retry to land on free value, got %q", got)
	}
}

func TestAllocatePortExhaustion(t *testing.T) {
	a, _ := newAllocator(t, 20000, 20001)
	a.pick = func(n int) int { return 0 }
	port, err := a.AllocatePort(context.Background(), "d1")
	if err != nil || port != 20000 {
		t.Fatalf("first port: %d %v", port, err)
	}
	if _, err := a.AllocatePort(context.Background(), "d2"); !errors.Is(err, ErrNamespaceExhausted) {
		t.Fatalf("expected ErrNamespaceExhausted, got %v", err)
	}
	if err := a.Release(context.Background(), "d1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := a.AllocatePort(context.Background(), "d2"); err != nil {
		t.Fatalf("port should be free after release: %v", err)
	}
}

func TestNewRejectsBadRange(t *testing.T) {
	if _, err := New(memory.New(), Options{PortStart: 30000, PortEnd: 20000}); err == nil {
		t.Fatalf("expected invalid range error")
	}
}
