package ws

import (
	"errors"
	"sync"
	"testing"
)

type recordingSubscriber struct {
	mu      sync.Mutex
	got     [][]byte
	failing bool
	closed  bool
}

func (r *recordingSubscriber) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("broken pipe")
	}
	r.got = append(r.got, p)
	return nil
}

func (r *recordingSubscriber) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func TestHubBroadcastsPerTopic(t *testing.T) {
	h := NewHub()
	defer h.Close()
	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	h.Register("dep-a", a)
	h.Register("dep-b", b)

	h.Broadcast("dep-a", []byte("hello"))
	if n := h.Subscribers("dep-a"); n != 1 {
		t.Fatalf("expected one subscriber, got %d", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.got) != 1 || string(a.got[0]) != "hello" {
		t.Fatalf("unexpected payloads for a: %q", a.got)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.got) != 0 {
		t.Fatalf("b should not receive dep-a payloads")
	}
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Close()
	bad := &recordingSubscriber{failing: true}
	h.Register("dep", bad)
	h.Broadcast("dep", []byte("x"))
	if n := h.Subscribers("dep"); n != 0 {
		t.Fatalf("failing subscriber should be removed, have %d", n)
	}
	bad.mu.Lock()
	defer bad.mu.Unlock()
	if !bad.closed {
		t.Fatalf("failing subscriber should be closed")
	}
}
