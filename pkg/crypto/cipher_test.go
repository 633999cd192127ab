package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("secret")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, err := s.Seal([]byte("console.log('hi')"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("console")) {
		t.Fatalf("sealed payload leaks plaintext")
	}
	plain, err := s.Open(sealed)
	if err != nil || string(plain) != "console.log('hi')" {
		t.Fatalf("open: %q %v", plain, err)
	}
}

func TestOpenRejectsWrongKeyAndShortPayload(t *testing.T) {
	a, _ := NewSealer("a")
	b, _ := NewSealer("b")
	sealed, err := a.Seal([]byte("x"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Fatalf("expected authentication failure with another key")
	}
	if _, err := a.Open([]byte{1, 2}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := NewSealer(" "); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
}
