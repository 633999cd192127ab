package docker

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeBuildStreamEmitsLines(t *testing.T) {
	stream := `{"stream":"Step 1/3 : FROM node:20\n"}
{"status":"Pulling fs layer","id":"abc123"}
{"aux":{"ID":"sha256:deadbeef"}}
`
	var lines []string
	if err := decodeBuildStream(strings.NewReader(stream), func(l string) { lines = append(lines, l) }); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"Step 1/3 : FROM node:20", "abc123 Pulling fs layer", "image id: sha256:deadbeef"}
	if len(lines) != len(want) {
		t.Fatalf("got %v want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}

func TestDecodeBuildStreamSurfacesDaemonError(t *testing.T) {
	stream := `{"stream":"Step 2/3 : RUN npm ci\n"}
{"errorDetail":{"message":"npm ERR! missing script"},"error":"The command '/bin/sh -c npm ci' returned a non-zero code: 1"}
`
	err := decodeBuildStream(strings.NewReader(stream), nil)
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	if !strings.Contains(err.Error(), "non-zero code") {
		t.Fatalf("error should carry daemon message, got %q", err)
	}
}
