package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
)

func TestPrepareCreatesUniqueDirectories(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a, err := m.Prepare("my-app-abc123")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	b, err := m.Prepare("my-app-abc123")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct directories, got %s twice", a)
	}
}

func TestMaterializeWritesNestedFiles(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	dir, err := m.Prepare("site")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	files := []domain.SourceFile{
		{Path: "package.json", Content: "{}"},
		{Path: "src/lib/util.js", Content: "export {}"},
	}
	if err := m.Materialize(dir, files); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "src", "lib", "util.js"))
	if err != nil {
		t.Fatalf("read nested file: %v", err)
	}
	if string(data) != "export {}" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestMaterializeRejectsEscapingPaths(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	dir, err := m.Prepare("site")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	for _, p := range []string{"../evil.sh", "/etc/passwd", "a/../../b", ""} {
		err := m.Materialize(dir, []domain.SourceFile{{Path: p, Content: "x"}})
		if !errors.Is(err, ErrUnsafePath) {
			t.Fatalf("path %q: expected ErrUnsafePath, got %v", p, err)
		}
	}
}

func TestCleanupGuardsRoot(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := m.Cleanup(root); err == nil {
		t.Fatalf("expected refusal to remove the root itself")
	}
	if err := m.Cleanup(t.TempDir()); err == nil {
		t.Fatalf("expected refusal to remove a foreign directory")
	}
	dir, _ := m.Prepare("x")
	if err := m.Cleanup(dir); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
}
