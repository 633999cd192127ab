package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
)

// ErrUnsafePath is returned for source paths that would escape the workspace.
var ErrUnsafePath = errors.New("unsafe source path")

// Manager owns build directories under a common root.
type Manager struct {
	root string
}

// New ensures the workspace root exists and is accessible.
func New(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Prepare creates a fresh, uniquely named directory whose name starts with prefix.
func (m *Manager) Prepare(prefix string) (string, error) {
	prefix = strings.Trim(filepath.Base(strings.TrimSpace(prefix)), ".")
	if prefix == "" || prefix == string(filepath.Separator) {
		prefix = "build"
	}
	dir, err := os.MkdirTemp(m.root, prefix+"-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Materialize writes files into dir, creating parent directories as needed.
func (m *Manager) Materialize(dir string, files []domain.SourceFile) error {
	if err := m.within(dir); err != nil {
		return err
	}
	for _, f := range files {
		target, err := resolve(dir, f.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return nil
}

// WriteFile writes a single file relative to dir.
func (m *Manager) WriteFile(dir, name, content string) error {
	return m.Materialize(dir, []domain.SourceFile{{Path: name, Content: content}})
}

// Cleanup removes the workspace directory.
func (m *Manager) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	if err := m.within(path); err != nil {
		return fmt.Errorf("refusing to cleanup path outside workspace root: %w", err)
	}
	return os.RemoveAll(path)
}

func (m *Manager) within(path string) error {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}
	return nil
}

func resolve(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if clean == "." || clean == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dir, clean), nil
}
