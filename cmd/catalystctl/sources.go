package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apiclient "github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/api/client"
)

const (
	maxSourceFile  = 1 << 20
	maxSourceTotal = 24 << 20
)

var skippedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"__pycache__":  {},
	".venv":        {},
	"vendor":       {},
}

// collectSources reads the text files under dir as deployment sources.
func collectSources(dir string) ([]apiclient.SourceFile, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	var (
		files []apiclient.SourceFile
		total int
	)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skippedDirs[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxSourceFile {
			return fmt.Errorf("%s is larger than %d bytes", path, maxSourceFile)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			return fmt.Errorf("%s is not a text file", path)
		}
		total += len(data)
		if total > maxSourceTotal {
			return fmt.Errorf("sources exceed %d bytes", maxSourceTotal)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, apiclient.SourceFile{Path: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no source files found in %s", dir)
	}
	return files, nil
}

func projectNameFromDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return strings.TrimSpace(dir)
	}
	return filepath.Base(abs)
}
