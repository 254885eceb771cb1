// Package flatten concatenates a repository's text files into one
// document for LLM consumption.
package flatten

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// excludedDirs are skipped along with their entire subtrees.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// excludedSuffixes drop binary files by extension.
var excludedSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".pdf", ".zip"}

// excludedNames drop dependency lock files by exact name.
var excludedNames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"poetry.lock":       true,
	"Pipfile.lock":      true,
	"composer.lock":     true,
	"Gemfile.lock":      true,
	"cargo.lock":        true,
	"packages.lock.json": true,
}

// Write walks sourceDir and writes every included file to w as
//
//	\n# File: <relative path>\n<content>\n
//
// Files that are not valid UTF-8 or cannot be read are logged and
// skipped. Output order is directory-walk order; the result is consumed
// by an LLM, not compared byte-for-byte.
func Write(sourceDir string, w io.Writer) error {
	return filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			slog.Warn("flatten: skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != sourceDir && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded(d.Name()) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("flatten: skipping unreadable file", "path", path, "error", err)
			return nil
		}
		if !utf8.Valid(content) {
			slog.Debug("flatten: skipping non-text file", "path", path)
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			rel = path
		}
		if _, err := fmt.Fprintf(w, "\n# File: %s\n%s\n", rel, content); err != nil {
			return fmt.Errorf("write flattened output: %w", err)
		}
		return nil
	})
}

// Repository flattens sourceDir into a single file at outFile, creating
// parent directories as needed.
func Repository(sourceDir, outFile string) error {
	if err := os.MkdirAll(filepath.Dir(outFile), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("create flattened file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := Write(sourceDir, f); err != nil {
		return err
	}
	return f.Close()
}

func excluded(name string) bool {
	if excludedNames[name] {
		return true
	}
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
