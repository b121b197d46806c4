package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes artifacts into a single directory.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes data under a sanitized form of name, replacing any previous file.
func (s *Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	clean := SafeName(name)
	if clean == "" {
		return "", fmt.Errorf("artifact name %q is empty after sanitizing", name)
	}
	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	target := filepath.Join(s.dir, clean)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return target, nil
}

var unsafeChars = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
)

// SafeName strips path separators and characters Windows rejects, and joins
// whitespace-separated parts with underscores.
func SafeName(name string) string {
	name = unsafeChars.Replace(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "_")
	if name == "." || name == ".." {
		return ""
	}
	return name
}
