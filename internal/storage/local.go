package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Local writes files under a directory that the HTTP server exposes at
// /uploads.
type Local struct {
	dir       string
	folder    string
	publicURL string
}

func NewLocal(dir, folder, publicURL string) *Local {
	return &Local{dir: dir, folder: folder, publicURL: strings.TrimRight(publicURL, "/")}
}

func (l *Local) Dir() string { return l.dir }

func (l *Local) Upload(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(l.dir, l.folder)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + extension(f.Data)
	if err := os.WriteFile(filepath.Join(target, name), f.Data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return l.publicURL + path.Join("/uploads", l.folder, name), nil
}
