// Package artifact manages uploaded source files that must be removed once
// a job run ends.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Remover deletes an uploaded artifact. Deleting a missing artifact is not
// an error.
type Remover interface {
	Delete(ctx context.Context, path string) error
}

// Local stores artifacts under Root on the local filesystem.
type Local struct {
	Root string
}

func (l Local) resolve(path string) (string, error) {
	if l.Root == "" {
		return filepath.Clean(path), nil
	}
	full := filepath.Join(l.Root, filepath.Clean("/"+path))
	root := filepath.Clean(l.Root) + string(filepath.Separator)
	if !strings.HasPrefix(full, root) {
		return "", fmt.Errorf("artifact path %q escapes root", path)
	}
	return full, nil
}

func (l Local) Delete(_ context.Context, path string) error {
	if path == "" {
		return nil
	}
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}
