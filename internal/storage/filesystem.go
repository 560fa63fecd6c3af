package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is a per-job directory on the local filesystem. It implements
// Store for the files it holds.
type Workspace struct {
	dir string
}

// EnsureRoot creates the directory that holds all workspaces
func EnsureRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace root: %w", err)
	}
	return abs, nil
}

// CreateWorkspace creates a new workspace directory named name under root.
// The directory must not exist yet, so two jobs never share one.
func CreateWorkspace(root, name string) (*Workspace, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid workspace name %q", name)
	}

	dir := filepath.Join(root, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	return &Workspace{dir: dir}, nil
}

// OpenWorkspace wraps an existing directory
func OpenWorkspace(dir string) *Workspace {
	return &Workspace{dir: filepath.Clean(dir)}
}

// Dir returns the absolute workspace directory
func (ws *Workspace) Dir() string {
	return ws.dir
}

// Path resolves key inside the workspace
func (ws *Workspace) Path(key string) (string, error) {
	path := filepath.Join(ws.dir, key)

	// Security: prevent directory traversal
	rel, err := filepath.Rel(ws.dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}

	return path, nil
}

// GetReader returns a reader for the file at the given key
func (ws *Workspace) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := ws.Path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Exists checks if a regular file exists at the given key
func (ws *Workspace) Exists(ctx context.Context, key string) (bool, error) {
	path, err := ws.Path(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return info.Mode().IsRegular(), nil
}

// GetMetadata returns metadata for the file at the given key
func (ws *Workspace) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	path, err := ws.Path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &Metadata{
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
	}, nil
}

// WriteFile writes data to key, replacing any previous content
func (ws *Workspace) WriteFile(key string, data []byte) error {
	path, err := ws.Path(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes the workspace and everything in it
func (ws *Workspace) Remove() error {
	if err := os.RemoveAll(ws.dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", ws.dir, err)
	}
	return nil
}
