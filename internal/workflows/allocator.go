package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-icon-tester/internal/storage"
)

// Allocator creates jobs with a fresh workspace each
type Allocator struct {
	root   string
	prefix string
	logger *slog.Logger
}

// NewAllocator creates an allocator placing workspaces under root
func NewAllocator(root, prefix string, logger *slog.Logger) (*Allocator, error) {
	abs, err := storage.EnsureRoot(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{root: abs, prefix: prefix, logger: logger}, nil
}

// Root returns the absolute workspace root
func (a *Allocator) Root() string {
	return a.root
}

// Allocate creates a job named name with its own workspace. The workspace
// directory is created exclusively, so a colliding id fails instead of sharing.
func (a *Allocator) Allocate(ctx context.Context, name string) (*Job, error) {
	id := a.prefix + uuid.NewString()

	ws, err := storage.CreateWorkspace(a.root, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}

	job := &Job{
		ID:        id,
		Name:      name,
		Workspace: ws,
		State:     StateAllocated,
		StartedAt: time.Now(),
		Log:       a.logger.With(slog.String("job_id", id), slog.String("job", name)),
	}
	job.Log.Debug("Workspace allocated", "dir", ws.Dir())

	return job, nil
}
