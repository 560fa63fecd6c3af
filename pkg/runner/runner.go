package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tendant/simple-icon-tester/internal/app"
	"github.com/tendant/simple-icon-tester/internal/config"
	"github.com/tendant/simple-icon-tester/internal/workflows"
)

// Result is the outcome of one local run
type Result struct {
	JobID    string
	Files    int
	Report   []byte
	Fallback bool
	Duration time.Duration
}

// Runner provides a high-level API for running the icon pipelines in process,
// without the HTTP service
type Runner struct {
	app *app.App
}

// New creates and initializes a runner from cfg
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize icon tester: %w", err)
	}
	return &Runner{app: a}, nil
}

// Check runs the pipeline registered for job over the files at paths and
// returns the report. The job workspace is removed before Check returns.
func (r *Runner) Check(ctx context.Context, job string, paths []string) (*Result, error) {
	j, err := r.app.Allocator.Allocate(ctx, job)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := j.Workspace.Remove(); err != nil {
			j.Log.Error("Workspace cleanup failed", "error", err)
		}
		if j.State != workflows.StateDispatched && j.State != workflows.StateFailed {
			j.Fail(fmt.Errorf("job ended in state %s", j.State))
		}
		_ = j.Advance(workflows.StateCleanedUp)
	}()

	artifact, err := r.app.Runner.Run(ctx, j, workflows.NewFileSource(paths...))
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, workflows.ErrReportMissing
	}

	report, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflows.ErrReportMissing, err)
	}
	if err := j.Advance(workflows.StateDispatched); err != nil {
		return nil, err
	}

	elapsed := time.Since(j.StartedAt)
	j.Log.Info("Local check finished", "files", len(j.Files), "fallback", artifact.Fallback, "duration", elapsed)

	return &Result{
		JobID:    j.ID,
		Files:    len(j.Files),
		Report:   report,
		Fallback: artifact.Fallback,
		Duration: elapsed,
	}, nil
}

// Jobs lists the runnable job names
func (r *Runner) Jobs() []string {
	return r.app.Runner.Jobs()
}

// Shutdown releases the runner's external connections
func (r *Runner) Shutdown() error {
	return r.app.Close()
}
