package executors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxOutputBytes limits captured stdout and stderr per stream
const DefaultMaxOutputBytes = 10 * 1024 * 1024

// Invocation is one fully expanded external tool call
type Invocation struct {
	// Name is the executable
	Name string
	Args []string
	// Dir is the working directory, empty means the current one
	Dir string
	// Env is appended to the process environment
	Env []string
	// Artifact is checked for existence after the process exits
	Artifact string
}

// String renders the invocation for logs
func (inv Invocation) String() string {
	return strings.TrimSpace(inv.Name + " " + strings.Join(inv.Args, " "))
}

// Result is the structured outcome of an invocation. A non-zero exit code is
// not an error: callers decide based on ArtifactPresent.
type Result struct {
	ExitCode        int
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	// StartErr is set when the process could not be started at all
	StartErr        error
	Duration        time.Duration
	ArtifactPresent bool
}

// Started reports whether the process ran
func (r *Result) Started() bool {
	return r.StartErr == nil
}

// ToolRunner runs external tools
type ToolRunner interface {
	Run(ctx context.Context, inv Invocation) *Result
}

// ExecRunner runs invocations with os/exec and bounded output capture
type ExecRunner struct {
	maxOutput int64
	logger    *slog.Logger
}

// NewExecRunner creates a runner capturing at most maxOutput bytes per stream
func NewExecRunner(maxOutput int64, logger *slog.Logger) *ExecRunner {
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExecRunner{
		maxOutput: maxOutput,
		logger:    logger.With(slog.String("component", "toolRunner")),
	}
}

// Run executes inv to completion. The process is not tied to ctx cancellation:
// once started it runs until it exits.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) *Result {
	ctx = context.WithoutCancel(ctx)
	logArgs := []any{slog.String("command", inv.String()), slog.String("dir", inv.Dir)}

	stdout := &limitedBuffer{limit: r.maxOutput}
	stderr := &limitedBuffer{limit: r.maxOutput}

	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	result := &Result{ExitCode: -1}

	if err := cmd.Start(); err != nil {
		result.StartErr = fmt.Errorf("failed to start %s: %w", inv.Name, err)
		result.Duration = time.Since(start)
		r.logger.Error("Tool failed to start", append(logArgs, slog.Any("error", err))...)
		result.ArtifactPresent = artifactExists(inv.Artifact)
		return result
	}

	r.logger.Debug("Tool process started", logArgs...)

	waitErr := cmd.Wait()
	result.Duration = time.Since(start)
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()
	result.StdoutTruncated = stdout.truncated
	result.StderrTruncated = stderr.truncated

	switch {
	case waitErr == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		logArgs = append(logArgs, slog.Any("error", waitErr))
	}

	if stdout.truncated || stderr.truncated {
		r.logger.Warn("Tool output truncated", append(logArgs, slog.Int64("limit_bytes", r.maxOutput))...)
	}

	result.ArtifactPresent = artifactExists(inv.Artifact)

	r.logger.Info("Tool finished", append(logArgs,
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration),
		slog.Bool("artifact_present", result.ArtifactPresent),
	)...)

	return result
}

func artifactExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// limitedBuffer keeps the first limit bytes written and discards the rest so
// the child never blocks on a full pipe
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - int64(b.buf.Len())
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// CommandTemplate is a configured tool command line with placeholders
type CommandTemplate struct {
	Command string
	Args    []string
	Dir     string
}

// Placeholder values substituted into a CommandTemplate
type Placeholders struct {
	Workspace  string
	Metadata   string
	ReportPath string
}

// Expand substitutes placeholders and expands glob arguments relative to Dir
func (t CommandTemplate) Expand(p Placeholders) (Invocation, error) {
	if strings.TrimSpace(t.Command) == "" {
		return Invocation{}, fmt.Errorf("tool command cannot be empty")
	}

	reportName := filepath.Base(p.ReportPath)
	replacer := strings.NewReplacer(
		"{workspace}", p.Workspace,
		"{metadata}", p.Metadata,
		"{report_dir}", filepath.Dir(p.ReportPath),
		"{report_name}", reportName,
		"{report_stem}", strings.TrimSuffix(reportName, filepath.Ext(reportName)),
	)

	args := make([]string, 0, len(t.Args))
	for _, raw := range t.Args {
		arg := replacer.Replace(raw)
		if raw == arg && strings.ContainsAny(arg, "*?[") {
			matches, err := t.glob(arg)
			if err != nil {
				return Invocation{}, err
			}
			if len(matches) > 0 {
				args = append(args, matches...)
				continue
			}
		}
		args = append(args, arg)
	}

	name := replacer.Replace(t.Command)
	// exec resolves relative paths after changing into Dir, so pin them here
	if !filepath.IsAbs(name) && strings.ContainsRune(name, filepath.Separator) {
		abs, err := filepath.Abs(filepath.Join(t.Dir, name))
		if err != nil {
			return Invocation{}, fmt.Errorf("failed to resolve tool command: %w", err)
		}
		name = abs
	}

	return Invocation{
		Name:     name,
		Args:     args,
		Dir:      t.Dir,
		Artifact: p.ReportPath,
	}, nil
}

func (t CommandTemplate) glob(pattern string) ([]string, error) {
	base := t.Dir
	if filepath.IsAbs(pattern) {
		base = ""
	}
	matches, err := filepath.Glob(filepath.Join(base, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	if base == "" {
		return matches, nil
	}
	for i, m := range matches {
		if rel, err := filepath.Rel(base, m); err == nil {
			matches[i] = rel
		}
	}
	return matches, nil
}
