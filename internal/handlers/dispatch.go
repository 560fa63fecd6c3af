package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/simple-icon-tester/internal/ledger"
	"github.com/tendant/simple-icon-tester/internal/metrics"
	"github.com/tendant/simple-icon-tester/internal/storage"
	"github.com/tendant/simple-icon-tester/internal/workflows"
)

// responder guarantees a single terminal response per request. Any later
// attempt is logged and dropped.
type responder struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	sent   atomic.Bool
	logger *slog.Logger
}

func newResponder(w http.ResponseWriter, logger *slog.Logger) *responder {
	return &responder{w: w, rc: http.NewResponseController(w), logger: logger}
}

// claim reserves the response for the caller
func (r *responder) claim(what string) bool {
	if r.sent.CompareAndSwap(false, true) {
		return true
	}
	r.logger.Warn("Response already sent, dropping", "attempt", what)
	return false
}

// Sent reports whether a terminal response was written
func (r *responder) Sent() bool {
	return r.sent.Load()
}

// text writes a plain text response
func (r *responder) text(status int, body string) {
	if !r.claim(fmt.Sprintf("text %d", status)) {
		return
	}
	r.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	r.w.Header().Set("X-Content-Type-Options", "nosniff")
	r.w.WriteHeader(status)
	io.WriteString(r.w, body)
	r.flush()
}

// html writes content as a complete 200 report and flushes it to the client.
// Range and conditional request headers are ignored: a report is always sent
// whole.
func (r *responder) html(content io.Reader, contentType string, size int64) error {
	if !r.claim("report") {
		return nil
	}
	h := r.w.Header()
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-store")
	if size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	r.w.WriteHeader(http.StatusOK)
	_, err := io.Copy(r.w, content)
	r.flush()
	return err
}

func (r *responder) flush() {
	if err := r.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		r.logger.Debug("Flush failed", "error", err)
	}
}

// dispatch sends the job's report. Only the dispatcher writes a success body.
func dispatch(resp *responder, req *http.Request, job *workflows.Job, artifact *workflows.ReportArtifact) error {
	if artifact == nil {
		return workflows.ErrReportMissing
	}
	name := filepath.Base(artifact.Path)

	var store storage.ReaderWithMetadata = job.Workspace
	meta, err := store.GetMetadata(req.Context(), name)
	if err != nil {
		return fmt.Errorf("%w: %v", workflows.ErrReportMissing, err)
	}

	rc, err := store.GetReader(req.Context(), name)
	if err != nil {
		return fmt.Errorf("%w: %v", workflows.ErrReportMissing, err)
	}
	defer rc.Close()

	if err := resp.html(rc, meta.ContentType, meta.Size); err != nil {
		job.Log.Warn("Report write interrupted", "error", err)
	}
	if err := job.Advance(workflows.StateDispatched); err != nil {
		job.Log.Warn("Unexpected job state at dispatch", "error", err)
	}
	job.Log.Info("Report dispatched",
		"bytes", meta.Size,
		"fallback", artifact.Fallback,
		"since_produced", time.Since(artifact.ProducedAt))
	return nil
}

// cleanupScheduler removes a job's workspace exactly once, after the response
// carrying its report has been written
type cleanupScheduler struct {
	once    sync.Once
	job     *workflows.Job
	metrics *metrics.Metrics
	ledger  ledger.Recorder
}

func scheduleCleanup(job *workflows.Job, m *metrics.Metrics, l ledger.Recorder) *cleanupScheduler {
	m.JobStarted()
	return &cleanupScheduler{job: job, metrics: m, ledger: l}
}

func (c *cleanupScheduler) run() {
	c.once.Do(c.cleanup)
}

func (c *cleanupScheduler) cleanup() {
	job := c.job

	if err := job.Workspace.Remove(); err != nil {
		c.metrics.CleanupFailed()
		job.Log.Error("Workspace cleanup failed", "error", err)
	}
	if job.State != workflows.StateFailed && job.State != workflows.StateDispatched {
		job.Fail(fmt.Errorf("job ended in state %s", job.State))
	}
	if err := job.Advance(workflows.StateCleanedUp); err != nil {
		job.Log.Warn("Unexpected job state at cleanup", "error", err)
	}

	elapsed := time.Since(job.StartedAt)
	outcome := job.Outcome()
	c.metrics.JobFinished(job.Name, outcome, elapsed)
	job.Log.Info("Job finished", "outcome", outcome, "duration", elapsed)

	if c.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.ledger.Record(ctx, ledger.Entry{
		JobID:     job.ID,
		Job:       job.Name,
		Files:     len(job.Files),
		Digest:    job.Digest(),
		Outcome:   outcome,
		Fallback:  job.Report != nil && job.Report.Fallback,
		StartedAt: job.StartedAt,
		Duration:  elapsed,
	})
	if err != nil {
		job.Log.Warn("Failed to record job in ledger", "error", err)
	}
}
