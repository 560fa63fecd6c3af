package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/tendant/simple-icon-tester/internal/ledger"
	"github.com/tendant/simple-icon-tester/internal/metrics"
	"github.com/tendant/simple-icon-tester/internal/workflows"
	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// ReportHandler runs one pipeline per request and answers with its HTML report
type ReportHandler struct {
	allocator   *workflows.Allocator
	runner      *workflows.WorkflowRunner
	uploadField string
	maxBody     int64
	metrics     *metrics.Metrics
	ledger      ledger.Recorder
	logger      *slog.Logger
}

// ReportHandlerConfig holds the request-level limits
type ReportHandlerConfig struct {
	// UploadField is the multipart field carrying the files
	UploadField string
	// MaxBodyBytes caps the whole request body
	MaxBodyBytes int64
	Metrics      *metrics.Metrics
	Ledger       ledger.Recorder
	Logger       *slog.Logger
}

// NewReportHandler creates a report handler
func NewReportHandler(allocator *workflows.Allocator, runner *workflows.WorkflowRunner, cfg ReportHandlerConfig) *ReportHandler {
	if cfg.UploadField == "" {
		cfg.UploadField = pipeline.DefaultUploadField
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ReportHandler{
		allocator:   allocator,
		runner:      runner,
		uploadField: cfg.UploadField,
		maxBody:     cfg.MaxBodyBytes,
		metrics:     cfg.Metrics,
		ledger:      cfg.Ledger,
		logger:      cfg.Logger,
	}
}

// HandleTestSVG handles POST /test-svg - validates icons with the external tool
func (h *ReportHandler) HandleTestSVG(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, pipeline.JobTestSVG)
}

// HandleTestVisual handles POST /test-visual - renders icons into a visual report
func (h *ReportHandler) HandleTestVisual(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, pipeline.JobTestVisual)
}

func (h *ReportHandler) handle(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	resp := newResponder(w, h.logger.With(slog.String("job", name)))

	job, err := h.allocator.Allocate(ctx, name)
	if err != nil {
		h.logger.Error("Failed to allocate job", "job", name, "error", err)
		h.metrics.JobRejected(name, workflows.Classify(err).Outcome())
		h.fail(resp, h.logger, err)
		return
	}
	resp.logger = job.Log

	// Deferred calls run in reverse: the recovery below answers first, then
	// the workspace is removed.
	cleanup := scheduleCleanup(job, h.metrics, h.ledger)
	defer cleanup.run()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			job.Log.Error("Recovered from panic", "error", err, "stack", string(debug.Stack()))
			job.Fail(err)
			h.fail(resp, job.Log, err)
		}
	}()

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	src, err := workflows.NewMultipartSource(r.Body, r.Header.Get("Content-Type"), h.uploadField)
	if err != nil {
		job.Fail(err)
		h.fail(resp, job.Log, err)
		return
	}

	artifact, err := h.runner.Run(ctx, job, src)
	if err != nil {
		h.fail(resp, job.Log, err)
		return
	}

	if err := dispatch(resp, r, job, artifact); err != nil {
		job.Fail(err)
		h.fail(resp, job.Log, err)
	}
}

// fail is the error boundary: it maps err to exactly one response
func (h *ReportHandler) fail(resp *responder, logger *slog.Logger, err error) {
	kind := workflows.Classify(err)
	status, body := errorResponse(kind, err)

	if status >= http.StatusInternalServerError {
		logger.Error("Job failed", "kind", kind, "status", status, "error", err)
	} else {
		logger.Info("Job rejected", "kind", kind, "status", status, "error", err)
	}

	resp.text(status, body)
}

// errorResponse maps an error kind to a status code and client-facing body
func errorResponse(kind workflows.Kind, err error) (int, string) {
	switch kind {
	case workflows.KindValidationInput:
		if errors.Is(err, workflows.ErrNoFiles) {
			return http.StatusBadRequest, pipeline.NoFilesMessage
		}
		return http.StatusBadRequest, err.Error()
	case workflows.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge, err.Error()
	case workflows.KindReportMissing:
		return http.StatusInternalServerError, pipeline.ReportMissingMessage
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
