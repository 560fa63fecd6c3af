// Package app assembles the icon tester from its configuration: catalog,
// workspace allocator, the two report pipelines and the HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-icon-tester/internal/catalog"
	"github.com/tendant/simple-icon-tester/internal/config"
	"github.com/tendant/simple-icon-tester/internal/executors"
	"github.com/tendant/simple-icon-tester/internal/handlers"
	"github.com/tendant/simple-icon-tester/internal/ledger"
	"github.com/tendant/simple-icon-tester/internal/metrics"
	"github.com/tendant/simple-icon-tester/internal/outline"
	"github.com/tendant/simple-icon-tester/internal/preview"
	"github.com/tendant/simple-icon-tester/internal/workflows"
	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// App holds the long-lived components shared by every request
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Catalog   *catalog.Catalog
	Metrics   *metrics.Metrics
	Ledger    ledger.Recorder
	Allocator *workflows.Allocator
	Runner    *workflows.WorkflowRunner
	Handler   *handlers.ReportHandler

	closers []func() error
}

// New builds every component described by cfg. The catalog is loaded once
// here and shared read-only by all jobs.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Ledger: ledger.Nop{}}

	cat, err := catalog.Load(cfg.Catalog.Path, catalog.Options{
		IdentifierKey: cfg.Catalog.IdentifierKey,
		GlyphKey:      cfg.Catalog.GlyphKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	a.Catalog = cat
	logger.Info("✓ Catalog loaded", "path", cfg.Catalog.Path, "entries", cat.Len())

	a.Allocator, err = workflows.NewAllocator(cfg.TmpRoot, cfg.JobPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare workspace root: %w", err)
	}
	logger.Info("✓ Workspace root ready", "dir", a.Allocator.Root())

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	if cfg.Ledger.DatabaseURL != "" {
		l, err := ledger.Open(ctx, cfg.Ledger.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.Ledger = l
		a.closers = append(a.closers, l.Close)
		logger.Info("✓ Job ledger connected")
	}

	a.Runner = a.buildRunner()
	for _, job := range a.Runner.Jobs() {
		logger.Info("✓ Registered pipeline", "job", job)
	}

	a.Handler = handlers.NewReportHandler(a.Allocator, a.Runner, handlers.ReportHandlerConfig{
		UploadField:  cfg.Upload.Field,
		MaxBodyBytes: a.Constraints().MaxBodyBytes(),
		Metrics:      a.Metrics,
		Ledger:       a.Ledger,
		Logger:       logger,
	})

	return a, nil
}

// Constraints returns the staging limits derived from the configuration
func (a *App) Constraints() workflows.Constraints {
	cfg := a.Config
	c := workflows.Constraints{
		MaxFileBytes: cfg.Upload.MaxFileBytes,
		MaxFiles:     cfg.Upload.MaxFiles,
		Extensions:   cfg.Upload.Extensions,
		MediaTypes:   cfg.Upload.MediaTypes,
		Reserved:     []string{cfg.Metadata.Name, cfg.Report.Name},
	}
	c.WithDefaults()
	return c
}

func (a *App) buildRunner() *workflows.WorkflowRunner {
	cfg := a.Config
	stager := workflows.NewStager(a.Constraints())
	resolver := workflows.NewResolver(a.Catalog, cfg.Metadata.Name, cfg.Metadata.BlankAttributes)

	validation := workflows.NewValidationProducer(
		executors.CommandTemplate{
			Command: cfg.Tool.Command,
			Args:    cfg.Tool.Args,
			Dir:     cfg.Tool.Dir,
		},
		executors.NewExecRunner(cfg.Tool.MaxOutputBytes, a.Logger),
		cfg.Report.Name,
		cfg.Tool.TestDir,
		a.Metrics,
	)

	visualOpts := []workflows.PipelineOption{
		workflows.WithTransform(workflows.NewTransformStage(
			outline.New(cfg.Outline.Stroke, cfg.Outline.Width), cfg.Concurrency, a.Metrics)),
		workflows.WithMetrics(a.Metrics),
	}
	if cfg.Preview.Size > 0 {
		visualOpts = append(visualOpts, workflows.WithPreview(workflows.NewPreviewStage(
			preview.New(cfg.Preview.Size), cfg.Concurrency, a.Metrics)))
	}

	runner := workflows.NewWorkflowRunner()
	runner.Register(pipeline.JobTestSVG, workflows.NewPipeline(pipeline.JobTestSVG, stager, resolver, validation,
		workflows.WithMetrics(a.Metrics)))
	runner.Register(pipeline.JobTestVisual, workflows.NewPipeline(pipeline.JobTestVisual, stager, resolver,
		workflows.NewVisualProducer(cfg.Visual.Template, cfg.Report.Name), visualOpts...))
	return runner
}

// Routes returns the HTTP handler serving every route
func (a *App) Routes(mode string) http.Handler {
	opts := handlers.RouteOptions{StaticDir: a.Config.StaticDir, Mode: mode}
	if a.Metrics != nil {
		opts.Metrics = a.Metrics.Handler()
	}
	mux := http.NewServeMux()
	handlers.SetupRoutes(mux, a.Handler, opts)
	return mux
}

// Close releases external connections
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
