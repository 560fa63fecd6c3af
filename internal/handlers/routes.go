package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// RouteOptions configures the optional routes
type RouteOptions struct {
	// Metrics serves /metrics when set
	Metrics http.Handler
	// StaticDir is served at / when it exists
	StaticDir string
	// Mode is reported by /health
	Mode string
}

// SetupRoutes registers every route on mux
func SetupRoutes(mux *http.ServeMux, h *ReportHandler, opts RouteOptions) {
	mux.HandleFunc(pipeline.RouteHealth, HandleHealth(opts.Mode))
	mux.HandleFunc(pipeline.RouteTestSVG, h.HandleTestSVG)
	mux.HandleFunc(pipeline.RouteTestVisual, h.HandleTestVisual)

	if opts.Metrics != nil {
		mux.Handle(pipeline.RouteMetrics, opts.Metrics)
	}

	if opts.StaticDir != "" {
		if info, err := os.Stat(opts.StaticDir); err == nil && info.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(opts.StaticDir)))
		} else {
			slog.Warn("Static directory not found, not serving /", "dir", opts.StaticDir)
		}
	}
}

// HandleHealth returns health status
func HandleHealth(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(pipeline.HealthResponse{
			Status: "healthy",
			Mode:   mode,
		})
	}
}
