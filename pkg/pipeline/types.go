package pipeline

// Job names (one pipeline per route)
const (
	JobTestSVG    = "test-svg"
	JobTestVisual = "test-visual"
)

// HTTP routes
const (
	RouteTestSVG    = "/" + JobTestSVG
	RouteTestVisual = "/" + JobTestVisual
	RouteHealth     = "/health"
	RouteMetrics    = "/metrics"
)

// Upload and artifact defaults (match the icon tester conventions)
const (
	DefaultUploadField  = "svgFiles"
	DefaultReportName   = "report.html"
	DefaultMetadataName = "metadata.json"
	DefaultJobPrefix    = "openmoji-"
	SVGMediaType        = "image/svg+xml"
)

// Outcome constants used for metrics labels and the job ledger
const (
	OutcomeSuccess       = "success"
	OutcomeFallback      = "fallback_report"
	OutcomeInvalidInput  = "invalid_input"
	OutcomeTooLarge      = "too_large"
	OutcomeWorkspaceIO   = "workspace_io"
	OutcomeReportMissing = "report_missing"
	OutcomeInternal      = "internal_error"
)

// NoFilesMessage is the body sent when a batch holds no accepted file
const NoFilesMessage = "Please choose some svg icon files! :)"

// ReportMissingMessage is the fixed body sent when no report exists at dispatch time
const ReportMissingMessage = "Report was not generated (report.html missing). Check server logs."

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode,omitempty"`
}
