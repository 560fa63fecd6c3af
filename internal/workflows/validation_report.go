package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tendant/simple-icon-tester/internal/executors"
	"github.com/tendant/simple-icon-tester/internal/metrics"
)

// ReportProducer writes the job's HTML report into its workspace
type ReportProducer interface {
	Produce(ctx context.Context, job *Job, metadataPath string) (*ReportArtifact, error)
}

// ValidationProducer runs the external validation tool, which writes the
// report itself. When the tool leaves no report behind a diagnostic report is
// written in its place.
type ValidationProducer struct {
	command    executors.CommandTemplate
	runner     executors.ToolRunner
	reportName string
	testDir    string
	metrics    *metrics.Metrics
}

// NewValidationProducer creates a producer running command through runner.
// testDir is only reported in diagnostics.
func NewValidationProducer(command executors.CommandTemplate, runner executors.ToolRunner, reportName, testDir string, m *metrics.Metrics) *ValidationProducer {
	return &ValidationProducer{
		command:    command,
		runner:     runner,
		reportName: reportName,
		testDir:    testDir,
		metrics:    m,
	}
}

// Produce implements ReportProducer
func (p *ValidationProducer) Produce(ctx context.Context, job *Job, metadataPath string) (*ReportArtifact, error) {
	reportPath, err := job.Workspace.Path(p.reportName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}

	var result *executors.Result
	inv, err := p.command.Expand(executors.Placeholders{
		Workspace:  job.Workspace.Dir(),
		Metadata:   metadataPath,
		ReportPath: reportPath,
	})
	if err != nil {
		result = &executors.Result{ExitCode: -1, StartErr: err}
	} else {
		job.logger().Info("Running validation tool", "command", inv.String())
		result = p.runner.Run(ctx, inv)
		p.metrics.ToolRun(result.ExitCode, result.ArtifactPresent, result.Duration)
	}

	if result.ArtifactPresent {
		if result.ExitCode != 0 {
			job.logger().Warn("Validation tool exited non-zero, sending its report", "exit_code", result.ExitCode)
		}
		return &ReportArtifact{Path: reportPath, ProducedAt: time.Now()}, nil
	}

	procErr := toolError(result)
	job.logger().Error("Validation tool produced no report, writing fallback",
		"error", procErr,
		"stderr", truncate(result.Stderr, 2048))

	page, err := p.fallbackReport(job, procErr, result)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render fallback report: %v", ErrWorkspaceIO, err)
	}
	if err := job.Workspace.WriteFile(p.reportName, page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}

	return &ReportArtifact{Path: reportPath, ProducedAt: time.Now(), Fallback: true}, nil
}

func toolError(result *executors.Result) error {
	if !result.Started() {
		return fmt.Errorf("%w: %v", ErrExternalProcess, result.StartErr)
	}
	return fmt.Errorf("%w: exit code %d without a report", ErrExternalProcess, result.ExitCode)
}

// sanity describes the environment the tool ran in
type sanity struct {
	Workspace       string   `json:"workspace"`
	Cwd             string   `json:"cwd"`
	GoVersion       string   `json:"go"`
	ToolDir         string   `json:"toolDir"`
	HasTestDir      bool     `json:"hasTestDir"`
	TestDirEntries  []string `json:"testDirEntries"`
	DurationSeconds float64  `json:"durationSeconds"`
}

func (p *ValidationProducer) fallbackReport(job *Job, procErr error, result *executors.Result) ([]byte, error) {
	cwd, _ := os.Getwd()

	testDir := p.testDir
	if testDir != "" && !filepath.IsAbs(testDir) {
		testDir = filepath.Join(p.command.Dir, testDir)
	}
	facts := sanity{
		Workspace:       job.Workspace.Dir(),
		Cwd:             cwd,
		GoVersion:       runtime.Version(),
		ToolDir:         p.command.Dir,
		TestDirEntries:  []string{},
		DurationSeconds: result.Duration.Seconds(),
	}
	if entries, err := os.ReadDir(testDir); err == nil {
		facts.HasTestDir = true
		for i, e := range entries {
			if i == 20 {
				break
			}
			facts.TestDirEntries = append(facts.TestDirEntries, e.Name())
		}
	}
	factsJSON, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = fallbackTemplate.Execute(&buf, map[string]any{
		"Error":           procErr.Error(),
		"Stderr":          orEmpty(result.Stderr),
		"StderrTruncated": result.StderrTruncated,
		"Stdout":          orEmpty(result.Stdout),
		"StdoutTruncated": result.StdoutTruncated,
		"Sanity":          string(factsJSON),
	})
	return buf.Bytes(), err
}

func orEmpty(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	return string(b)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var fallbackTemplate = template.Must(template.New("fallback").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Icon tester (error)</title>
    <style>
      body { font-family: system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial, sans-serif; padding: 16px; }
      pre { background: #111; color: #eee; padding: 12px; overflow: auto; border-radius: 8px; }
      .muted { color: #666; }
    </style>
  </head>
  <body>
    <h1>Icon tester: validation tool failed</h1>
    <p class="muted">The validation tool did not write a report. This diagnostic report was generated instead.</p>
    <h2>Error</h2>
    <pre>{{.Error}}</pre>
    <h2>stderr{{if .StderrTruncated}} <span class="muted">(truncated)</span>{{end}}</h2>
    <pre>{{.Stderr}}</pre>
    <h2>stdout{{if .StdoutTruncated}} <span class="muted">(truncated)</span>{{end}}</h2>
    <pre>{{.Stdout}}</pre>
    <h2>Sanity</h2>
    <pre>{{.Sanity}}</pre>
  </body>
</html>
`))
