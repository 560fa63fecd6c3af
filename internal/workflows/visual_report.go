package workflows

import (
	"context"
	_ "embed"
	"fmt"
	"html"
	"os"
	"strings"
	"time"
)

// ResultPlaceholder is replaced by the rendered icons in a visual template
const ResultPlaceholder = "{{{result}}}"

//go:embed templates/visual.html
var defaultVisualTemplate string

// VisualProducer renders the staged files straight into an HTML template
type VisualProducer struct {
	templatePath string
	reportName   string
}

// NewVisualProducer creates a producer reading the template at templatePath on
// every job. An empty path selects the built-in template.
func NewVisualProducer(templatePath, reportName string) *VisualProducer {
	return &VisualProducer{templatePath: templatePath, reportName: reportName}
}

// Produce implements ReportProducer. The metadata document is not used.
func (p *VisualProducer) Produce(ctx context.Context, job *Job, _ string) (*ReportArtifact, error) {
	tmpl := defaultVisualTemplate
	if p.templatePath != "" {
		data, err := os.ReadFile(p.templatePath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read template: %v", ErrWorkspaceIO, err)
		}
		tmpl = string(data)
	}

	var body strings.Builder
	for i, f := range job.Files {
		content, err := os.ReadFile(f.StoredPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrWorkspaceIO, f.OriginalName, err)
		}

		name := html.EscapeString(f.OriginalName)
		if f.Checksum != "" {
			body.WriteString(`<div class="emoji" data-checksum="` + f.Checksum + `">`)
		} else {
			body.WriteString(`<div class="emoji">`)
		}
		body.WriteString(`<div class="title">` + name + `</div>`)
		body.WriteString(`<div>`)
		body.Write(content)
		body.WriteString(`</div>`)
		if i < len(job.Previews) && job.Previews[i] != "" {
			body.WriteString(`<div class="preview"><img src="` + job.Previews[i] + `" alt="` + name + ` preview"></div>`)
		}
		body.WriteString(`</div>`)
	}

	page := strings.Replace(tmpl, ResultPlaceholder, body.String(), 1)
	if err := job.Workspace.WriteFile(p.reportName, []byte(page)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}

	path, err := job.Workspace.Path(p.reportName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}
	job.logger().Info("Visual report written", "files", len(job.Files))
	return &ReportArtifact{Path: path, ProducedAt: time.Now()}, nil
}
