package workflows

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-icon-tester/internal/metrics"
)

// Previewer renders a file to an embeddable data URI
type Previewer interface {
	DataURI(src []byte) (string, error)
}

// PreviewStage renders a raster preview per staged file. Failures are logged
// and the file simply has no preview.
type PreviewStage struct {
	previewer   Previewer
	concurrency int
	metrics     *metrics.Metrics
}

// NewPreviewStage creates a stage rendering at most concurrency files at once
func NewPreviewStage(p Previewer, concurrency int, m *metrics.Metrics) *PreviewStage {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &PreviewStage{previewer: p, concurrency: concurrency, metrics: m}
}

// Run fills job.Previews, one entry per file
func (s *PreviewStage) Run(ctx context.Context, job *Job) {
	previews := make([]string, len(job.Files))
	errs := make([]error, len(job.Files))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, f := range job.Files {
		i, f := i, f
		g.Go(func() error {
			previews[i], errs[i] = s.render(f.StoredPath)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			s.metrics.PreviewFailed(job.Name)
			job.logger().Warn("Preview failed", "file", job.Files[i].OriginalName, "error", err)
		}
	}
	job.Previews = previews
}

func (s *PreviewStage) render(path string) (uri string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("preview panic: %v", r)
		}
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return s.previewer.DataURI(src)
}
