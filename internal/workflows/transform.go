package workflows

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-icon-tester/internal/metrics"
)

// Transformer rewrites one file's content
type Transformer interface {
	Name() string
	Transform(src []byte) ([]byte, error)
}

// TransformOutcome is the result for one staged file
type TransformOutcome struct {
	Index int
	File  string
	Err   error
}

// OK reports whether the file was transformed
func (o TransformOutcome) OK() bool {
	return o.Err == nil
}

// TransformStage applies a Transformer to every staged file in place. It is
// best effort: a failed file is left unmodified and the job continues.
type TransformStage struct {
	transformer Transformer
	concurrency int
	metrics     *metrics.Metrics
}

// NewTransformStage creates a stage running at most concurrency files at once
func NewTransformStage(t Transformer, concurrency int, m *metrics.Metrics) *TransformStage {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &TransformStage{transformer: t, concurrency: concurrency, metrics: m}
}

// Run transforms the job's files and returns one outcome per file, in file order
func (s *TransformStage) Run(ctx context.Context, job *Job) []TransformOutcome {
	start := time.Now()
	outcomes := make([]TransformOutcome, len(job.Files))
	first := uniquePaths(job.Files)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, f := range job.Files {
		i, f := i, f
		outcomes[i] = TransformOutcome{Index: i, File: f.OriginalName}
		if first[i] != i {
			continue
		}
		g.Go(func() error {
			outcomes[i].Err = s.transformFile(f.StoredPath)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i := range outcomes {
		// repeated names share one file on disk and therefore one result
		outcomes[i].Err = outcomes[first[i]].Err
		s.metrics.TransformResult(s.transformer.Name(), outcomes[i].OK())
		if !outcomes[i].OK() {
			failed++
			job.logger().Warn("Transform failed, keeping original",
				"transform", s.transformer.Name(), "file", outcomes[i].File, "error", outcomes[i].Err)
		}
	}

	job.logger().Info("Transform finished",
		"transform", s.transformer.Name(),
		"files", len(outcomes),
		"failed", failed,
		"duration", time.Since(start))
	return outcomes
}

func (s *TransformStage) transformFile(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransform, r)
		}
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransform, err)
	}
	out, err := s.transformer.Transform(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransform, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrTransform, err)
	}
	return nil
}

// uniquePaths maps every file index to the index of the first file stored at
// the same path
func uniquePaths(files []UploadedFile) []int {
	first := make([]int, len(files))
	seen := make(map[string]int, len(files))
	for i, f := range files {
		if j, ok := seen[f.StoredPath]; ok {
			first[i] = j
			continue
		}
		seen[f.StoredPath] = i
		first[i] = i
	}
	return first
}
