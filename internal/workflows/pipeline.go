package workflows

import (
	"context"
	"fmt"

	"github.com/tendant/simple-icon-tester/internal/metrics"
)

// Pipeline is the single workflow shape behind every test route:
// stage, optionally transform and preview, resolve metadata, produce a report.
type Pipeline struct {
	name      string
	stager    *Stager
	transform *TransformStage
	preview   *PreviewStage
	resolver  *Resolver
	producer  ReportProducer
	metrics   *metrics.Metrics
}

// PipelineOption configures optional stages
type PipelineOption func(*Pipeline)

// WithTransform runs t after staging
func WithTransform(t *TransformStage) PipelineOption {
	return func(p *Pipeline) { p.transform = t }
}

// WithPreview renders previews after the transform
func WithPreview(s *PreviewStage) PipelineOption {
	return func(p *Pipeline) { p.preview = s }
}

// WithMetrics records stage counters on m
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline named name
func NewPipeline(name string, stager *Stager, resolver *Resolver, producer ReportProducer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		name:     name,
		stager:   stager,
		resolver: resolver,
		producer: producer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Workflow
func (p *Pipeline) Name() string {
	return p.name
}

// Execute implements Workflow. On error the job is moved to Failed and no
// further stage runs.
func (p *Pipeline) Execute(ctx context.Context, job *Job, src UploadSource) (*ReportArtifact, error) {
	artifact, err := p.execute(ctx, job, src)
	if err != nil {
		job.Fail(err)
		return nil, err
	}
	return artifact, nil
}

func (p *Pipeline) execute(ctx context.Context, job *Job, src UploadSource) (*ReportArtifact, error) {
	if err := p.stager.Stage(ctx, job, src); err != nil {
		return nil, err
	}
	if err := job.Advance(StateStaged); err != nil {
		return nil, err
	}
	p.metrics.FilesStaged(job.Name, len(job.Files))

	if p.transform != nil {
		p.transform.Run(ctx, job)
		if err := job.Advance(StateTransformed); err != nil {
			return nil, err
		}
	}
	if p.preview != nil {
		p.preview.Run(ctx, job)
	}

	records := p.resolver.Resolve(job)
	if len(records) != len(job.Files) {
		return nil, fmt.Errorf("resolved %d records for %d files", len(records), len(job.Files))
	}
	metadataPath, err := p.resolver.WriteDocument(job, records)
	if err != nil {
		return nil, err
	}
	if err := job.Advance(StateMetadataResolved); err != nil {
		return nil, err
	}

	artifact, err := p.producer.Produce(ctx, job, metadataPath)
	if err != nil {
		return nil, err
	}
	job.Report = artifact
	if err := job.Advance(StateReportProduced); err != nil {
		return nil, err
	}

	return artifact, nil
}
