package workflows

import (
	"context"
	"fmt"
	"sort"
)

// Workflow carries a job from its upload to a produced report
type Workflow interface {
	// Execute runs the workflow stages for job, reading uploads from src
	Execute(ctx context.Context, job *Job, src UploadSource) (*ReportArtifact, error)

	// Name returns the workflow name
	Name() string
}

// WorkflowRunner executes workflows by job name
type WorkflowRunner struct {
	workflows map[string]Workflow
}

// NewWorkflowRunner creates an empty runner
func NewWorkflowRunner() *WorkflowRunner {
	return &WorkflowRunner{
		workflows: make(map[string]Workflow),
	}
}

// Register registers a workflow
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Lookup returns the workflow registered for job
func (r *WorkflowRunner) Lookup(job string) (Workflow, error) {
	workflow, ok := r.workflows[job]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, job)
	}
	return workflow, nil
}

// Run executes the workflow registered for job.Name
func (r *WorkflowRunner) Run(ctx context.Context, job *Job, src UploadSource) (*ReportArtifact, error) {
	workflow, err := r.Lookup(job.Name)
	if err != nil {
		job.Fail(err)
		return nil, err
	}
	return workflow.Execute(ctx, job, src)
}

// Jobs returns the registered job names, sorted
func (r *WorkflowRunner) Jobs() []string {
	jobs := make([]string, 0, len(r.workflows))
	for job := range r.workflows {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)
	return jobs
}
