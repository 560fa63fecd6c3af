package workflows

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-icon-tester/internal/executors"
)

type mockToolRunner struct {
	mock.Mock
}

func (m *mockToolRunner) Run(ctx context.Context, inv executors.Invocation) *executors.Result {
	args := m.Called(ctx, inv)
	return args.Get(0).(*executors.Result)
}

func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func validationProducer(command string, args ...string) *ValidationProducer {
	return NewValidationProducer(
		executors.CommandTemplate{Command: command, Args: args},
		executors.NewExecRunner(0, nil),
		"report.html", "test", nil,
	)
}

func TestValidationProducer_Produce(t *testing.T) {
	ctx := context.Background()

	t.Run("should send the tool report even on a non-zero exit", func(t *testing.T) {
		job := stagedJob(t, map[string]string{"1F600.svg": smileySVG}, "1F600.svg")
		tool := script(t, `echo "<html>mocha: 2 failing</html>" > "$1/$2.html"; exit 2`)

		artifact, err := validationProducer(tool, "{report_dir}", "{report_stem}").Produce(ctx, job, "")
		require.NoError(t, err)

		assert.False(t, artifact.Fallback)
		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		assert.Equal(t, "<html>mocha: 2 failing</html>\n", string(data))
	})

	t.Run("should pass the workspace and metadata to the tool", func(t *testing.T) {
		job := stagedJob(t, map[string]string{"1F600.svg": smileySVG}, "1F600.svg")
		tool := script(t, `ls "$1" > "$3"; cat "$2" >> "$3"`)
		metadata := filepath.Join(job.Workspace.Dir(), "metadata.json")
		require.NoError(t, os.WriteFile(metadata, []byte(`[{"hexcode":"1F600"}]`), 0644))

		artifact, err := validationProducer(tool, "{workspace}", "{metadata}", "{report_dir}/{report_name}").Produce(ctx, job, metadata)
		require.NoError(t, err)

		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "1F600.svg")
		assert.Contains(t, string(data), `"hexcode":"1F600"`)
	})

	t.Run("should write a fallback report when the tool crashes", func(t *testing.T) {
		tool := script(t, `echo "TypeError: <boom>" >&2; exit 1`)

		for i := 0; i < 3; i++ {
			job := stagedJob(t, map[string]string{"1F600.svg": smileySVG}, "1F600.svg")

			artifact, err := validationProducer(tool).Produce(ctx, job, "")
			require.NoError(t, err)
			assert.True(t, artifact.Fallback)

			data, err := os.ReadFile(artifact.Path)
			require.NoError(t, err)
			page := string(data)
			assert.Contains(t, page, "validation tool failed")
			assert.Contains(t, page, "TypeError: &lt;boom&gt;")
			assert.Contains(t, page, "exit code 1")
			assert.Contains(t, page, "(empty)", "stdout was empty")
			assert.Contains(t, page, job.Workspace.Dir())
			assert.NotContains(t, page, "(truncated)")
		}
	})

	t.Run("should mark truncated output in the fallback report", func(t *testing.T) {
		job := stagedJob(t, map[string]string{"1F600.svg": smileySVG}, "1F600.svg")

		runner := &mockToolRunner{}
		runner.On("Run", mock.Anything, mock.Anything).Return(&executors.Result{
			ExitCode:        1,
			Stdout:          []byte("1 passing"),
			Stderr:          []byte("AssertionError: expected"),
			StderrTruncated: true,
		}).Once()

		p := NewValidationProducer(executors.CommandTemplate{Command: "mocha"}, runner, "report.html", "", nil)
		artifact, err := p.Produce(ctx, job, "")
		require.NoError(t, err)
		assert.True(t, artifact.Fallback)

		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		page := string(data)
		assert.Contains(t, page, `<h2>stderr <span class="muted">(truncated)</span></h2>`)
		assert.Contains(t, page, `<h2>stdout</h2>`)
		assert.Contains(t, page, "AssertionError: expected")
		runner.AssertExpectations(t)
	})

	t.Run("should write a fallback report when the tool cannot start", func(t *testing.T) {
		job := stagedJob(t, map[string]string{"1F600.svg": smileySVG}, "1F600.svg")

		artifact, err := validationProducer(filepath.Join(t.TempDir(), "missing")).Produce(ctx, job, "")
		require.NoError(t, err)
		assert.True(t, artifact.Fallback)
	})

	t.Run("should hand the runner a typed invocation", func(t *testing.T) {
		job := stagedJob(t, map[string]string{"1F600.svg": smileySVG}, "1F600.svg")
		reportPath := filepath.Join(job.Workspace.Dir(), "report.html")

		runner := &mockToolRunner{}
		runner.On("Run", mock.Anything, mock.MatchedBy(func(inv executors.Invocation) bool {
			return inv.Name == "mocha" && inv.Artifact == reportPath &&
				assert.ObjectsAreEqual([]string{"--data", "/meta.json", "--src", job.Workspace.Dir()}, inv.Args)
		})).Run(func(args mock.Arguments) {
			_ = os.WriteFile(reportPath, []byte("<html/>"), 0644)
		}).Return(&executors.Result{ExitCode: 0, ArtifactPresent: true})

		p := NewValidationProducer(
			executors.CommandTemplate{Command: "mocha", Args: []string{"--data", "{metadata}", "--src", "{workspace}"}},
			runner, "report.html", "", nil,
		)
		artifact, err := p.Produce(ctx, job, "/meta.json")
		require.NoError(t, err)
		assert.Equal(t, reportPath, artifact.Path)
		runner.AssertExpectations(t)
	})
}

func TestVisualProducer_Produce(t *testing.T) {
	ctx := context.Background()

	t.Run("should render every file in order with escaped titles", func(t *testing.T) {
		job := stagedJob(t, map[string]string{
			"a&b.svg":        `<svg id="first"/>`,
			`quote"'<x>.svg`: `<svg id="second"/>`,
		}, "a&b.svg", `quote"'<x>.svg`)

		artifact, err := NewVisualProducer("", "report.html").Produce(ctx, job, "")
		require.NoError(t, err)
		assert.False(t, artifact.Fallback)

		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		page := string(data)

		first := `<div class="emoji"><div class="title">a&amp;b.svg</div><div><svg id="first"/></div></div>`
		second := `<div class="emoji"><div class="title">quote&#34;&#39;&lt;x&gt;.svg</div><div><svg id="second"/></div></div>`
		assert.Contains(t, page, first+second)
		assert.NotContains(t, page, ResultPlaceholder)
	})

	t.Run("should use a configured template and replace only the first placeholder", func(t *testing.T) {
		tmpl := filepath.Join(t.TempDir(), "template.html")
		require.NoError(t, os.WriteFile(tmpl, []byte("<main>{{{result}}}</main>{{{result}}}"), 0644))
		job := stagedJob(t, map[string]string{"a.svg": "<svg/>"}, "a.svg")

		artifact, err := NewVisualProducer(tmpl, "report.html").Produce(ctx, job, "")
		require.NoError(t, err)

		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		assert.Equal(t,
			`<main><div class="emoji"><div class="title">a.svg</div><div><svg/></div></div></main>{{{result}}}`,
			string(data))
	})

	t.Run("should embed previews when present", func(t *testing.T) {
		job := stagedJob(t, map[string]string{"a.svg": "<svg/>"}, "a.svg")
		job.Previews = []string{"data:image/png;base64,AAAA"}

		artifact, err := NewVisualProducer("", "report.html").Produce(ctx, job, "")
		require.NoError(t, err)

		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `<img src="data:image/png;base64,AAAA" alt="a.svg preview">`)
	})

	t.Run("should anchor each icon by its content checksum", func(t *testing.T) {
		src := newTestSource(t, svgPart("1F600.svg", smileySVG), svgPart("copy.svg", smileySVG))
		job := newJob(t)
		require.NoError(t, NewStager(Constraints{}).Stage(ctx, job, src))

		artifact, err := NewVisualProducer("", "report.html").Produce(ctx, job, "")
		require.NoError(t, err)

		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)

		sum := strconv.FormatUint(xxhash.Sum64String(smileySVG), 16)
		assert.Equal(t, sum, job.Files[0].Checksum)
		assert.Equal(t, 2, strings.Count(string(data), `<div class="emoji" data-checksum="`+sum+`">`))
	})

	t.Run("should fail with a workspace error when the template is missing", func(t *testing.T) {
		job := stagedJob(t, map[string]string{"a.svg": "<svg/>"}, "a.svg")

		_, err := NewVisualProducer(filepath.Join(t.TempDir(), "missing.html"), "report.html").Produce(ctx, job, "")
		assert.ErrorIs(t, err, ErrWorkspaceIO)

		_, statErr := os.Stat(filepath.Join(job.Workspace.Dir(), "report.html"))
		assert.True(t, os.IsNotExist(statErr))
	})
}
