package workflows

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workspaceEntries(t *testing.T, job *Job) []string {
	t.Helper()
	entries, err := os.ReadDir(job.Workspace.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStager_Stage(t *testing.T) {
	ctx := context.Background()

	t.Run("should stage files in upload order", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t,
			svgPart("1F600.svg", smileySVG),
			part{field: "comment", content: "ignored"},
			svgPart("1F98A.svg", "<svg/>"),
		)

		require.NoError(t, NewStager(Constraints{}).Stage(ctx, job, src))

		require.Len(t, job.Files, 2)
		assert.Equal(t, "1F600.svg", job.Files[0].OriginalName)
		assert.Equal(t, "1F98A.svg", job.Files[1].OriginalName)
		assert.Equal(t, int64(len(smileySVG)), job.Files[0].SizeBytes)
		assert.Equal(t, "image/svg+xml", job.Files[0].DeclaredMediaType)
		assert.NotEmpty(t, job.Files[0].Checksum)

		data, err := os.ReadFile(job.Files[0].StoredPath)
		require.NoError(t, err)
		assert.Equal(t, smileySVG, string(data))

		assert.ElementsMatch(t, []string{"1F600.svg", "1F98A.svg"}, workspaceEntries(t, job))
	})

	t.Run("should reject an empty batch", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t, part{field: "comment", content: "no files"})

		err := NewStager(Constraints{}).Stage(ctx, job, src)
		assert.ErrorIs(t, err, ErrValidationInput)
		assert.Empty(t, job.Files)
		assert.Empty(t, workspaceEntries(t, job))
	})

	t.Run("should reject a file above the size ceiling", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t,
			svgPart("small.svg", "<svg/>"),
			svgPart("big.svg", strings.Repeat("x", 101)),
		)

		err := NewStager(Constraints{MaxFileBytes: 100}).Stage(ctx, job, src)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
		assert.Empty(t, workspaceEntries(t, job), "nothing is promoted from a rejected batch")
	})

	t.Run("should accept a file exactly at the ceiling", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t, svgPart("edge.svg", strings.Repeat("x", 100)))

		require.NoError(t, NewStager(Constraints{MaxFileBytes: 100}).Stage(ctx, job, src))
		assert.Len(t, job.Files, 1)
	})

	t.Run("should reject too many files", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t, svgPart("a.svg", "a"), svgPart("b.svg", "b"), svgPart("c.svg", "c"))

		err := NewStager(Constraints{MaxFiles: 2}).Stage(ctx, job, src)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("should reject files of the wrong type", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t, part{field: "svgFiles", name: "notes.txt", mediaType: "text/plain", content: "hi"})

		err := NewStager(Constraints{}).Stage(ctx, job, src)
		assert.ErrorIs(t, err, ErrValidationInput)
	})

	t.Run("should accept by extension or by media type", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t,
			part{field: "svgFiles", name: "UPPER.SVG", mediaType: "application/octet-stream", content: "<svg/>"},
			part{field: "svgFiles", name: "icon", mediaType: "image/svg+xml; charset=utf-8", content: "<svg/>"},
		)

		require.NoError(t, NewStager(Constraints{}).Stage(ctx, job, src))
		assert.Len(t, job.Files, 2)
	})

	t.Run("should reject reserved and hidden names", func(t *testing.T) {
		for _, name := range []string{"metadata.json", "REPORT.HTML", ".incoming", ".hidden.svg"} {
			job := newJob(t)
			src := newTestSource(t, part{field: "svgFiles", name: name, mediaType: "image/svg+xml", content: "<svg/>"})

			err := NewStager(Constraints{Extensions: []string{".svg", ".json", ".html"}}).Stage(ctx, job, src)
			assert.ErrorIs(t, err, ErrValidationInput, name)
		}
	})

	t.Run("should keep both entries for a repeated name with the last content on disk", func(t *testing.T) {
		job := newJob(t)
		src := newTestSource(t, svgPart("dup.svg", "first"), svgPart("dup.svg", "second"))

		require.NoError(t, NewStager(Constraints{}).Stage(ctx, job, src))

		require.Len(t, job.Files, 2)
		assert.Equal(t, job.Files[0].StoredPath, job.Files[1].StoredPath)
		data, err := os.ReadFile(job.Files[0].StoredPath)
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))
	})

	t.Run("should map a body above the request ceiling to payload too large", func(t *testing.T) {
		job := newJob(t)
		body, ct := multipartBody(t, svgPart("a.svg", strings.Repeat("x", 4096)))
		limited := http.MaxBytesReader(httptest.NewRecorder(), io.NopCloser(body), 512)

		src, err := NewMultipartSource(limited, ct, "svgFiles")
		require.NoError(t, err)

		err = NewStager(Constraints{}).Stage(ctx, job, src)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("should stage local files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "1F600.svg")
		require.NoError(t, os.WriteFile(path, []byte(smileySVG), 0644))

		job := newJob(t)
		require.NoError(t, NewStager(Constraints{}).Stage(ctx, job, NewFileSource(path)))
		require.Len(t, job.Files, 1)
		assert.Equal(t, "1F600.svg", job.Files[0].OriginalName)
	})
}

func TestNewMultipartSource(t *testing.T) {
	t.Run("should reject bodies that are not multipart", func(t *testing.T) {
		_, err := NewMultipartSource(strings.NewReader("{}"), "application/json", "svgFiles")
		assert.ErrorIs(t, err, ErrValidationInput)
	})

	t.Run("should reject a missing boundary", func(t *testing.T) {
		_, err := NewMultipartSource(strings.NewReader(""), "multipart/form-data", "svgFiles")
		assert.ErrorIs(t, err, ErrValidationInput)
	})
}

func TestConstraints_MaxBodyBytes(t *testing.T) {
	c := Constraints{MaxFiles: 2, MaxFileBytes: 100}
	assert.Equal(t, int64(200+1<<20), c.MaxBodyBytes())
}
