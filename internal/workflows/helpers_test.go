package workflows

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-icon-tester/internal/catalog"
	"github.com/tendant/simple-icon-tester/internal/logging"
	"github.com/tendant/simple-icon-tester/internal/storage"
)

const smileySVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 72 72"><circle cx="36" cy="36" r="23" fill="#FCEA2B"/></svg>`

type part struct {
	field     string
	name      string
	mediaType string
	content   string
}

func svgPart(name, content string) part {
	return part{field: "svgFiles", name: name, mediaType: "image/svg+xml", content: content}
}

// multipartBody encodes parts as a multipart/form-data body
func multipartBody(t *testing.T, parts ...part) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.name == "" {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"`)
		} else {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		}
		if p.mediaType != "" {
			h.Set("Content-Type", p.mediaType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(w, p.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newTestSource(t *testing.T, parts ...part) UploadSource {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	src, err := NewMultipartSource(body, ct, "svgFiles")
	require.NoError(t, err)
	return src
}

func newJob(t *testing.T) *Job {
	t.Helper()
	ws, err := storage.CreateWorkspace(t.TempDir(), "openmoji-test")
	require.NoError(t, err)
	return &Job{
		ID:        "openmoji-test",
		Name:      "test-svg",
		Workspace: ws,
		State:     StateAllocated,
		Log:       logging.Discard(),
	}
}

// stagedJob returns a job whose workspace already holds the named files
func stagedJob(t *testing.T, files map[string]string, order ...string) *Job {
	t.Helper()
	job := newJob(t)
	for _, name := range order {
		path := filepath.Join(job.Workspace.Dir(), name)
		require.NoError(t, os.WriteFile(path, []byte(files[name]), 0644))
		job.Files = append(job.Files, UploadedFile{OriginalName: name, StoredPath: path, SizeBytes: int64(len(files[name]))})
	}
	job.State = StateStaged
	return job
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]map[string]any{
		{"hexcode": "1F600", "emoji": "😀", "group": "smileys-emotion", "subgroups": "face-smiling", "annotation": "grinning face"},
		{"hexcode": "1F98A", "emoji": "🦊", "group": "animals-nature", "subgroups": "animal-mammal", "annotation": "fox"},
	}, catalog.Options{})
	require.NoError(t, err)
	return c
}
