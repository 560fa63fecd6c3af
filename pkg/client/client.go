package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// Client uploads icon batches to a running icon tester
type Client struct {
	baseURL    string
	httpClient *http.Client
	field      string
}

// Report is the service's answer to one batch
type Report struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the service produced a report
func (r *Report) OK() bool {
	return r.StatusCode == http.StatusOK
}

// New creates a new icon tester client. Validation runs can be slow, so the
// timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		field: pipeline.DefaultUploadField,
	}
}

// NewWithHTTPClient creates a new client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	c := New(baseURL)
	c.httpClient = httpClient
	return c
}

// WithField sets the multipart field name used for the files
func (c *Client) WithField(field string) *Client {
	c.field = field
	return c
}

// Submit uploads the files at paths to the route of job and returns the
// response. A non-200 answer is not an error; check Report.OK.
func (c *Client) Submit(ctx context.Context, job string, paths []string) (*Report, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	// Stream the files so large batches are never held in memory
	go func() {
		pw.CloseWithError(c.writeParts(mw, paths))
	}()

	url := fmt.Sprintf("%s/%s", c.baseURL, job)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Report{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) writeParts(mw *multipart.Writer, paths []string) error {
	for _, path := range paths {
		if err := c.writePart(mw, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (c *Client) writePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreatePart(partHeader(c.field, filepath.Base(path)))
	if err != nil {
		return fmt.Errorf("failed to create part for %s: %w", path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to send %s: %w", path, err)
	}
	return nil
}

// partHeader labels the part by its file extension so the service can reject
// files that are not icons
func partHeader(field, name string) textproto.MIMEHeader {
	escape := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escape.Replace(field), escape.Replace(name))},
		"Content-Type":        {contentType},
	}
}
