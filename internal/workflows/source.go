package workflows

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// Upload is one file offered to the stager. Body is closed by the consumer.
type Upload struct {
	Name      string
	MediaType string
	Body      io.ReadCloser
}

// UploadSource yields uploads one at a time and returns io.EOF when done
type UploadSource interface {
	Next() (*Upload, error)
}

// multipartSource streams file parts of one form field
type multipartSource struct {
	mr    *multipart.Reader
	field string
}

// NewMultipartSource reads the file parts named field from a multipart/form-data
// body. Parts are streamed, never buffered as a whole form.
func NewMultipartSource(body io.Reader, contentType, field string) (UploadSource, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return nil, fmt.Errorf("%w: request is not multipart/form-data", ErrValidationInput)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart boundary missing", ErrValidationInput)
	}
	return &multipartSource{mr: multipart.NewReader(body, boundary), field: field}, nil
}

// Next implements UploadSource
func (s *multipartSource) Next() (*Upload, error) {
	for {
		part, err := s.mr.NextPart()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, bodyError(err)
		}

		if part.FormName() != s.field || part.FileName() == "" {
			part.Close()
			continue
		}

		return &Upload{
			Name:      part.FileName(),
			MediaType: part.Header.Get("Content-Type"),
			Body:      part,
		}, nil
	}
}

// bodyError maps a failure reading the request body to a sentinel error
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body exceeds %d bytes", ErrPayloadTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: malformed multipart body: %v", ErrValidationInput, err)
}

// fileSource offers local files
type fileSource struct {
	paths []string
	next  int
}

// NewFileSource offers the files at paths, in order
func NewFileSource(paths ...string) UploadSource {
	return &fileSource{paths: paths}
}

// Next implements UploadSource
func (s *fileSource) Next() (*Upload, error) {
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationInput, err)
	}

	name := filepath.Base(path)
	return &Upload{
		Name:      name,
		MediaType: mime.TypeByExtension(filepath.Ext(name)),
		Body:      f,
	}, nil
}
