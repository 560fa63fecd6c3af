package workflows

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// incomingDir holds spooled uploads until the whole batch is accepted
const incomingDir = ".incoming"

// Constraints bound what a batch may contain
type Constraints struct {
	MaxFileBytes int64
	MaxFiles     int
	// Extensions are matched case-insensitively, including the dot
	Extensions []string
	// MediaTypes are matched against the declared part type
	MediaTypes []string
	// Reserved names may not be uploaded (the metadata and report documents)
	Reserved []string
}

// WithDefaults fills in default values for unset fields
func (c *Constraints) WithDefaults() {
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 2 * 1024 * 1024
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 4000
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".svg"}
	}
	if len(c.MediaTypes) == 0 {
		c.MediaTypes = []string{pipeline.SVGMediaType}
	}
	if len(c.Reserved) == 0 {
		c.Reserved = []string{pipeline.DefaultMetadataName, pipeline.DefaultReportName}
	}
}

// MaxBodyBytes is the ceiling for a whole request body: every file at its
// limit plus room for multipart framing
func (c Constraints) MaxBodyBytes() int64 {
	return int64(c.MaxFiles)*c.MaxFileBytes + 1<<20
}

// Stager validates uploads and moves them into the job workspace
type Stager struct {
	constraints Constraints
}

// NewStager creates a stager enforcing c
func NewStager(c Constraints) *Stager {
	c.WithDefaults()
	return &Stager{constraints: c}
}

// Constraints returns the enforced constraints
func (s *Stager) Constraints() Constraints {
	return s.constraints
}

type spooled struct {
	file  UploadedFile
	spool string
}

// Stage streams every upload from src into the workspace. Nothing is promoted
// into the workspace unless the whole batch passes validation.
func (s *Stager) Stage(ctx context.Context, job *Job, src UploadSource) error {
	incoming, err := job.Workspace.Path(incomingDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}
	if err := os.Mkdir(incoming, 0755); err != nil {
		return fmt.Errorf("%w: failed to create spool dir: %v", ErrWorkspaceIO, err)
	}
	defer os.RemoveAll(incoming)

	var batch []spooled
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		upload, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if len(batch) >= s.constraints.MaxFiles {
			upload.Body.Close()
			return fmt.Errorf("%w: more than %d files", ErrPayloadTooLarge, s.constraints.MaxFiles)
		}

		spool := filepath.Join(incoming, strconv.Itoa(len(batch)))
		file, err := s.spool(upload, spool)
		upload.Body.Close()
		if err != nil {
			return err
		}
		batch = append(batch, spooled{file: file, spool: spool})
	}

	if len(batch) == 0 {
		return ErrNoFiles
	}

	seen := make(map[string]string, len(batch))
	files := make([]UploadedFile, 0, len(batch))
	for _, sp := range batch {
		if first, dup := seen[sp.file.Checksum]; dup {
			job.logger().Debug("Duplicate content in batch", "file", sp.file.OriginalName, "same_as", first)
		} else {
			seen[sp.file.Checksum] = sp.file.OriginalName
		}

		dst, err := job.Workspace.Path(sp.file.OriginalName)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidationInput, err)
		}
		// a repeated name overwrites the earlier file on disk
		if err := os.Rename(sp.spool, dst); err != nil {
			return fmt.Errorf("%w: failed to store %s: %v", ErrWorkspaceIO, sp.file.OriginalName, err)
		}
		sp.file.StoredPath = dst
		files = append(files, sp.file)
	}

	job.Files = files
	job.logger().Info("Files staged", "count", len(files))
	return nil
}

// spool validates one upload and copies its body to path
func (s *Stager) spool(upload *Upload, path string) (UploadedFile, error) {
	name := upload.Name
	if err := s.checkName(name); err != nil {
		return UploadedFile{}, err
	}
	if !s.acceptedType(name, upload.MediaType) {
		return UploadedFile{}, fmt.Errorf("%w: %s is not an accepted file type", ErrValidationInput, name)
	}

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}
	defer out.Close()

	hash := xxhash.New()
	limit := s.constraints.MaxFileBytes
	n, err := io.Copy(io.MultiWriter(out, hash), io.LimitReader(upload.Body, limit+1))
	if err != nil {
		return UploadedFile{}, bodyError(err)
	}
	if n > limit {
		return UploadedFile{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrPayloadTooLarge, name, limit)
	}
	if err := out.Close(); err != nil {
		return UploadedFile{}, fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}

	return UploadedFile{
		OriginalName:      name,
		SizeBytes:         n,
		DeclaredMediaType: upload.MediaType,
		Checksum:          strconv.FormatUint(hash.Sum64(), 16),
	}, nil
}

func (s *Stager) checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: unsafe file name %q", ErrValidationInput, name)
	}
	for _, reserved := range s.constraints.Reserved {
		if strings.EqualFold(name, reserved) {
			return fmt.Errorf("%w: file name %q is reserved", ErrValidationInput, name)
		}
	}
	return nil
}

func (s *Stager) acceptedType(name, declared string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, accepted := range s.constraints.Extensions {
		if ext == strings.ToLower(accepted) {
			return true
		}
	}
	if declared == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return false
	}
	for _, accepted := range s.constraints.MediaTypes {
		if strings.EqualFold(mediaType, accepted) {
			return true
		}
	}
	return false
}
