package workflows

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-icon-tester/internal/catalog"
	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// PlaceholderGlyph is the display glyph of identifiers missing from the catalog
const PlaceholderGlyph = "�"

// placeholderBlank are the attributes written empty for unresolved records
var placeholderBlank = []string{"group", "subgroups", "skintone"}

// MetadataRecord describes one staged file
type MetadataRecord struct {
	Identifier string
	Resolved   bool
	Glyph      string
	Attributes map[string]any
}

// Resolver joins staged files with the catalog
type Resolver struct {
	catalog         *catalog.Catalog
	documentName    string
	blankAttributes []string
}

// NewResolver creates a resolver writing documentName into job workspaces.
// Attributes named in blank are written as empty strings for resolved records.
func NewResolver(c *catalog.Catalog, documentName string, blank []string) *Resolver {
	if documentName == "" {
		documentName = pipeline.DefaultMetadataName
	}
	return &Resolver{catalog: c, documentName: documentName, blankAttributes: blank}
}

// Resolve returns one record per staged file, in file order
func (r *Resolver) Resolve(job *Job) []MetadataRecord {
	records := make([]MetadataRecord, len(job.Files))
	misses := 0
	for i, f := range job.Files {
		id := Identifier(f.StoredPath)

		entry, ok := r.catalog.Lookup(id)
		if !ok {
			misses++
			records[i] = MetadataRecord{
				Identifier: id,
				Glyph:      PlaceholderGlyph,
				Attributes: map[string]any{},
			}
			continue
		}

		records[i] = MetadataRecord{
			Identifier: entry.Identifier,
			Resolved:   true,
			Glyph:      entry.DisplayGlyph,
			Attributes: entry.Attributes,
		}
	}

	job.logger().Info("Metadata resolved", "records", len(records), "unresolved", misses)
	return records
}

// Document renders records as the flattened objects of the metadata document
func (r *Resolver) Document(records []MetadataRecord) []map[string]any {
	idKey, glyphKey := r.catalog.IdentifierKey(), r.catalog.GlyphKey()

	doc := make([]map[string]any, len(records))
	for i, rec := range records {
		obj := make(map[string]any, len(rec.Attributes)+3)
		for k, v := range rec.Attributes {
			obj[k] = v
		}
		blank := r.blankAttributes
		if !rec.Resolved {
			blank = placeholderBlank
		}
		for _, k := range blank {
			obj[k] = ""
		}
		obj[idKey] = rec.Identifier
		obj[glyphKey] = rec.Glyph
		obj["resolved"] = rec.Resolved
		doc[i] = obj
	}
	return doc
}

// WriteDocument writes the metadata document into the job workspace and
// returns its path
func (r *Resolver) WriteDocument(job *Job, records []MetadataRecord) (string, error) {
	data, err := json.MarshalIndent(r.Document(records), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := job.Workspace.WriteFile(r.documentName, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}
	path, err := job.Workspace.Path(r.documentName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWorkspaceIO, err)
	}
	return path, nil
}

// Identifier derives the catalog identifier from a stored file name
func Identifier(storedPath string) string {
	base := filepath.Base(storedPath)
	return catalog.Normalize(strings.TrimSuffix(base, filepath.Ext(base)))
}
