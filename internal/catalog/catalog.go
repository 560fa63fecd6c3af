// Package catalog holds the process-wide reference data that maps icon
// identifiers to their display glyph and attributes. A Catalog is built once at
// startup and never mutated, so it is safe for concurrent reads.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Default attribute keys of the catalog document
const (
	DefaultIdentifierKey = "hexcode"
	DefaultGlyphKey      = "emoji"
)

// Entry is one catalog record
type Entry struct {
	Identifier   string
	DisplayGlyph string
	Attributes   map[string]any
}

// Options controls how documents are interpreted
type Options struct {
	// IdentifierKey names the attribute holding the unique identifier
	IdentifierKey string
	// GlyphKey names the attribute holding the display glyph
	GlyphKey string
}

// WithDefaults fills in default values for optional fields
func (o *Options) WithDefaults() {
	if o.IdentifierKey == "" {
		o.IdentifierKey = DefaultIdentifierKey
	}
	if o.GlyphKey == "" {
		o.GlyphKey = DefaultGlyphKey
	}
}

// Catalog is an immutable identifier index
type Catalog struct {
	opts    Options
	entries map[string]Entry
	order   []string
}

// Load reads a catalog document from path. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func Load(path string, opts Options) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var records []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
		}
	}

	return New(records, opts)
}

// New builds a catalog from decoded records. Records are validated against the
// catalog schema first. When an identifier repeats, the first record wins.
func New(records []map[string]any, opts Options) (*Catalog, error) {
	opts.WithDefaults()

	if records == nil {
		records = []map[string]any{}
	}
	if err := validate(records, opts); err != nil {
		return nil, err
	}

	c := &Catalog{
		opts:    opts,
		entries: make(map[string]Entry, len(records)),
		order:   make([]string, 0, len(records)),
	}
	for _, rec := range records {
		id := Normalize(rec[opts.IdentifierKey].(string))
		if _, dup := c.entries[id]; dup {
			continue
		}
		glyph, _ := rec[opts.GlyphKey].(string)
		c.entries[id] = Entry{
			Identifier:   id,
			DisplayGlyph: glyph,
			Attributes:   cloneMap(rec),
		}
		c.order = append(c.order, id)
	}

	return c, nil
}

// Lookup finds an entry by exact identifier. The returned attributes are a copy.
func (c *Catalog) Lookup(identifier string) (Entry, bool) {
	e, ok := c.entries[Normalize(identifier)]
	if !ok {
		return Entry{}, false
	}
	e.Attributes = cloneMap(e.Attributes)
	return e, true
}

// Len returns the number of distinct identifiers
func (c *Catalog) Len() int {
	return len(c.order)
}

// IdentifierKey returns the attribute key holding identifiers
func (c *Catalog) IdentifierKey() string {
	return c.opts.IdentifierKey
}

// GlyphKey returns the attribute key holding display glyphs
func (c *Catalog) GlyphKey() string {
	return c.opts.GlyphKey
}

// Normalize puts an identifier in Unicode NFC form
func Normalize(identifier string) string {
	return norm.NFC.String(identifier)
}

func validate(records []map[string]any, opts Options) error {
	schema := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []string{opts.IdentifierKey},
			"properties": map[string]any{
				opts.IdentifierKey: map[string]any{"type": "string", "minLength": 1},
				opts.GlyphKey:      map[string]any{"type": "string"},
			},
		},
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(records),
	)
	if err != nil {
		return fmt.Errorf("failed to validate catalog: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid catalog: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
