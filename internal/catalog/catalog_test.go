package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonCatalog = `[
  {"emoji": "😀", "hexcode": "1F600", "group": "smileys-emotion", "subgroups": "face-smiling", "skintone": ""},
  {"emoji": "🦊", "hexcode": "1F98A", "group": "animals-nature", "subgroups": "animal-mammal", "skintone": ""},
  {"emoji": "X", "hexcode": "1F600", "group": "duplicate"}
]`

const yamlCatalog = `
- emoji: "😀"
  hexcode: "1F600"
  group: smileys-emotion
- emoji: "🦊"
  hexcode: "1F98A"
  group: animals-nature
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should load a JSON catalog keyed by hexcode", func(t *testing.T) {
		c, err := Load(writeFile(t, "catalog.json", jsonCatalog), Options{})
		require.NoError(t, err)

		assert.Equal(t, 2, c.Len())

		entry, ok := c.Lookup("1F600")
		require.True(t, ok)
		assert.Equal(t, "😀", entry.DisplayGlyph)
		assert.Equal(t, "smileys-emotion", entry.Attributes["group"])
	})

	t.Run("should keep the first record when identifiers repeat", func(t *testing.T) {
		c, err := Load(writeFile(t, "catalog.json", jsonCatalog), Options{})
		require.NoError(t, err)

		entry, ok := c.Lookup("1F600")
		require.True(t, ok)
		assert.NotEqual(t, "duplicate", entry.Attributes["group"])
	})

	t.Run("should load a YAML catalog", func(t *testing.T) {
		c, err := Load(writeFile(t, "catalog.yaml", yamlCatalog), Options{})
		require.NoError(t, err)

		entry, ok := c.Lookup("1F98A")
		require.True(t, ok)
		assert.Equal(t, "🦊", entry.DisplayGlyph)
	})

	t.Run("should honour custom keys", func(t *testing.T) {
		doc := `[{"id": "home", "glyph": "H", "tags": ["ui"]}]`
		c, err := Load(writeFile(t, "icons.json", doc), Options{IdentifierKey: "id", GlyphKey: "glyph"})
		require.NoError(t, err)

		entry, ok := c.Lookup("home")
		require.True(t, ok)
		assert.Equal(t, "H", entry.DisplayGlyph)
		assert.Equal(t, "id", c.IdentifierKey())
		assert.Equal(t, "glyph", c.GlyphKey())
	})

	t.Run("should reject records without an identifier", func(t *testing.T) {
		_, err := Load(writeFile(t, "catalog.json", `[{"emoji": "😀"}]`), Options{})
		assert.ErrorContains(t, err, "invalid catalog")
	})

	t.Run("should reject a document that is not an array", func(t *testing.T) {
		_, err := Load(writeFile(t, "catalog.json", `{"hexcode": "1F600"}`), Options{})
		assert.Error(t, err)
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"), Options{})
		assert.Error(t, err)
	})
}

func TestCatalog_Lookup(t *testing.T) {
	c, err := New([]map[string]any{
		{"hexcode": "1F600", "emoji": "😀", "group": "smileys-emotion"},
	}, Options{})
	require.NoError(t, err)

	t.Run("should miss on unknown identifiers", func(t *testing.T) {
		_, ok := c.Lookup("FFFF")
		assert.False(t, ok)
	})

	t.Run("should match exactly", func(t *testing.T) {
		_, ok := c.Lookup("1f600")
		assert.False(t, ok)
	})

	t.Run("should hand out copies of the attributes", func(t *testing.T) {
		entry, ok := c.Lookup("1F600")
		require.True(t, ok)
		entry.Attributes["group"] = "mutated"

		again, _ := c.Lookup("1F600")
		assert.Equal(t, "smileys-emotion", again.Attributes["group"])
	})
}
