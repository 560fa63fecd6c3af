package preview

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const square = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 72 72">
  <rect x="8" y="8" width="56" height="56" fill="#D22F27"/>
</svg>`

func TestRenderer_Render(t *testing.T) {
	t.Run("should produce an image of the requested size", func(t *testing.T) {
		img, err := New(32).Render([]byte(square))
		require.NoError(t, err)

		assert.Equal(t, 32, img.Bounds().Dx())
		assert.Equal(t, 32, img.Bounds().Dy())

		// the centre of the square is painted
		_, _, _, a := img.At(16, 16).RGBA()
		assert.NotZero(t, a)
	})

	t.Run("should reject a zero size", func(t *testing.T) {
		_, err := New(0).Render([]byte(square))
		assert.Error(t, err)
	})

	t.Run("should fail on malformed svg", func(t *testing.T) {
		_, err := New(16).Render([]byte(`<svg><rect`))
		assert.Error(t, err)
	})
}

func TestRenderer_DataURI(t *testing.T) {
	r := New(16)

	uri, err := r.DataURI([]byte(square))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	data, err := r.RenderPNG([]byte(square))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}
