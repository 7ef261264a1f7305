package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoRows is 2x2: top row red, bottom row blue.
func twoRows() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
		img.Set(x, 1, color.NRGBA{B: 255, A: 255})
	}
	return img
}

func TestToRGBA(t *testing.T) {
	data := ToRGBA(twoRows(), false)
	assert.Equal(t, uint32(2), data.Width)
	assert.Equal(t, uint32(2), data.Height)
	assert.Equal(t, uint8(4), data.ChannelCount)
	require.Len(t, data.Pixels, 16)
	assert.Equal(t, []uint8{255, 0, 0, 255}, data.Pixels[0:4])
	assert.Equal(t, []uint8{0, 0, 255, 255}, data.Pixels[8:12])
}

func TestToRGBAFlip(t *testing.T) {
	data := ToRGBA(twoRows(), true)
	assert.Equal(t, []uint8{0, 0, 255, 255}, data.Pixels[0:4])
	assert.Equal(t, []uint8{255, 0, 0, 255}, data.Pixels[12:16])
}

func TestToRGBANonZeroOrigin(t *testing.T) {
	sub := twoRows().SubImage(image.Rect(0, 1, 2, 2))
	data := ToRGBA(sub, false)
	assert.Equal(t, uint32(1), data.Height)
	assert.Equal(t, []uint8{0, 0, 255, 255}, data.Pixels[0:4])
}

func TestImageLoaderLoadPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, twoRows()))
	require.NoError(t, f.Close())

	il := &ImageLoader{}
	res, err := il.Load(path, &metadata.ImageResourceParams{FlipY: true})
	require.NoError(t, err)
	data := res.Data.(*metadata.ImageResourceData)
	assert.Equal(t, uint64(16), res.DataSize)
	assert.Equal(t, []uint8{0, 0, 255, 255}, data.Pixels[0:4])

	_, err = il.Load(filepath.Join(t.TempDir(), "nope.png"), nil)
	assert.Error(t, err)
}

func TestImageLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := (&ImageLoader{}).Load(path, nil)
	assert.Error(t, err)
}
