package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ImageLoader decodes any registered image format into tightly packed RGBA8.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	flip := false
	if p, ok := params.(*metadata.ImageResourceParams); ok && p != nil {
		flip = p.FlipY
	}

	f, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open image `%s`: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		err = fmt.Errorf("failed to decode image `%s`: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("decoded %s image `%s`", format, path)

	data := ToRGBA(src, flip)
	return &metadata.Resource{
		Name:     "image",
		FullPath: path,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (il *ImageLoader) Unload(res *metadata.Resource) error {
	if res != nil {
		res.Data = nil
		res.DataSize = 0
	}
	return nil
}

// ToRGBA redraws src into an RGBA8 buffer with its origin at (0,0),
// optionally flipping rows so the first row is the bottom of the image.
func ToRGBA(src image.Image, flipY bool) *metadata.ImageResourceData {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	if flipY {
		stride := dst.Stride
		row := make([]uint8, stride)
		for top, bottom := 0, b.Dy()-1; top < bottom; top, bottom = top+1, bottom-1 {
			t := dst.Pix[top*stride : (top+1)*stride]
			btm := dst.Pix[bottom*stride : (bottom+1)*stride]
			copy(row, t)
			copy(t, btm)
			copy(btm, row)
		}
	}

	return &metadata.ImageResourceData{
		ChannelCount: 4,
		Width:        uint32(b.Dx()),
		Height:       uint32(b.Dy()),
		Pixels:       dst.Pix,
	}
}
