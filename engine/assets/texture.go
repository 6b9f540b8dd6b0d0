package assets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// TextureData holds tightly packed RGBA8 pixels of mip 0.
type TextureData struct {
	Name   string
	Path   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// LoadTexture decodes a PNG, JPEG, BMP, TIFF or WebP file into RGBA8.
func LoadTexture(path string) (*TextureData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open texture %s", path)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode texture %s", path), core.ErrUnsupported)
	}
	core.LogDebug("decoded %s texture %s (%dx%d)", format, path, img.Bounds().Dx(), img.Bounds().Dy())

	rgba := toRGBA(img)
	return &TextureData{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:   path,
		Width:  uint32(rgba.Rect.Dx()),
		Height: uint32(rgba.Rect.Dy()),
		Pixels: rgba.Pix,
	}, nil
}

func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == bounds.Dx()*4 && bounds.Min == (image.Point{}) {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// Creation describes a sampled 2D texture for the decoded pixels. With mipmaps set the
// whole chain is generated after the upload.
func (t *TextureData) Creation(srgb, mipmaps bool) metadata.TextureCreation {
	format := vk.FormatR8g8b8a8Unorm
	if srgb {
		format = vk.FormatR8g8b8a8Srgb
	}
	creation := metadata.NewTextureCreation(t.Name, t.Width, t.Height, format)
	if mipmaps {
		creation.Mipmaps = math.MipLevels(t.Width, t.Height)
	}
	creation.InitialData = t.Pixels
	return creation
}
