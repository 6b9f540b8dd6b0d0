package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func writeImage(t *testing.T, name string, encode func(*bytes.Buffer, image.Image) error) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(3, 1, color.NRGBA{B: 255, A: 255})

	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadTexture(t *testing.T) {
	tests := []struct {
		name   string
		encode func(*bytes.Buffer, image.Image) error
	}{
		{"albedo.png", func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) }},
		{"albedo.bmp", func(b *bytes.Buffer, img image.Image) error { return bmp.Encode(b, img) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := LoadTexture(writeImage(t, tt.name, tt.encode))
			if err != nil {
				t.Fatalf("LoadTexture() error = %v", err)
			}
			if data.Width != 4 || data.Height != 2 {
				t.Fatalf("extent = %dx%d, want 4x2", data.Width, data.Height)
			}
			if len(data.Pixels) != 4*2*4 {
				t.Fatalf("len(Pixels) = %d, want tightly packed RGBA8", len(data.Pixels))
			}
			if got := data.Pixels[:4]; !bytes.Equal(got, []byte{255, 0, 0, 255}) {
				t.Errorf("first pixel = %v, want opaque red", got)
			}
			last := data.Pixels[len(data.Pixels)-4:]
			if !bytes.Equal(last, []byte{0, 0, 255, 255}) {
				t.Errorf("last pixel = %v, want opaque blue", last)
			}
			if data.Name != "albedo" {
				t.Errorf("Name = %q, want albedo", data.Name)
			}
		})
	}
}

func TestLoadTextureErrors(t *testing.T) {
	if _, err := LoadTexture(filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadTexture(missing) error = %v, want not exist", err)
	}

	path := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTexture(path); !errors.Is(err, core.ErrUnsupported) {
		t.Errorf("LoadTexture(garbage) error = %v, want ErrUnsupported", err)
	}
}

func TestTextureDataCreation(t *testing.T) {
	data := &TextureData{Name: "albedo", Width: 64, Height: 32, Pixels: make([]byte, 64*32*4)}

	creation := data.Creation(true, true)
	if creation.Format != vk.FormatR8g8b8a8Srgb {
		t.Errorf("Format = %v, want sRGB", creation.Format)
	}
	if creation.Mipmaps != 7 {
		t.Errorf("Mipmaps = %d, want the full chain of 7", creation.Mipmaps)
	}
	if creation.Alias.IsValid() {
		t.Error("creation must not alias another texture")
	}
	if len(creation.InitialData) != len(data.Pixels) {
		t.Errorf("len(InitialData) = %d, want %d", len(creation.InitialData), len(data.Pixels))
	}

	if creation = data.Creation(false, false); creation.Format != vk.FormatR8g8b8a8Unorm || creation.Mipmaps != 1 {
		t.Errorf("creation = %v with %d mips, want UNORM and a single mip", creation.Format, creation.Mipmaps)
	}
}
