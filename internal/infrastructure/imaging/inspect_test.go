package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestInspectReportsFormat(t *testing.T) {
	info, err := NewInspector(0).Inspect(encodePNG(t, 64, 48))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Format != "png" || info.MediaType != "image/png" || info.Extension != ".png" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Width != 64 || info.Height != 48 {
		t.Fatalf("unexpected dimensions %dx%d", info.Width, info.Height)
	}
}

func TestInspectRejectsInvalidInput(t *testing.T) {
	inspector := NewInspector(32)
	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"too small": encodePNG(t, 8, 8),
	} {
		if _, err := inspector.Inspect(data); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestExtensionForJPEG(t *testing.T) {
	if Extension("jpeg") != ".jpg" || MediaType("jpeg") != "image/jpeg" {
		t.Fatalf("unexpected jpeg mapping")
	}
}
