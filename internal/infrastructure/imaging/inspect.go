// Package imaging checks that uploaded bytes are an image the classifier can read.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

// DefaultMinDimension rejects icons and tracking pixels.
const DefaultMinDimension = 32

type Inspector struct {
	minDimension int
}

func NewInspector(minDimension int) *Inspector {
	if minDimension <= 0 {
		minDimension = DefaultMinDimension
	}
	return &Inspector{minDimension: minDimension}
}

// Inspect decodes only the image header. Format is the registered decoder name
// (jpeg, png, gif or webp).
func (i *Inspector) Inspect(data []byte) (domain.ImageInfo, error) {
	if len(data) == 0 {
		return domain.ImageInfo{}, domain.WrapError(domain.ErrInvalidInput, "imaging.inspect", fmt.Errorf("empty upload"))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.ImageInfo{}, domain.WrapError(domain.ErrInvalidInput, "imaging.inspect", fmt.Errorf("not a supported image: %w", err))
	}
	if cfg.Width < i.minDimension || cfg.Height < i.minDimension {
		return domain.ImageInfo{}, domain.WrapError(domain.ErrInvalidInput, "imaging.inspect",
			fmt.Errorf("image %dx%d smaller than %dpx", cfg.Width, cfg.Height, i.minDimension))
	}
	return domain.ImageInfo{
		Format:    format,
		MediaType: MediaType(format),
		Extension: Extension(format),
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

// MediaType maps a decoded format name to its MIME type.
func MediaType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Extension maps a decoded format name to a file extension.
func Extension(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}
