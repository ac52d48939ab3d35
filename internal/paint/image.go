package paint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/blacktop/sdpaint/internal/assets"
)

// Image is a displayable picture along with its encoded bytes.
type Image struct {
	Data        []byte // encoded bytes as received; callers must not modify
	Format      string // png, jpeg, gif or webp
	Decoded     image.Image
	Placeholder bool
}

// DecodeImage decodes bytes returned by the API.
func DecodeImage(data []byte) (Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return Image{Data: data, Format: format, Decoded: img}, nil
}

// PlaceholderImage returns the bundled default image.
func PlaceholderImage() Image {
	return Image{
		Data:        assets.Placeholder(),
		Format:      "png",
		Decoded:     assets.PlaceholderImage(),
		Placeholder: true,
	}
}

// Ext returns the file extension matching the image format.
func (i Image) Ext() string {
	switch i.Format {
	case "jpeg":
		return "jpg"
	case "":
		return "png"
	default:
		return i.Format
	}
}

// MIMEType returns the content type matching the image format.
func (i Image) MIMEType() string {
	switch i.Format {
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
