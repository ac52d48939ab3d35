// Package assets bundles the static files shipped with sdpaint.
package assets

import (
	"bytes"
	_ "embed"
	"image"
	"image/png"
)

//go:embed default.png
var placeholder []byte

// Placeholder returns the encoded default image shown before any successful
// generation and after a failed one.
func Placeholder() []byte {
	return bytes.Clone(placeholder)
}

// PlaceholderImage returns the decoded placeholder.
func PlaceholderImage() image.Image {
	img, err := png.Decode(bytes.NewReader(placeholder))
	if err != nil {
		panic("assets: corrupt placeholder: " + err.Error())
	}
	return img
}
