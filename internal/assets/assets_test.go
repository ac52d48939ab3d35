package assets

import (
	"bytes"
	"testing"
)

func TestPlaceholder(t *testing.T) {
	b := Placeholder()
	if !bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("placeholder is not a PNG")
	}
	b[0] = 0
	if Placeholder()[0] == 0 {
		t.Fatal("Placeholder must return a copy")
	}
	if r := PlaceholderImage().Bounds(); r.Dx() == 0 || r.Dy() == 0 {
		t.Fatalf("unexpected bounds: %v", r)
	}
}
