package paint

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"testing"
)

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage(pngBytes(t))
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if img.Format != "png" || img.Placeholder || img.Decoded == nil {
		t.Fatalf("unexpected image: %+v", img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	img, err = DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage(jpeg): %v", err)
	}
	if img.Ext() != "jpg" || img.MIMEType() != "image/jpeg" {
		t.Fatalf("ext=%s mime=%s", img.Ext(), img.MIMEType())
	}

	if _, err := DecodeImage([]byte("not an image")); !errors.Is(err, image.ErrFormat) {
		t.Fatalf("expected image.ErrFormat, got %v", err)
	}
}

func TestImageFormats(t *testing.T) {
	tests := []struct {
		format string
		ext    string
		mime   string
	}{
		{"png", "png", "image/png"},
		{"jpeg", "jpg", "image/jpeg"},
		{"gif", "gif", "image/gif"},
		{"webp", "webp", "image/webp"},
		{"", "png", "image/png"},
	}
	for _, tt := range tests {
		img := Image{Format: tt.format}
		if got := img.Ext(); got != tt.ext {
			t.Errorf("Ext(%q) = %q, want %q", tt.format, got, tt.ext)
		}
		if got := img.MIMEType(); got != tt.mime {
			t.Errorf("MIMEType(%q) = %q, want %q", tt.format, got, tt.mime)
		}
	}
}

func TestPlaceholderImage(t *testing.T) {
	p := PlaceholderImage()
	if !p.Placeholder || p.Format != "png" || len(p.Data) == 0 || p.Decoded == nil {
		t.Fatalf("unexpected placeholder: %+v", p.Format)
	}
}

func TestResultFailure(t *testing.T) {
	tests := []struct {
		err  error
		want Failure
	}{
		{nil, FailureNone},
		{ErrBusy, FailureBusy},
		{&GenerateError{Kind: FailureDecode, Err: errors.New("bad")}, FailureDecode},
		{ErrMissingCredentials, FailureConfig},
	}
	for _, tt := range tests {
		if got := (Result{Err: tt.err}).Failure(); got != tt.want {
			t.Errorf("Failure(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
