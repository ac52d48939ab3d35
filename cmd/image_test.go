package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blacktop/sdpaint/internal/paint"
)

func TestImageFilename(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name   string
		prompt string
		ext    string
		want   string
	}{
		{"simple", "A photo of a cat", "png", "A_photo_of_a_cat_1700000000.png"},
		{"punctuation", "cat/dog: 100%!", "jpg", "cat_dog__100___1700000000.jpg"},
		{"empty", "", "png", "image_1700000000.png"},
		{"long", strings.Repeat("ab", 40), "png", strings.Repeat("ab", 25) + "_1700000000.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := imageFilename(tt.prompt, tt.ext, now); got != tt.want {
				t.Errorf("imageFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSaveImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	img := paint.Image{Data: []byte("jpeg-bytes"), Format: "jpeg"}

	path, err := saveImage(img, "a cat", dir)
	if err != nil {
		t.Fatalf("saveImage: %v", err)
	}
	if filepath.Dir(path) != dir || filepath.Ext(path) != ".jpg" {
		t.Fatalf("unexpected path %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, img.Data) {
		t.Fatal("saved bytes differ")
	}
}

func TestSaveImage_Placeholder(t *testing.T) {
	if _, err := saveImage(paint.PlaceholderImage(), "a cat", t.TempDir()); err == nil {
		t.Fatal("expected an error when saving the placeholder")
	}
}

func TestDisplayImage_Protocols(t *testing.T) {
	img := paint.PlaceholderImage()
	if got := displayImage(img, "kitty", 10, 10); !strings.HasPrefix(got, "\033_Ga=T,f=100;") {
		t.Errorf("unexpected kitty output prefix: %q", got[:min(20, len(got))])
	}
	if got := displayImage(img, "iterm", 10, 10); !strings.HasPrefix(got, "\033]1337;File=inline=1;") {
		t.Errorf("unexpected iTerm output prefix: %q", got[:min(20, len(got))])
	}
}
