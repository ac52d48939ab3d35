package cmd

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/blacktop/go-termimg"
	"github.com/charmbracelet/log"

	"github.com/blacktop/sdpaint/internal/paint"
)

// displayImage renders img for the terminal within a width x height cell box.
func displayImage(img paint.Image, protocol string, width, height int) string {
	switch protocol {
	case "kitty":
		return displayKittyImage(pngData(img))
	case "iterm":
		return displayITermImage(img.Data)
	}
	rendered, err := termimg.New(img.Decoded).Width(width).Height(height).Render()
	if err != nil {
		log.Debug("termimg render failed, falling back to iTerm protocol", "err", err)
		return displayITermImage(img.Data)
	}
	return rendered
}

// pngData returns img as PNG, re-encoding when the API sent another format.
func pngData(img paint.Image) []byte {
	if img.Format == "png" || img.Decoded == nil {
		return img.Data
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Decoded); err != nil {
		return img.Data
	}
	return buf.Bytes()
}

func displayKittyImage(image []byte) string {
	encoded := base64.StdEncoding.EncodeToString(image)
	return fmt.Sprintf("\033_Ga=T,f=100;%s\033\\", encoded)
}

func displayITermImage(image []byte) string {
	encoded := base64.StdEncoding.EncodeToString(image)
	return fmt.Sprintf("\033]1337;File=inline=1;size=%d;width=auto;height=auto:%s\a\n", len(image), encoded)
}

// imageFilename builds "<sanitized prompt>_<unix>.<ext>".
func imageFilename(prompt, ext string, now time.Time) string {
	// Sanitize the prompt for use in a filename
	sanitizedPrompt := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, prompt)

	// Truncate the sanitized prompt if it's too long
	if r := []rune(sanitizedPrompt); len(r) > 50 {
		sanitizedPrompt = string(r[:50])
	}
	if sanitizedPrompt == "" {
		sanitizedPrompt = "image"
	}

	return fmt.Sprintf("%s_%d.%s", sanitizedPrompt, now.Unix(), ext)
}

func saveImage(img paint.Image, prompt, folder string) (string, error) {
	if img.Placeholder {
		return "", fmt.Errorf("no generated image to save")
	}
	filename := imageFilename(prompt, img.Ext(), time.Now())
	if folder != "" {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return "", fmt.Errorf("error creating output folder: %w", err)
		}
		filename = filepath.Join(folder, filename)
	}
	if err := os.WriteFile(filename, img.Data, 0644); err != nil {
		return "", fmt.Errorf("error saving image: %w", err)
	}
	log.Debug("Image saved", "path", filename)
	return filename, nil
}
