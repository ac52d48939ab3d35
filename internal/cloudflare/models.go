package cloudflare

import (
	"errors"
	"fmt"
)

// ErrUnknownModel is returned when a label is not part of the catalogue.
var ErrUnknownModel = errors.New("unknown model")

// DefaultModel is the model selected when nothing else is configured.
const DefaultModel = "stable-diffusion-xl-lightning"

// Model is a Workers AI text-to-image model offered in the UI.
type Model struct {
	Label string // human readable name shown in the selector
	Path  string // upstream model identifier used in the run URL
}

// Models lists the selectable models in display order.
var Models = []Model{
	{Label: "dreamshaper-8-lcm", Path: "@cf/lykon/dreamshaper-8-lcm"},
	{Label: "stable-diffusion-xlbase-1.0", Path: "@cf/stabilityai/stable-diffusion-xl-base-1.0"},
	{Label: "stable-diffusion-xl-lightning", Path: "@cf/bytedance/stable-diffusion-xl-lightning"},
}

// Labels returns the selectable model labels in display order.
func Labels() []string {
	labels := make([]string, 0, len(Models))
	for _, m := range Models {
		labels = append(labels, m.Label)
	}
	return labels
}

// ModelPath resolves a label to its upstream model path.
func ModelPath(label string) (string, error) {
	for _, m := range Models {
		if m.Label == label {
			return m.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, label)
}
