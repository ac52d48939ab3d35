package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestModelPath(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"dreamshaper-8-lcm", "@cf/lykon/dreamshaper-8-lcm"},
		{"stable-diffusion-xlbase-1.0", "@cf/stabilityai/stable-diffusion-xl-base-1.0"},
		{"stable-diffusion-xl-lightning", "@cf/bytedance/stable-diffusion-xl-lightning"},
	}
	for _, tt := range tests {
		got, err := ModelPath(tt.label)
		if err != nil {
			t.Fatalf("ModelPath(%q) error: %v", tt.label, err)
		}
		if got != tt.want {
			t.Fatalf("ModelPath(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
	if len(Models) != len(tests) {
		t.Fatalf("expected %d models, got %d", len(tests), len(Models))
	}
}

func TestModelPath_Unknown(t *testing.T) {
	if _, err := ModelPath("flux-1-schnell"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestRun_MapsRequest(t *testing.T) {
	var recorded TextToImageRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got, want := r.URL.Path, "/accounts/acc-123/ai/run/@cf/lykon/dreamshaper-8-lcm"; got != want {
			t.Errorf("unexpected path: %s", got)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-456" {
			t.Errorf("unexpected auth header: %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&recorded); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "PNGDATA")
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	data, ct, err := c.Run(context.Background(), Credentials{AccountID: "acc-123", APIToken: "tok-456"},
		"@cf/lykon/dreamshaper-8-lcm", TextToImageRequest{Prompt: "a cat", NumSteps: 15, Guidance: 7})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if string(data) != "PNGDATA" || ct != "image/png" {
		t.Fatalf("unexpected response: %q %q", data, ct)
	}
	if recorded.Prompt != "a cat" || recorded.NumSteps != 15 || recorded.Guidance != 7 {
		t.Fatalf("unexpected body: %+v", recorded)
	}
}

func TestRun_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"errors":[{"code":5006,"message":"bad steps"}],"result":null}`)
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	_, _, err := c.Run(context.Background(), Credentials{AccountID: "a", APIToken: "t"}, "@cf/x/y", TextToImageRequest{})
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if serr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", serr.StatusCode)
	}
	if len(serr.Messages) != 1 || serr.Messages[0] != "bad steps" {
		t.Fatalf("unexpected messages: %v", serr.Messages)
	}
}

func TestCredentialsComplete(t *testing.T) {
	if (Credentials{AccountID: "a"}).Complete() {
		t.Fatal("missing token must not be complete")
	}
	if !(Credentials{AccountID: "a", APIToken: "t"}).Complete() {
		t.Fatal("expected complete credentials")
	}
}
