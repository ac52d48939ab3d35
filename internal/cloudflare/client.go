package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultBaseURL is the Cloudflare v4 REST API root.
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"

	maxErrorBody = 8 * 1024
)

// Credentials authenticate requests against a Cloudflare account.
type Credentials struct {
	AccountID string
	APIToken  string
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.AccountID != "" && c.APIToken != ""
}

// TextToImageRequest is the JSON body accepted by the text-to-image models.
type TextToImageRequest struct {
	Prompt   string `json:"prompt"`
	NumSteps int    `json:"num_steps"` // Number of diffusion steps
	Guidance int    `json:"guidance"`  // Controls how closely the image follows the prompt
}

// StatusError is returned when the API answers with anything but 200.
type StatusError struct {
	StatusCode int
	Body       string
	Messages   []string // messages from the errors[] envelope, when present
}

func (e *StatusError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("cloudflare: http status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	if e.Body == "" {
		return fmt.Sprintf("cloudflare: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("cloudflare: http status %d: %s", e.StatusCode, e.Body)
}

type envelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Client talks to the Workers AI run endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new Workers AI client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunURL builds the run endpoint for an account and model path.
func (c *Client) RunURL(accountID, modelPath string) string {
	// model paths look like "@cf/vendor/name" and are sent unescaped
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.baseURL, url.PathEscape(accountID), modelPath)
}

// Run posts a text-to-image request and returns the image bytes and their content type.
func (c *Client) Run(ctx context.Context, creds Credentials, modelPath string, req TextToImageRequest) ([]byte, string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("error marshaling JSON: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RunURL(creds.AccountID, modelPath), bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Running model", "model", modelPath, "steps", req.NumSteps, "guidance", req.Guidance)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		var env envelope
		if json.Unmarshal(body, &env) == nil {
			for _, e := range env.Errors {
				serr.Messages = append(serr.Messages, e.Message)
			}
		}
		c.logger.Debug("API error", "status", resp.StatusCode, "body", serr.Body)
		return nil, "", serr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("error reading response: %w", err)
	}
	c.logger.Debug("API response", "bytes", len(data), "content-type", resp.Header.Get("Content-Type"))

	return data, resp.Header.Get("Content-Type"), nil
}
