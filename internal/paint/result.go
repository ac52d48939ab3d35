package paint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blacktop/sdpaint/internal/cloudflare"
)

// ErrBusy is returned when a generation is requested while one is running.
var ErrBusy = errors.New("generation already in progress")

// Failure classifies why a generation fell back to the placeholder.
type Failure int

const (
	FailureNone Failure = iota
	FailureConfig
	FailureStatus
	FailureTransport
	FailureDecode
	FailureCanceled
	FailureBusy
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureConfig:
		return "config"
	case FailureStatus:
		return "status"
	case FailureTransport:
		return "transport"
	case FailureDecode:
		return "decode"
	case FailureCanceled:
		return "canceled"
	case FailureBusy:
		return "busy"
	default:
		return fmt.Sprintf("Failure(%d)", int(f))
	}
}

// GenerateError wraps the cause of a failed generation.
type GenerateError struct {
	Kind       Failure
	StatusCode int // set for FailureStatus
	Err        error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generate failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// Result is the outcome of one Generate call.
type Result struct {
	Image   Image // the image now displayed; the placeholder on failure
	Err     error
	Elapsed time.Duration
}

// OK reports whether the API returned a decodable image.
func (r Result) OK() bool { return r.Err == nil }

// Failure returns the failure classification, FailureNone on success.
func (r Result) Failure() Failure {
	var gerr *GenerateError
	if errors.As(r.Err, &gerr) {
		return gerr.Kind
	}
	if errors.Is(r.Err, ErrBusy) {
		return FailureBusy
	}
	if r.Err != nil {
		return FailureConfig
	}
	return FailureNone
}

// classify turns a client error into a GenerateError.
func classify(ctx context.Context, err error) *GenerateError {
	var serr *cloudflare.StatusError
	switch {
	case errors.As(err, &serr):
		return &GenerateError{Kind: FailureStatus, StatusCode: serr.StatusCode, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return &GenerateError{Kind: FailureCanceled, Err: err}
	default:
		return &GenerateError{Kind: FailureTransport, Err: err}
	}
}
