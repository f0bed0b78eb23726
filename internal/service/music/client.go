// Package music submits text-to-music jobs and tracks them to completion.
package music

import (
	"context"
	"errors"
)

// ErrVendor wraps every non-success answer from the music vendor.
var ErrVendor = errors.New("music vendor request failed")

// GenerateRequest is the brief submitted to the vendor.
type GenerateRequest struct {
	Prompt string
	Style  string
	Title  string
}

// StatusResult is a vendor status answer before it is mapped to a canonical state.
type StatusResult struct {
	Status    string
	AudioURL  string
	StreamURL string
	ImageURL  string
	Error     string
}

// Client talks to the generation and status endpoints.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Status(ctx context.Context, taskID string) (StatusResult, error)
}

// CallbackSource exposes relayed vendor callbacks as an alternative to polling the vendor.
type CallbackSource interface {
	LookupStatus(ctx context.Context, taskID string) (StatusResult, bool)
}
