// Package summary turns a content item into the broadcast message.
//
// The summarization service is tried a bounded number of times. Rate limits back off
// exponentially, transient failures wait a fixed interval, anything else stops the attempts.
// When no usable response arrives, an extractive summary is built from the item itself, so
// Summarize always returns a displayable message.
package summary

import (
	"context"
	"errors"
)

// Classified summarization failures. Errors matching neither are fatal for the run's attempts.
var (
	ErrRateLimited = errors.New("summary: rate limited")
	ErrTransient   = errors.New("summary: transient error")
)

// Client calls a text completion service.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, system, prompt string) (string, error)

func (f ClientFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}
