// Package source fetches newsletter content from an ordered list of unreliable origins.
//
// Adapters are tried in configured order. The first candidate whose normalized body is long
// enough wins; when every adapter fails the chain returns the built-in sample item, so callers
// always get content.
package source

import (
	"context"
	"errors"

	"newsletterbot/internal/content"
)

// ErrNoContent is returned by adapters that reached their origin but found nothing usable.
var ErrNoContent = errors.New("source: no content")

// Candidate is one item an adapter could offer. Sender is only set by adapters that know it.
type Candidate struct {
	Item   content.Item
	Sender string
}

// Adapter obtains candidates from one origin. Implementations must honour ctx.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]Candidate, error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc struct {
	ID string
	Fn func(ctx context.Context) ([]Candidate, error)
}

func (f AdapterFunc) Name() string { return f.ID }

func (f AdapterFunc) Fetch(ctx context.Context) ([]Candidate, error) { return f.Fn(ctx) }
