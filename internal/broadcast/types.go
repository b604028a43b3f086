// Package broadcast delivers one message to every active recipient, one at a time,
// paced to stay under the transport rate limit.
package broadcast

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"newsletterbot/internal/storage"
	kit "newsletterbot/internal/transport"
	logx "newsletterbot/pkg/logx"
)

const (
	DefaultGap          = 50 * time.Millisecond
	DefaultErrorBackoff = 100 * time.Millisecond
)

type Config struct {
	// Gap is the minimum spacing between two delivery attempts.
	Gap time.Duration
	// ErrorBackoff is waited after a failure that leaves the recipient active.
	ErrorBackoff   time.Duration
	DisablePreview bool
}

// Recipients is the part of the store the broadcaster reads and updates.
type Recipients interface {
	ActiveRecipients(ctx context.Context) ([]storage.Recipient, error)
	SetRecipientActive(ctx context.Context, id int64, active bool) error
}

// Result summarises one Send.
type Result struct {
	Attempted   int
	Reached     int
	Deactivated int
	Failed      int
	Took        time.Duration
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	sender  kit.Sender
	store   Recipients
	log     logx.Logger
	limiter *rate.Limiter
}
