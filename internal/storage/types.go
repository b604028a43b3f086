package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file, schema managed by embedded migrations
//   - "file": dependency-free file backend (recipient snapshot + run journal)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Recipient is an enrolled chat. Recipients are deactivated, never deleted.
type Recipient struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	EnrolledAt  time.Time `json:"enrolled_at"`
}

// RunRecord is one append-only entry per finished or failed run attempt.
type RunRecord struct {
	ID                int64     `json:"id"`
	RunAt             time.Time `json:"run_at"`
	Title             string    `json:"title"`
	RecipientsReached int       `json:"recipients_reached"`
	Success           bool      `json:"success"`
}

// RunFilter selects run records with From <= RunAt < To. Zero bounds are open.
type RunFilter struct {
	From        time.Time
	To          time.Time
	SuccessOnly bool
}

func (f RunFilter) match(r RunRecord) bool {
	if f.SuccessOnly && !r.Success {
		return false
	}
	if !f.From.IsZero() && r.RunAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.RunAt.Before(f.To) {
		return false
	}
	return true
}
