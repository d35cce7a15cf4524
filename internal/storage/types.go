package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("event not found")
	// ErrStorage wraps every driver/I-O error returned by the store.
	ErrStorage  = errors.New("storage failure")
	ErrDisabled = errors.New("storage disabled")
)

// Recurrence is the persisted interval code. RecurNone is stored as NULL.
type Recurrence int

const (
	RecurNone Recurrence = iota
	RecurDaily
	RecurWeekly
	RecurMonthly
	RecurYearly
)

func (r Recurrence) String() string {
	switch r {
	case RecurNone:
		return "none"
	case RecurDaily:
		return "daily"
	case RecurWeekly:
		return "weekly"
	case RecurMonthly:
		return "monthly"
	case RecurYearly:
		return "yearly"
	default:
		return fmt.Sprintf("recurrence(%d)", int(r))
	}
}

func (r Recurrence) Recurring() bool { return r != RecurNone }

// Event is a stored reminder.
type Event struct {
	ID         int64
	OwnerID    int64
	Name       string
	When       time.Time
	Recurrence Recurrence
}

// EventUpdate lists the mutable columns. Nil fields are left untouched.
type EventUpdate struct {
	When *time.Time
}

func (u EventUpdate) empty() bool { return u.When == nil }

// Config configures storage.
type Config struct {
	Driver      string // "sqlite" or "postgres"
	Path        string // sqlite file
	DSN         string // postgres connection string
	BusyTimeout time.Duration
}

// AuditEntry records a command-surface action.
type AuditEntry struct {
	At      time.Time
	ActorID int64
	Action  string // register, cancel
	EventID int64
	OK      bool
	Error   string
	Detail  string
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
