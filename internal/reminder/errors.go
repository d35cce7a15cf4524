package reminder

import "errors"

var (
	// ErrInvalidRecurrence means an unsupported interval code reached the
	// calculator. It points at corrupted data or a validation bug upstream.
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	// ErrInvalidWhen rejects registrations that are not in the future.
	ErrInvalidWhen = errors.New("reminder time must be in the future")
	ErrEmptyName   = errors.New("reminder name is empty")
)
