package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInput marks malformed user input: schedule text, time text, identifiers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when an identifier resolves to no reminder.
	// Callers treat it as a result, not a failure.
	ErrNotFound = errors.New("reminder not found")
	// ErrUnknownSchedule is returned for a Schedule variant no code path handles.
	ErrUnknownSchedule = errors.New("unknown schedule variant")
)

// AmbiguousIDError is returned when a short id prefix matches more than one reminder.
type AmbiguousIDError struct {
	Prefix  string
	Matches int
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("id prefix %q is ambiguous: %d reminders match, use more characters", e.Prefix, e.Matches)
}

// StorageError wraps I/O, lock and decoding failures of the reminder store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ScheduleError reports a recurrence rule that can no longer produce a next occurrence.
type ScheduleError struct {
	ID   uuid.UUID
	Expr string
	Err  error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("reminder %s: cannot compute next trigger for %q: %v", ShortID(e.ID), e.Expr, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }
