package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
)

// OverlapError is a conflict that carries the existing range the candidate
// collided with, so callers can show which schedule is in the way. It matches
// ErrConflict under errors.Is.
type OverlapError struct {
	Date  time.Time
	Start time.Time
	End   time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf(
		"Overlaps existing schedule on %s (%s-%s)",
		e.Date.Format("2006-01-02"),
		e.Start.UTC().Format("15:04"),
		e.End.UTC().Format("15:04"),
	)
}

func (e *OverlapError) Is(target error) bool {
	return target == ErrConflict
}
