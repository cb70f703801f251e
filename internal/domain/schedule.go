package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SlotStatus is the booking lifecycle state of a single slot.
type SlotStatus string

const (
	SlotStatusAvailable   SlotStatus = "available"
	SlotStatusPending     SlotStatus = "pending"
	SlotStatusBooked      SlotStatus = "booked"
	SlotStatusRescheduled SlotStatus = "rescheduled"
	SlotStatusCancelled   SlotStatus = "cancelled"
	SlotStatusCompleted   SlotStatus = "completed"
)

// Schedule is one provider's bookable block for one calendar date. Slots are
// owned exclusively by their schedule; cancellation changes slot statuses but
// never removes rows.
type Schedule struct {
	bun.BaseModel `bun:"table:schedules"`

	ID                  uuid.UUID `bun:"id,pk,type:uuid"`
	ProviderID          string    `bun:"provider_id,notnull"`
	ServiceID           string    `bun:"service_id,notnull"`
	Date                time.Time `bun:"date,notnull,type:date"`
	StartTime           time.Time `bun:"start_time,notnull"`
	EndTime             time.Time `bun:"end_time,notnull"`
	SlotDurationMinutes int       `bun:"slot_duration_minutes,notnull"`
	IsCancelled         bool      `bun:"is_cancelled,notnull,default:false"`
	CancellationReason  string    `bun:"cancellation_reason,notnull,default:''"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
	UpdatedAt           time.Time `bun:"updated_at,notnull"`

	Slots []*Slot `bun:"rel:has-many,join:id=schedule_id"`
}

func (s *Schedule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// Slot is the smallest bookable unit inside a schedule. PatientRef is set only
// while the status is one of pending, booked, rescheduled or completed.
type Slot struct {
	bun.BaseModel `bun:"table:slots"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	ScheduleID uuid.UUID  `bun:"schedule_id,notnull,type:uuid"`
	StartTime  time.Time  `bun:"start_time,notnull"`
	EndTime    time.Time  `bun:"end_time,notnull"`
	IsBreak    bool       `bun:"is_break,notnull,default:false"`
	Status     SlotStatus `bun:"status,notnull,default:'available'"`
	PatientRef *string    `bun:"patient_ref"`
	CreatedAt  time.Time  `bun:"created_at,notnull"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull"`
}

func (s *Slot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.Status == "" {
			s.Status = SlotStatusAvailable
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// RefundEvent is an outbox row telling the payment collaborator that a booked
// slot was cancelled and its payment needs reversal. The contract ends at
// "refund triggered"; settlement happens elsewhere.
type RefundEvent struct {
	bun.BaseModel `bun:"table:refund_events"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	ScheduleID uuid.UUID `bun:"schedule_id,notnull,type:uuid"`
	SlotID     uuid.UUID `bun:"slot_id,notnull,type:uuid"`
	PatientRef string    `bun:"patient_ref,notnull"`
	ServiceID  string    `bun:"service_id,notnull"`
	Reason     string    `bun:"reason,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (e *RefundEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if e.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
	}
	return nil
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// BookableSlotCount counts slots offered to the booking flow: breaks are
// excluded, everything else counts toward the denominator regardless of
// truncation.
func BookableSlotCount(slots []*Slot) int {
	n := 0
	for _, s := range slots {
		if !s.IsBreak {
			n++
		}
	}
	return n
}
