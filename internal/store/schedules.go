package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicsched/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ScheduleFilter narrows and pages a provider's schedule listing.
type ScheduleFilter struct {
	ProviderID       string
	ServiceID        string
	DateFrom         *time.Time
	DateTo           *time.Time
	IncludeCancelled bool
	SortDesc         bool
	Limit            int
	Offset           int
}

// SchedulePage is one page of schedules with the unpaged total.
type SchedulePage struct {
	Schedules []domain.Schedule
	Total     int
}

// RecurringDayOutcome is the tagged per-day result of a recurring batch
// commit: either a persisted schedule id or a skip reason. One day failing
// never rolls back the others.
type RecurringDayOutcome struct {
	Date       time.Time
	BlockStart time.Time
	BlockEnd   time.Time
	ScheduleID uuid.UUID
	Skipped    bool
	Reason     string
}

// CancelResult reports what a schedule cancellation did. Cancelling an
// already-cancelled schedule is a no-op success with AlreadyCancelled set and
// no new refund events.
type CancelResult struct {
	AlreadyCancelled bool
	Schedule         domain.Schedule
	RefundEvents     []domain.RefundEvent
}

type ScheduleRepository interface {
	// Commit atomically persists a schedule and its full slot set after
	// re-checking overlaps inside the write transaction. The losing side of a
	// concurrent overlapping commit receives ErrConflict.
	Commit(ctx context.Context, sched domain.Schedule) (domain.Schedule, error)

	// CommitBatch persists each schedule in its own transaction so that days
	// committed before a failure stay committed. Conflicts are reported as
	// skipped outcomes, not errors.
	CommitBatch(ctx context.Context, scheds []domain.Schedule) ([]RecurringDayOutcome, error)

	ListForDay(ctx context.Context, providerID string, date time.Time) ([]domain.Schedule, error)
	List(ctx context.Context, filter ScheduleFilter) (SchedulePage, error)
	Get(ctx context.Context, scheduleID uuid.UUID) (domain.Schedule, error)

	// Cancel flips the schedule to cancelled, sweeps every non-terminal slot
	// to cancelled and writes one refund event per previously booked slot, all
	// in one transaction. Idempotent.
	Cancel(ctx context.Context, scheduleID uuid.UUID, reason string) (CancelResult, error)

	// UpdateSlotStatus is the single mutation path for slot statuses outside
	// schedule cancellation. Illegal transitions return ErrStateConflict.
	UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, to domain.SlotStatus, patientRef string) (domain.Slot, error)
}
