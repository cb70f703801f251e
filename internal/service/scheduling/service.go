package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicsched/internal/domain"
	"clinicsched/internal/store"
)

const minutesPerDay = 24 * 60

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ConflictError is the user-facing rejection of a candidate schedule: past
// date, lead-time violation, or overlap with an existing schedule. It matches
// store.ErrConflict under errors.Is.
type ConflictError struct {
	Reason        string
	ConflictStart time.Time
	ConflictEnd   time.Time
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func (e *ConflictError) Is(target error) bool {
	return target == store.ErrConflict
}

// Config holds the engine's tunable bounds.
type Config struct {
	// LeadTime is the minimum gap between now and a same-day schedule start.
	LeadTime time.Duration
	// MinSlotDuration is the smallest accepted slot duration.
	MinSlotDuration time.Duration
	// MaxRecurringSpanDays bounds a recurring request's inclusive date range.
	MaxRecurringSpanDays int
}

const (
	DefaultLeadTime             = 3 * time.Hour
	DefaultMinSlotDuration      = 5 * time.Minute
	DefaultMaxRecurringSpanDays = 90
)

type Service struct {
	repo store.ScheduleRepository
	cfg  Config
	now  func() time.Time
}

func NewService(repo store.ScheduleRepository, cfg Config) *Service {
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = DefaultLeadTime
	}
	if cfg.MinSlotDuration <= 0 {
		cfg.MinSlotDuration = DefaultMinSlotDuration
	}
	if cfg.MaxRecurringSpanDays <= 0 {
		cfg.MaxRecurringSpanDays = DefaultMaxRecurringSpanDays
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// ScheduleInput describes one candidate single-day schedule.
type ScheduleInput struct {
	ProviderID      string
	ServiceID       string
	Date            time.Time
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Breaks          []domain.TimeBlock
}

// Preview is a generated, not yet persisted, slot set.
type Preview struct {
	Slots         []domain.SlotSpan
	SlotCount     int
	BookableCount int
}

// CommitInput is a preview the caller wants persisted. Slots, when present,
// must match the server-side slicing of the range exactly; only the IsBreak
// flags are taken from the client.
type CommitInput struct {
	ScheduleInput
	Slots []domain.SlotSpan
}

// Validate checks a candidate schedule without generating slots: input shape,
// past date, lead time, overlap with the provider's existing schedules. The
// same overlap check is re-run inside the commit transaction, so a clean
// Validate is advisory, not a reservation.
func (s *Service) Validate(ctx context.Context, in ScheduleInput) error {
	if err := s.validateInput(in); err != nil {
		return err
	}
	if err := s.checkTiming(in); err != nil {
		return err
	}

	existing, err := s.repo.ListForDay(ctx, in.ProviderID, in.Date)
	if err != nil {
		return err
	}
	return overlapConflict(in, existing)
}

// GenerateSlotsPreview validates the candidate and slices it into slots,
// marking those intersecting the caller's break blocks. Nothing is persisted.
func (s *Service) GenerateSlotsPreview(ctx context.Context, in ScheduleInput) (Preview, error) {
	if err := s.Validate(ctx, in); err != nil {
		return Preview{}, err
	}

	spans := domain.SliceRange(in.StartTime, in.EndTime, time.Duration(in.DurationMinutes)*time.Minute)
	spans = domain.ApplyBreaks(spans, in.Breaks)
	return newPreview(spans), nil
}

// CommitSchedule persists the schedule and its full slot set atomically. The
// overlap check runs again inside the write transaction under the provider's
// lock; a concurrent overlapping commit loses with a conflict error and
// nothing persisted.
func (s *Service) CommitSchedule(ctx context.Context, in CommitInput) (domain.Schedule, error) {
	if err := s.validateInput(in.ScheduleInput); err != nil {
		return domain.Schedule{}, err
	}
	if err := s.checkTiming(in.ScheduleInput); err != nil {
		return domain.Schedule{}, err
	}

	spans := domain.SliceRange(in.StartTime, in.EndTime, time.Duration(in.DurationMinutes)*time.Minute)
	spans = domain.ApplyBreaks(spans, in.Breaks)

	if len(in.Slots) > 0 {
		if len(in.Slots) != len(spans) {
			return domain.Schedule{}, validationError("slots do not match the sliced range")
		}
		for i, client := range in.Slots {
			if !client.Start.Equal(spans[i].Start) || !client.End.Equal(spans[i].End) {
				return domain.Schedule{}, validationError("slots do not match the sliced range")
			}
			spans[i].IsBreak = spans[i].IsBreak || client.IsBreak
		}
	}

	sched := domain.Schedule{
		ProviderID:          in.ProviderID,
		ServiceID:           in.ServiceID,
		Date:                domain.DateOf(in.Date),
		StartTime:           in.StartTime.UTC(),
		EndTime:             in.EndTime.UTC(),
		SlotDurationMinutes: in.DurationMinutes,
	}
	for _, span := range spans {
		sched.Slots = append(sched.Slots, &domain.Slot{
			StartTime: span.Start.UTC(),
			EndTime:   span.End.UTC(),
			IsBreak:   span.IsBreak,
			Status:    domain.SlotStatusAvailable,
		})
	}

	return s.repo.Commit(ctx, sched)
}

// ClockBlock is a repeating time-of-day block, minutes from midnight.
type ClockBlock struct {
	StartMinutes int
	EndMinutes   int
}

// RecurringInput expands into one candidate schedule per calendar day per
// block over the inclusive [StartDate, EndDate] range.
type RecurringInput struct {
	ProviderID      string
	ServiceID       string
	StartDate       time.Time
	EndDate         time.Time
	DurationMinutes int
	TimeBlocks      []ClockBlock
}

// DayPreview is one day/block candidate. Conflicted entries stay in the
// calendar the caller sees but are excluded from the commit set.
type DayPreview struct {
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
	Slots     []domain.SlotSpan
	Conflict  bool
	Reason    string
}

// GenerateRecurringPreview expands the request day by day. A conflict on one
// day or block never fails the batch; it tags that entry only.
func (s *Service) GenerateRecurringPreview(ctx context.Context, in RecurringInput) ([]DayPreview, error) {
	if err := s.validateRecurringInput(in); err != nil {
		return nil, err
	}

	slotDuration := time.Duration(in.DurationMinutes) * time.Minute
	startDay := domain.DateOf(in.StartDate)
	endDay := domain.DateOf(in.EndDate)

	out := make([]DayPreview, 0)
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		existing, err := s.repo.ListForDay(ctx, in.ProviderID, day)
		if err != nil {
			return nil, err
		}

		for _, block := range in.TimeBlocks {
			candidate := ScheduleInput{
				ProviderID:      in.ProviderID,
				ServiceID:       in.ServiceID,
				Date:            day,
				StartTime:       day.Add(time.Duration(block.StartMinutes) * time.Minute),
				EndTime:         day.Add(time.Duration(block.EndMinutes) * time.Minute),
				DurationMinutes: in.DurationMinutes,
			}

			preview := DayPreview{
				Date:      day,
				StartTime: candidate.StartTime,
				EndTime:   candidate.EndTime,
			}

			conflictErr := s.checkTiming(candidate)
			if conflictErr == nil {
				conflictErr = overlapConflict(candidate, existing)
			}

			if conflictErr != nil {
				preview.Conflict = true
				preview.Reason = conflictErr.Error()
			} else {
				preview.Slots = domain.SliceRange(candidate.StartTime, candidate.EndTime, slotDuration)
			}
			out = append(out, preview)
		}
	}
	return out, nil
}

// CommitRecurringSchedule persists every non-conflicted day/block candidate,
// one transaction per schedule, and reports a tagged outcome per entry.
// Partial success is the expected shape of the response.
func (s *Service) CommitRecurringSchedule(ctx context.Context, in RecurringInput) ([]store.RecurringDayOutcome, error) {
	previews, err := s.GenerateRecurringPreview(ctx, in)
	if err != nil {
		return nil, err
	}

	scheds := make([]domain.Schedule, 0, len(previews))
	for _, p := range previews {
		if p.Conflict {
			continue
		}
		sched := domain.Schedule{
			ProviderID:          in.ProviderID,
			ServiceID:           in.ServiceID,
			Date:                p.Date,
			StartTime:           p.StartTime.UTC(),
			EndTime:             p.EndTime.UTC(),
			SlotDurationMinutes: in.DurationMinutes,
		}
		for _, span := range p.Slots {
			sched.Slots = append(sched.Slots, &domain.Slot{
				StartTime: span.Start.UTC(),
				EndTime:   span.End.UTC(),
				Status:    domain.SlotStatusAvailable,
			})
		}
		scheds = append(scheds, sched)
	}

	committed, commitErr := s.repo.CommitBatch(ctx, scheds)

	// Stitch commit outcomes back into the preview order so the response
	// covers every day/block, including the ones preview already rejected.
	out := make([]store.RecurringDayOutcome, 0, len(previews))
	next := 0
	for _, p := range previews {
		if p.Conflict {
			out = append(out, store.RecurringDayOutcome{
				Date:       p.Date,
				BlockStart: p.StartTime,
				BlockEnd:   p.EndTime,
				Skipped:    true,
				Reason:     p.Reason,
			})
			continue
		}
		if next < len(committed) {
			out = append(out, committed[next])
			next++
		}
	}
	return out, commitErr
}

// FetchSchedules lists a provider's schedules with embedded slots.
func (s *Service) FetchSchedules(ctx context.Context, filter store.ScheduleFilter) (store.SchedulePage, error) {
	if filter.ProviderID == "" {
		return store.SchedulePage{}, validationError("provider_id is required")
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return store.SchedulePage{}, validationError("date_to must not be before date_from")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return store.SchedulePage{}, validationError("limit and offset must not be negative")
	}
	return s.repo.List(ctx, filter)
}

// CancelSchedule cancels a whole schedule: flag flip, slot sweep and refund
// triggers in one transaction. Repeating the call on an already-cancelled
// schedule is a no-op success.
func (s *Service) CancelSchedule(ctx context.Context, scheduleID uuid.UUID, reason string) (store.CancelResult, error) {
	if scheduleID == uuid.Nil {
		return store.CancelResult{}, validationError("schedule_id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return store.CancelResult{}, validationError("cancellation reason is required")
	}
	return s.repo.Cancel(ctx, scheduleID, reason)
}

func (s *Service) validateInput(in ScheduleInput) error {
	if in.ProviderID == "" {
		return validationError("provider_id is required")
	}
	if in.ServiceID == "" {
		return validationError("service_id is required")
	}
	if in.Date.IsZero() {
		return validationError("date is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return validationError("start_time and end_time are required")
	}
	if !in.EndTime.After(in.StartTime) {
		return validationError("end_time must be after start_time")
	}
	if in.EndTime.Sub(in.StartTime) > 24*time.Hour {
		return validationError("schedule longer than 24 hours")
	}
	if time.Duration(in.DurationMinutes)*time.Minute < s.cfg.MinSlotDuration {
		return validationError(fmt.Sprintf("slot duration must be at least %d minutes", int(s.cfg.MinSlotDuration/time.Minute)))
	}
	for _, b := range in.Breaks {
		if !b.End.After(b.Start) {
			return validationError("break end must be after break start")
		}
	}
	return nil
}

func (s *Service) validateRecurringInput(in RecurringInput) error {
	if in.ProviderID == "" {
		return validationError("provider_id is required")
	}
	if in.ServiceID == "" {
		return validationError("service_id is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return validationError("start_date and end_date are required")
	}

	startDay := domain.DateOf(in.StartDate)
	endDay := domain.DateOf(in.EndDate)
	if endDay.Before(startDay) {
		return validationError("end_date must not be before start_date")
	}
	spanDays := int(endDay.Sub(startDay)/(24*time.Hour)) + 1
	if spanDays > s.cfg.MaxRecurringSpanDays {
		return validationError(fmt.Sprintf("date range exceeds %d days", s.cfg.MaxRecurringSpanDays))
	}

	if time.Duration(in.DurationMinutes)*time.Minute < s.cfg.MinSlotDuration {
		return validationError(fmt.Sprintf("slot duration must be at least %d minutes", int(s.cfg.MinSlotDuration/time.Minute)))
	}
	if len(in.TimeBlocks) == 0 {
		return validationError("at least one time block is required")
	}
	for _, b := range in.TimeBlocks {
		if b.StartMinutes < 0 || b.EndMinutes > minutesPerDay || b.EndMinutes <= b.StartMinutes {
			return validationError("invalid time block")
		}
	}
	for i, a := range in.TimeBlocks {
		for _, b := range in.TimeBlocks[i+1:] {
			if a.StartMinutes < b.EndMinutes && a.EndMinutes > b.StartMinutes {
				return validationError("time blocks overlap")
			}
		}
	}
	return nil
}

// checkTiming applies the past-date and lead-time rules relative to the
// service clock.
func (s *Service) checkTiming(in ScheduleInput) error {
	now := s.now().UTC()
	today := domain.DateOf(now)
	day := domain.DateOf(in.Date)

	if day.Before(today) {
		return &ConflictError{Reason: "Past date"}
	}
	if day.Equal(today) && in.StartTime.Before(now.Add(s.cfg.LeadTime)) {
		return &ConflictError{Reason: "Lead-time violation"}
	}
	return nil
}

func overlapConflict(in ScheduleInput, existing []domain.Schedule) error {
	for _, e := range existing {
		if domain.Overlaps(in.StartTime, in.EndTime, e.StartTime, e.EndTime) {
			oe := &store.OverlapError{Date: e.Date, Start: e.StartTime, End: e.EndTime}
			return &ConflictError{
				Reason:        oe.Error(),
				ConflictStart: e.StartTime,
				ConflictEnd:   e.EndTime,
			}
		}
	}
	return nil
}

func newPreview(spans []domain.SlotSpan) Preview {
	bookable := 0
	for _, span := range spans {
		if !span.IsBreak {
			bookable++
		}
	}
	return Preview{Slots: spans, SlotCount: len(spans), BookableCount: bookable}
}
