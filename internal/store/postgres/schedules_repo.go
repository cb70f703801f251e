package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicsched/internal/domain"
	"clinicsched/internal/store"
)

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

type providerDayTx struct {
	tx bun.Tx
}

func (r *ScheduleRepo) Commit(ctx context.Context, sched domain.Schedule) (domain.Schedule, error) {
	var out domain.Schedule
	err := r.InProviderTransaction(ctx, sched.ProviderID, func(ctx context.Context, tx store.ProviderDayTx) error {
		if err := ensureNoScheduleOverlap(ctx, tx, sched); err != nil {
			return err
		}
		s, err := tx.InsertSchedule(ctx, sched)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return domain.Schedule{}, err
	}
	return out, nil
}

func (r *ScheduleRepo) CommitBatch(ctx context.Context, scheds []domain.Schedule) ([]store.RecurringDayOutcome, error) {
	out := make([]store.RecurringDayOutcome, 0, len(scheds))
	for _, sched := range scheds {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		outcome := store.RecurringDayOutcome{
			Date:       sched.Date,
			BlockStart: sched.StartTime,
			BlockEnd:   sched.EndTime,
		}

		committed, err := r.Commit(ctx, sched)
		switch {
		case err == nil:
			outcome.ScheduleID = committed.ID
		case errors.Is(err, store.ErrConflict):
			outcome.Skipped = true
			outcome.Reason = err.Error()
		default:
			return out, err
		}
		out = append(out, outcome)
	}
	return out, nil
}

func (r *ScheduleRepo) ListForDay(ctx context.Context, providerID string, date time.Time) ([]domain.Schedule, error) {
	var rows []domain.Schedule
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.DateOf(date)).
		Where("is_cancelled = FALSE").
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) List(ctx context.Context, filter store.ScheduleFilter) (store.SchedulePage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}
	if limit > store.MaxPageSize {
		limit = store.MaxPageSize
	}

	var rows []domain.Schedule
	q := r.db.NewSelect().
		Model(&rows).
		Relation("Slots", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.OrderExpr("start_time ASC")
		}).
		Where("provider_id = ?", filter.ProviderID)

	if filter.ServiceID != "" {
		q = q.Where("service_id = ?", filter.ServiceID)
	}
	if filter.DateFrom != nil {
		q = q.Where("date >= ?", domain.DateOf(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		q = q.Where("date <= ?", domain.DateOf(*filter.DateTo))
	}
	if !filter.IncludeCancelled {
		q = q.Where("is_cancelled = FALSE")
	}
	if filter.SortDesc {
		q = q.OrderExpr("date DESC, start_time DESC")
	} else {
		q = q.OrderExpr("date ASC, start_time ASC")
	}

	total, err := q.Limit(limit).Offset(filter.Offset).ScanAndCount(ctx)
	if err != nil {
		return store.SchedulePage{}, err
	}
	return store.SchedulePage{Schedules: rows, Total: total}, nil
}

func (r *ScheduleRepo) Get(ctx context.Context, scheduleID uuid.UUID) (domain.Schedule, error) {
	var row domain.Schedule
	err := r.db.NewSelect().
		Model(&row).
		Relation("Slots", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.OrderExpr("start_time ASC")
		}).
		Where("schedule.id = ?", scheduleID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Schedule{}, store.ErrNotFound
		}
		return domain.Schedule{}, err
	}
	return row, nil
}

func (r *ScheduleRepo) Cancel(ctx context.Context, scheduleID uuid.UUID, reason string) (store.CancelResult, error) {
	var out store.CancelResult
	err := r.runInTxWithRetry(ctx, func(ctx context.Context, tx bun.Tx) error {
		var sched domain.Schedule
		err := tx.NewSelect().
			Model(&sched).
			Where("id = ?", scheduleID).
			For("UPDATE").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		var slots []*domain.Slot
		err = tx.NewSelect().
			Model(&slots).
			Where("schedule_id = ?", scheduleID).
			OrderExpr("start_time ASC").
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return err
		}

		if sched.IsCancelled {
			sched.Slots = slots
			out = store.CancelResult{AlreadyCancelled: true, Schedule: sched}
			return nil
		}

		now := time.Now().UTC()
		sweepIDs := make([]uuid.UUID, 0, len(slots))
		refunds := make([]*domain.RefundEvent, 0)
		for _, slot := range slots {
			cancel, refund := domain.CancellationAction(*slot)
			if !cancel {
				continue
			}
			sweepIDs = append(sweepIDs, slot.ID)
			if refund {
				patientRef := ""
				if slot.PatientRef != nil {
					patientRef = *slot.PatientRef
				}
				refunds = append(refunds, &domain.RefundEvent{
					ScheduleID: sched.ID,
					SlotID:     slot.ID,
					PatientRef: patientRef,
					ServiceID:  sched.ServiceID,
					Reason:     reason,
				})
			}
			slot.Status = domain.SlotStatusCancelled
			slot.PatientRef = nil
			slot.UpdatedAt = now
		}

		if len(sweepIDs) > 0 {
			_, err = tx.NewUpdate().
				Model((*domain.Slot)(nil)).
				Set("status = ?", domain.SlotStatusCancelled).
				Set("patient_ref = NULL").
				Set("updated_at = ?", now).
				Where("id IN (?)", bun.In(sweepIDs)).
				Exec(ctx)
			if err != nil {
				return err
			}
		}

		if len(refunds) > 0 {
			if _, err = tx.NewInsert().Model(&refunds).Exec(ctx); err != nil {
				return err
			}
		}

		sched.IsCancelled = true
		sched.CancellationReason = reason
		_, err = tx.NewUpdate().
			Model(&sched).
			Column("is_cancelled", "cancellation_reason", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}

		sched.Slots = slots
		events := make([]domain.RefundEvent, 0, len(refunds))
		for _, ev := range refunds {
			events = append(events, *ev)
		}
		out = store.CancelResult{Schedule: sched, RefundEvents: events}
		return nil
	})
	if err != nil {
		return store.CancelResult{}, err
	}
	return out, nil
}

func (r *ScheduleRepo) UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, to domain.SlotStatus, patientRef string) (domain.Slot, error) {
	var out domain.Slot
	err := r.runInTxWithRetry(ctx, func(ctx context.Context, tx bun.Tx) error {
		var slot domain.Slot
		err := tx.NewSelect().
			Model(&slot).
			Where("id = ?", slotID).
			For("UPDATE").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if !domain.CanTransition(slot, to) {
			return store.ErrStateConflict
		}

		slot.Status = to
		switch {
		case to == domain.SlotStatusCancelled:
			slot.PatientRef = nil
		case patientRef != "":
			slot.PatientRef = &patientRef
		}

		_, err = tx.NewUpdate().
			Model(&slot).
			Column("status", "patient_ref", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		out = slot
		return nil
	})
	if err != nil {
		return domain.Slot{}, err
	}
	return out, nil
}

// InProviderTransaction serializes all schedule writes for one provider with
// an advisory transaction lock, the same lock the commit-time overlap re-check
// relies on to close the preview/commit race.
func (r *ScheduleRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderDayTx) error) error {
	return r.runInTxWithRetry(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, providerDayTx{tx: tx})
	})
}

// runInTxWithRetry retries exactly once when the transaction lost an
// optimistic-concurrency race (serialization failure or deadlock); any
// genuine conflict found on the retry surfaces as usual.
func (r *ScheduleRepo) runInTxWithRetry(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := r.db.RunInTx(ctx, nil, fn)
	if err == nil || !isRetryableTxError(err) {
		return err
	}
	return r.db.RunInTx(ctx, nil, fn)
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

// ensureNoScheduleOverlap re-checks the candidate against the provider's
// non-cancelled schedules for that date inside the write transaction.
func ensureNoScheduleOverlap(ctx context.Context, tx store.ProviderDayTx, sched domain.Schedule) error {
	existing, err := tx.ListSchedulesForDay(ctx, sched.ProviderID, sched.Date)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if domain.Overlaps(sched.StartTime, sched.EndTime, e.StartTime, e.EndTime) {
			return &store.OverlapError{Date: e.Date, Start: e.StartTime, End: e.EndTime}
		}
	}
	return nil
}

func (r providerDayTx) InsertSchedule(ctx context.Context, sched domain.Schedule) (domain.Schedule, error) {
	m := domain.Schedule{
		ID:                  sched.ID,
		ProviderID:          sched.ProviderID,
		ServiceID:           sched.ServiceID,
		Date:                domain.DateOf(sched.Date),
		StartTime:           sched.StartTime,
		EndTime:             sched.EndTime,
		SlotDurationMinutes: sched.SlotDurationMinutes,
	}

	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == "schedules_no_overlap" {
			return domain.Schedule{}, store.ErrConflict
		}
		return domain.Schedule{}, err
	}

	slots := make([]*domain.Slot, 0, len(sched.Slots))
	for _, s := range sched.Slots {
		slots = append(slots, &domain.Slot{
			ScheduleID: m.ID,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			IsBreak:    s.IsBreak,
			Status:     domain.SlotStatusAvailable,
		})
	}
	if len(slots) > 0 {
		if _, err := r.tx.NewInsert().Model(&slots).Exec(ctx); err != nil {
			return domain.Schedule{}, err
		}
	}

	m.Slots = slots
	return m, nil
}

func (r providerDayTx) ListSchedulesForDay(ctx context.Context, providerID string, date time.Time) ([]domain.Schedule, error) {
	var rows []domain.Schedule
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.DateOf(date)).
		Where("is_cancelled = FALSE").
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
