package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinicsched/internal/domain"
	"clinicsched/internal/store"
)

// The repo opens its own transactions, so the throwaway schema is installed
// on the session instead of with SET LOCAL; MaxOpenConns 1 pins every query
// to that session.
func openTestRepo(t *testing.T) *ScheduleRepo {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("CLINICSCHED_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINICSCHED_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "clinicsched_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema error: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path error: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("applyMigrations error: %v", err)
	}

	return NewScheduleRepo(db)
}

func testSchedule(day time.Time, startHour, endHour, durationMinutes int) domain.Schedule {
	start := day.Add(time.Duration(startHour) * time.Hour)
	end := day.Add(time.Duration(endHour) * time.Hour)
	sched := domain.Schedule{
		ProviderID:          "doc-1",
		ServiceID:           "svc-1",
		Date:                day,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: durationMinutes,
	}
	for _, span := range domain.SliceRange(start, end, time.Duration(durationMinutes)*time.Minute) {
		sched.Slots = append(sched.Slots, &domain.Slot{
			StartTime: span.Start,
			EndTime:   span.End,
			Status:    domain.SlotStatusAvailable,
		})
	}
	return sched
}

func TestPostgresIntegration_CommitOverlapAndBatch(t *testing.T) {
	repo := openTestRepo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	morning, err := repo.Commit(ctx, testSchedule(day, 9, 10, 20))
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if morning.ID == uuid.Nil {
		t.Fatalf("expected non-nil schedule id")
	}
	if len(morning.Slots) != 3 {
		t.Fatalf("len(slots) = %d, want 3", len(morning.Slots))
	}
	for i, slot := range morning.Slots {
		if slot.ID == uuid.Nil {
			t.Fatalf("slot %d missing id", i)
		}
		if slot.Status != domain.SlotStatusAvailable {
			t.Fatalf("slot %d status = %s, want available", i, slot.Status)
		}
	}

	overlapping := testSchedule(day, 9, 11, 30)
	overlapping.StartTime = day.Add(9*time.Hour + 30*time.Minute)
	_, err = repo.Commit(ctx, overlapping)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want %v", err, store.ErrConflict)
	}
	if !strings.Contains(err.Error(), "2026-01-05") || !strings.Contains(err.Error(), "09:00-10:00") {
		t.Fatalf("overlap message = %q", err.Error())
	}

	if _, err := repo.Commit(ctx, testSchedule(day, 10, 11, 30)); err != nil {
		t.Fatalf("back-to-back Commit error: %v", err)
	}

	rows, err := repo.ListForDay(ctx, "doc-1", day)
	if err != nil {
		t.Fatalf("ListForDay error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	nextDay := day.AddDate(0, 0, 1)
	outcomes, err := repo.CommitBatch(ctx, []domain.Schedule{
		testSchedule(day, 9, 10, 20),      // conflicts with the morning schedule
		testSchedule(nextDay, 9, 10, 20),  // clean
		testSchedule(nextDay, 14, 15, 20), // clean
	})
	if err != nil {
		t.Fatalf("CommitBatch error: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("len(outcomes) = %d, want 3", len(outcomes))
	}
	if !outcomes[0].Skipped || outcomes[0].Reason == "" {
		t.Fatalf("outcome 0 = %+v, want skipped with reason", outcomes[0])
	}
	for i := 1; i < 3; i++ {
		if outcomes[i].Skipped || outcomes[i].ScheduleID == uuid.Nil {
			t.Fatalf("outcome %d = %+v, want committed", i, outcomes[i])
		}
	}
}

func TestPostgresIntegration_SlotLifecycleAndCancel(t *testing.T) {
	repo := openTestRepo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	sched, err := repo.Commit(ctx, testSchedule(day, 9, 10, 20))
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	booked := sched.Slots[0]
	held := sched.Slots[1]

	slot, err := repo.UpdateSlotStatus(ctx, booked.ID, domain.SlotStatusPending, "patient-1")
	if err != nil {
		t.Fatalf("hold error: %v", err)
	}
	if slot.Status != domain.SlotStatusPending || slot.PatientRef == nil || *slot.PatientRef != "patient-1" {
		t.Fatalf("held slot = %+v", slot)
	}

	if _, err := repo.UpdateSlotStatus(ctx, booked.ID, domain.SlotStatusBooked, ""); err != nil {
		t.Fatalf("confirm error: %v", err)
	}

	// available -> booked skips pending and must be rejected
	_, err = repo.UpdateSlotStatus(ctx, held.ID, domain.SlotStatusBooked, "")
	if !errors.Is(err, store.ErrStateConflict) {
		t.Fatalf("invalid transition err = %v, want %v", err, store.ErrStateConflict)
	}

	if _, err := repo.UpdateSlotStatus(ctx, held.ID, domain.SlotStatusPending, "patient-2"); err != nil {
		t.Fatalf("hold error: %v", err)
	}

	missing, _ := uuid.NewV7()
	if _, err := repo.UpdateSlotStatus(ctx, missing, domain.SlotStatusPending, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing slot err = %v, want %v", err, store.ErrNotFound)
	}

	result, err := repo.Cancel(ctx, sched.ID, "doctor unavailable")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if result.AlreadyCancelled {
		t.Fatalf("first cancel flagged AlreadyCancelled")
	}
	if !result.Schedule.IsCancelled || result.Schedule.CancellationReason != "doctor unavailable" {
		t.Fatalf("schedule after cancel = %+v", result.Schedule)
	}
	// only the booked slot triggers a refund; held and available ones do not
	if len(result.RefundEvents) != 1 {
		t.Fatalf("len(refund events) = %d, want 1", len(result.RefundEvents))
	}
	if result.RefundEvents[0].SlotID != booked.ID || result.RefundEvents[0].PatientRef != "patient-1" {
		t.Fatalf("refund event = %+v", result.RefundEvents[0])
	}
	for i, slot := range result.Schedule.Slots {
		if slot.Status != domain.SlotStatusCancelled {
			t.Fatalf("slot %d status = %s, want cancelled", i, slot.Status)
		}
		if slot.PatientRef != nil {
			t.Fatalf("slot %d kept patient ref", i)
		}
	}

	again, err := repo.Cancel(ctx, sched.ID, "second call")
	if err != nil {
		t.Fatalf("repeat Cancel error: %v", err)
	}
	if !again.AlreadyCancelled {
		t.Fatalf("repeat cancel not flagged AlreadyCancelled")
	}
	if len(again.RefundEvents) != 0 {
		t.Fatalf("repeat cancel emitted %d refund events", len(again.RefundEvents))
	}
	if again.Schedule.CancellationReason != "doctor unavailable" {
		t.Fatalf("repeat cancel overwrote reason: %q", again.Schedule.CancellationReason)
	}

	// cancelled schedules leave the overlap window
	if _, err := repo.Commit(ctx, testSchedule(day, 9, 10, 20)); err != nil {
		t.Fatalf("Commit over cancelled schedule error: %v", err)
	}

	if _, err := repo.Cancel(ctx, missing, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing schedule err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_GetAndList(t *testing.T) {
	repo := openTestRepo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	first, err := repo.Commit(ctx, testSchedule(day, 9, 10, 20))
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	second, err := repo.Commit(ctx, testSchedule(day.AddDate(0, 0, 1), 9, 10, 20))
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != first.ID || len(got.Slots) != 3 {
		t.Fatalf("Get = id %s with %d slots", got.ID, len(got.Slots))
	}

	missing, _ := uuid.NewV7()
	if _, err := repo.Get(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get missing err = %v, want %v", err, store.ErrNotFound)
	}

	page, err := repo.List(ctx, store.ScheduleFilter{ProviderID: "doc-1"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if page.Total != 2 || len(page.Schedules) != 2 {
		t.Fatalf("page = %d/%d, want 2/2", len(page.Schedules), page.Total)
	}
	if page.Schedules[0].ID != first.ID {
		t.Fatalf("ascending order starts with %s, want %s", page.Schedules[0].ID, first.ID)
	}

	page, err = repo.List(ctx, store.ScheduleFilter{ProviderID: "doc-1", SortDesc: true, Limit: 1})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if page.Total != 2 || len(page.Schedules) != 1 {
		t.Fatalf("page = %d/%d, want 1/2", len(page.Schedules), page.Total)
	}
	if page.Schedules[0].ID != second.ID {
		t.Fatalf("descending order starts with %s, want %s", page.Schedules[0].ID, second.ID)
	}

	if _, err := repo.Cancel(ctx, second.ID, "closing day"); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	page, err = repo.List(ctx, store.ScheduleFilter{ProviderID: "doc-1"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("total after cancel = %d, want 1", page.Total)
	}
	page, err = repo.List(ctx, store.ScheduleFilter{ProviderID: "doc-1", IncludeCancelled: true})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total with cancelled = %d, want 2", page.Total)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

func applyMigrations(ctx context.Context, db *bun.DB) error {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("runtime.Caller failed")
	}
	dir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations"))

	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(paths)

	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		upSQL, err := gooseUpSection(string(b))
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		for _, stmt := range strings.Split(upSQL, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			// the extension must land in public, not the throwaway schema
			if upper := strings.ToUpper(stmt); strings.HasPrefix(upper, "CREATE EXTENSION") && !strings.Contains(upper, " SCHEMA ") {
				stmt += " SCHEMA public"
			}
			if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		}
	}
	return nil
}

func gooseUpSection(sql string) (string, error) {
	const upMarker = "-- +goose Up"
	const downMarker = "-- +goose Down"

	_, up, found := strings.Cut(sql, upMarker)
	if !found {
		return "", fmt.Errorf("missing goose up marker")
	}
	if before, _, found := strings.Cut(up, downMarker); found {
		up = before
	}
	return strings.TrimSpace(up), nil
}
