package store

import (
	"context"
	"time"

	"clinicsched/internal/domain"
)

// ProviderDayTx is the transaction-scoped view the commit path works
// against while holding the provider's advisory lock.
type ProviderDayTx interface {
	InsertSchedule(ctx context.Context, sched domain.Schedule) (domain.Schedule, error)
	ListSchedulesForDay(ctx context.Context, providerID string, date time.Time) ([]domain.Schedule, error)
}
