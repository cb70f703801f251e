// Package http exposes the scheduling engine over HTTP/JSON.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clinicsched/internal/domain"
	"clinicsched/internal/service/booking"
	"clinicsched/internal/service/scheduling"
	"clinicsched/internal/store"
)

type schedulingService interface {
	Validate(ctx context.Context, in scheduling.ScheduleInput) error
	GenerateSlotsPreview(ctx context.Context, in scheduling.ScheduleInput) (scheduling.Preview, error)
	CommitSchedule(ctx context.Context, in scheduling.CommitInput) (domain.Schedule, error)
	GenerateRecurringPreview(ctx context.Context, in scheduling.RecurringInput) ([]scheduling.DayPreview, error)
	CommitRecurringSchedule(ctx context.Context, in scheduling.RecurringInput) ([]store.RecurringDayOutcome, error)
	FetchSchedules(ctx context.Context, filter store.ScheduleFilter) (store.SchedulePage, error)
	CancelSchedule(ctx context.Context, scheduleID uuid.UUID, reason string) (store.CancelResult, error)
}

type bookingService interface {
	Hold(ctx context.Context, slotID uuid.UUID, patientRef string) (domain.Slot, error)
	Confirm(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)
	Complete(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)
	Reschedule(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)
	Release(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)
}

type Server struct {
	sched schedulingService
	book  bookingService
	log   *slog.Logger
}

func NewServer(sched schedulingService, book bookingService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		sched: sched,
		book:  book,
		log:   log.With(slog.String("component", "http")),
	}
}

func (s *Server) Register(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	schedules := v1.Group("/schedules")
	schedules.POST("/validate", s.validateSchedule)
	schedules.POST("/preview", s.previewSchedule)
	schedules.POST("", s.commitSchedule)
	schedules.POST("/recurring/preview", s.previewRecurring)
	schedules.POST("/recurring", s.commitRecurring)
	schedules.GET("", s.listSchedules)
	schedules.POST("/:id/cancel", s.cancelSchedule)

	slots := v1.Group("/slots")
	slots.POST("/:id/hold", s.holdSlot)
	slots.POST("/:id/confirm", s.confirmSlot)
	slots.POST("/:id/complete", s.completeSlot)
	slots.POST("/:id/reschedule", s.rescheduleSlot)
	slots.POST("/:id/release", s.releaseSlot)
}

// writeError maps the engine's error taxonomy onto HTTP statuses: malformed
// input 400, conflicts and illegal transitions 409, missing rows 404,
// everything else a logged 500.
func (s *Server) writeError(c *gin.Context, log *slog.Logger, err error) {
	var schedValidation *scheduling.ValidationError
	var bookValidation *booking.ValidationError
	switch {
	case errors.As(err, &schedValidation), errors.As(err, &bookValidation):
		log.Warn("invalid request", slog.Any("err", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrStateConflict):
		log.Info("state conflict", slog.Any("err", err))
		c.JSON(http.StatusConflict, gin.H{"error": "slot status does not allow this transition"})
	case errors.Is(err, store.ErrConflict):
		log.Info("schedule conflict", slog.Any("err", err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", slog.Any("err", err))
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		log.Error("request failed", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
