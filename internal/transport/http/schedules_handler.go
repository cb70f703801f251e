package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clinicsched/internal/domain"
	"clinicsched/internal/service/scheduling"
	"clinicsched/internal/store"
)

func (s *Server) validateSchedule(c *gin.Context) {
	log := s.log.With(slog.String("handler", "ValidateSchedule"))

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = s.sched.Validate(c.Request.Context(), in)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true})
	case errors.Is(err, store.ErrConflict):
		// The validate operation answers a question; a conflict is its
		// answer, not a request failure.
		log.Debug("validate found conflict", slog.String("reason", err.Error()))
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
	default:
		s.writeError(c, log, err)
	}
}

func (s *Server) previewSchedule(c *gin.Context) {
	log := s.log.With(slog.String("handler", "GenerateSlotsPreview"))

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preview, err := s.sched.GenerateSlotsPreview(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	log.Debug("preview generated",
		slog.String("provider_id", in.ProviderID),
		slog.Int("slot_count", preview.SlotCount),
	)
	c.JSON(http.StatusOK, toPreviewResponse(preview))
}

func (s *Server) commitSchedule(c *gin.Context) {
	log := s.log.With(slog.String("handler", "CommitSchedule"))

	var req commitScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	commit := scheduling.CommitInput{ScheduleInput: in}
	for _, slot := range req.Slots {
		commit.Slots = append(commit.Slots, domain.SlotSpan{
			Start:   slot.StartTime,
			End:     slot.EndTime,
			IsBreak: slot.IsBreak,
		})
	}

	sched, err := s.sched.CommitSchedule(c.Request.Context(), commit)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	log.Info("schedule committed",
		slog.String("schedule_id", sched.ID.String()),
		slog.String("provider_id", sched.ProviderID),
		slog.Time("start_time", sched.StartTime),
		slog.Time("end_time", sched.EndTime),
	)
	c.JSON(http.StatusCreated, toScheduleResponse(sched))
}

func (s *Server) previewRecurring(c *gin.Context) {
	log := s.log.With(slog.String("handler", "GenerateRecurringPreview"))

	var req recurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previews, err := s.sched.GenerateRecurringPreview(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	log.Debug("recurring preview generated",
		slog.String("provider_id", in.ProviderID),
		slog.Int("entries", len(previews)),
	)
	c.JSON(http.StatusOK, gin.H{"days": toDayPreviewResponses(previews)})
}

func (s *Server) commitRecurring(c *gin.Context) {
	log := s.log.With(slog.String("handler", "CommitRecurringSchedule"))

	var req recurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcomes, err := s.sched.CommitRecurringSchedule(c.Request.Context(), in)
	if err != nil && len(outcomes) == 0 {
		s.writeError(c, log, err)
		return
	}
	if err != nil {
		// Days committed before the failure stay committed; report them.
		log.Error("recurring commit ended early", slog.Any("err", err), slog.Int("committed", len(outcomes)))
	}

	log.Info("recurring schedule committed",
		slog.String("provider_id", in.ProviderID),
		slog.Int("outcomes", len(outcomes)),
	)
	c.JSON(http.StatusOK, gin.H{"results": toRecurringOutcomeResponses(outcomes)})
}

func (s *Server) listSchedules(c *gin.Context) {
	log := s.log.With(slog.String("handler", "FetchSchedules"))

	filter := store.ScheduleFilter{
		ProviderID:       c.Query("providerId"),
		ServiceID:        c.Query("serviceId"),
		IncludeCancelled: c.Query("includeCancelled") == "true",
		SortDesc:         c.Query("sort") == "desc",
	}

	if v := c.Query("dateFrom"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dateFrom must be formatted as " + dateLayout})
			return
		}
		filter.DateFrom = &t
	}
	if v := c.Query("dateTo"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dateTo must be formatted as " + dateLayout})
			return
		}
		filter.DateTo = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
			return
		}
		filter.Offset = n
	}

	page, err := s.sched.FetchSchedules(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	out := schedulePageResponse{
		Schedules: make([]scheduleResponse, 0, len(page.Schedules)),
		Total:     page.Total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}
	for _, sched := range page.Schedules {
		out.Schedules = append(out.Schedules, toScheduleResponse(sched))
	}

	log.Debug("schedules listed",
		slog.String("provider_id", filter.ProviderID),
		slog.Int("count", len(out.Schedules)),
		slog.Int("total", page.Total),
	)
	c.JSON(http.StatusOK, out)
}

func (s *Server) cancelSchedule(c *gin.Context) {
	log := s.log.With(slog.String("handler", "CancelSchedule"))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schedule id must be a UUID"})
		return
	}

	var req cancelScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cancellation reason is required"})
		return
	}

	res, err := s.sched.CancelSchedule(c.Request.Context(), id, req.Reason)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	log.Info("schedule cancelled",
		slog.String("schedule_id", id.String()),
		slog.Int("refund_events", len(res.RefundEvents)),
		slog.Bool("already_cancelled", res.AlreadyCancelled),
	)
	c.JSON(http.StatusOK, toCancelScheduleResponse(res))
}
