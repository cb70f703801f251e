package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clinicsched/internal/domain"
)

func (s *Server) holdSlot(c *gin.Context) {
	log := s.log.With(slog.String("handler", "HoldSlot"))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot id must be a UUID"})
		return
	}

	var req holdSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patientRef is required"})
		return
	}

	slot, err := s.book.Hold(c.Request.Context(), id, req.PatientRef)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	log.Info("slot held",
		slog.String("slot_id", id.String()),
		slog.String("patient_ref", req.PatientRef),
	)
	c.JSON(http.StatusOK, toSlotResponse(slot))
}

func (s *Server) confirmSlot(c *gin.Context) {
	s.transitionSlot(c, "ConfirmSlot", s.book.Confirm)
}

func (s *Server) completeSlot(c *gin.Context) {
	s.transitionSlot(c, "CompleteSlot", s.book.Complete)
}

func (s *Server) rescheduleSlot(c *gin.Context) {
	s.transitionSlot(c, "RescheduleSlot", s.book.Reschedule)
}

func (s *Server) releaseSlot(c *gin.Context) {
	s.transitionSlot(c, "ReleaseSlot", s.book.Release)
}

func (s *Server) transitionSlot(c *gin.Context, handler string, fn func(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)) {
	log := s.log.With(slog.String("handler", handler))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot id must be a UUID"})
		return
	}

	slot, err := fn(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, log, err)
		return
	}

	log.Info("slot transitioned",
		slog.String("slot_id", id.String()),
		slog.String("status", string(slot.Status)),
	)
	c.JSON(http.StatusOK, toSlotResponse(slot))
}
