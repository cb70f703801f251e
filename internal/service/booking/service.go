// Package booking is the slot lifecycle surface consumed by the booking
// collaborator. Every slot status change outside schedule-level cancellation
// goes through here; callers never touch status fields directly.
package booking

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"clinicsched/internal/domain"
	"clinicsched/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	repo store.ScheduleRepository
}

func NewService(repo store.ScheduleRepository) *Service {
	return &Service{repo: repo}
}

// Hold moves an available slot to pending for the given patient.
func (s *Service) Hold(ctx context.Context, slotID uuid.UUID, patientRef string) (domain.Slot, error) {
	if slotID == uuid.Nil {
		return domain.Slot{}, validationError("slot_id is required")
	}
	patientRef = strings.TrimSpace(patientRef)
	if patientRef == "" {
		return domain.Slot{}, validationError("patient_ref is required")
	}
	return s.repo.UpdateSlotStatus(ctx, slotID, domain.SlotStatusPending, patientRef)
}

// Confirm settles a pending slot into booked once payment confirmation
// arrives.
func (s *Service) Confirm(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	if slotID == uuid.Nil {
		return domain.Slot{}, validationError("slot_id is required")
	}
	return s.repo.UpdateSlotStatus(ctx, slotID, domain.SlotStatusBooked, "")
}

// Complete marks a booked slot's consultation as finished.
func (s *Service) Complete(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	if slotID == uuid.Nil {
		return domain.Slot{}, validationError("slot_id is required")
	}
	return s.repo.UpdateSlotStatus(ctx, slotID, domain.SlotStatusCompleted, "")
}

// Reschedule records a provider-initiated move of a booked slot.
func (s *Service) Reschedule(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	if slotID == uuid.Nil {
		return domain.Slot{}, validationError("slot_id is required")
	}
	return s.repo.UpdateSlotStatus(ctx, slotID, domain.SlotStatusRescheduled, "")
}

// Release cancels a pending hold that never settled.
func (s *Service) Release(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	if slotID == uuid.Nil {
		return domain.Slot{}, validationError("slot_id is required")
	}
	return s.repo.UpdateSlotStatus(ctx, slotID, domain.SlotStatusCancelled, "")
}
