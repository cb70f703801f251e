package http

import (
	"fmt"
	"time"

	"clinicsched/internal/domain"
	"clinicsched/internal/service/scheduling"
	"clinicsched/internal/store"
)

const dateLayout = "2006-01-02"
const clockLayout = "15:04"

type timeBlockRequest struct {
	StartTime time.Time `json:"startTime" binding:"required"`
	EndTime   time.Time `json:"endTime" binding:"required"`
}

type scheduleRequest struct {
	ProviderID      string             `json:"providerId" binding:"required"`
	ServiceID       string             `json:"serviceId" binding:"required"`
	Date            string             `json:"date" binding:"required"`
	StartTime       time.Time          `json:"startTime" binding:"required"`
	EndTime         time.Time          `json:"endTime" binding:"required"`
	DurationMinutes int                `json:"durationMinutes" binding:"required"`
	Breaks          []timeBlockRequest `json:"breaks"`
}

func (r scheduleRequest) toInput() (scheduling.ScheduleInput, error) {
	date, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return scheduling.ScheduleInput{}, fmt.Errorf("date must be formatted as %s", dateLayout)
	}
	in := scheduling.ScheduleInput{
		ProviderID:      r.ProviderID,
		ServiceID:       r.ServiceID,
		Date:            date,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		DurationMinutes: r.DurationMinutes,
	}
	for _, b := range r.Breaks {
		in.Breaks = append(in.Breaks, domain.TimeBlock{Start: b.StartTime, End: b.EndTime})
	}
	return in, nil
}

type slotSpanPayload struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	IsBreak   bool      `json:"isBreak"`
}

type commitScheduleRequest struct {
	scheduleRequest
	Slots []slotSpanPayload `json:"slots"`
}

type clockBlockRequest struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

type recurringRequest struct {
	ProviderID      string              `json:"providerId" binding:"required"`
	ServiceID       string              `json:"serviceId" binding:"required"`
	StartDate       string              `json:"startDate" binding:"required"`
	EndDate         string              `json:"endDate" binding:"required"`
	DurationMinutes int                 `json:"durationMinutes" binding:"required"`
	TimeBlocks      []clockBlockRequest `json:"timeBlocks" binding:"required"`
}

func (r recurringRequest) toInput() (scheduling.RecurringInput, error) {
	startDate, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return scheduling.RecurringInput{}, fmt.Errorf("startDate must be formatted as %s", dateLayout)
	}
	endDate, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return scheduling.RecurringInput{}, fmt.Errorf("endDate must be formatted as %s", dateLayout)
	}

	in := scheduling.RecurringInput{
		ProviderID:      r.ProviderID,
		ServiceID:       r.ServiceID,
		StartDate:       startDate,
		EndDate:         endDate,
		DurationMinutes: r.DurationMinutes,
	}
	for _, b := range r.TimeBlocks {
		start, err := time.Parse(clockLayout, b.Start)
		if err != nil {
			return scheduling.RecurringInput{}, fmt.Errorf("time block start must be formatted as %s", clockLayout)
		}
		end, err := time.Parse(clockLayout, b.End)
		if err != nil {
			return scheduling.RecurringInput{}, fmt.Errorf("time block end must be formatted as %s", clockLayout)
		}
		in.TimeBlocks = append(in.TimeBlocks, scheduling.ClockBlock{
			StartMinutes: start.Hour()*60 + start.Minute(),
			EndMinutes:   end.Hour()*60 + end.Minute(),
		})
	}
	return in, nil
}

type cancelScheduleRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type holdSlotRequest struct {
	PatientRef string `json:"patientRef" binding:"required"`
}

type slotResponse struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"scheduleId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	IsBreak    bool      `json:"isBreak"`
	Status     string    `json:"status"`
	PatientRef string    `json:"patientRef,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toSlotResponse(s domain.Slot) slotResponse {
	out := slotResponse{
		ID:         s.ID.String(),
		ScheduleID: s.ScheduleID.String(),
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		IsBreak:    s.IsBreak,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.PatientRef != nil {
		out.PatientRef = *s.PatientRef
	}
	return out
}

type scheduleResponse struct {
	ID                  string         `json:"id"`
	ProviderID          string         `json:"providerId"`
	ServiceID           string         `json:"serviceId"`
	Date                string         `json:"date"`
	StartTime           time.Time      `json:"startTime"`
	EndTime             time.Time      `json:"endTime"`
	SlotDurationMinutes int            `json:"durationMinutes"`
	IsCancelled         bool           `json:"isCancelled"`
	CancellationReason  string         `json:"cancellationReason,omitempty"`
	Slots               []slotResponse `json:"slots"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

func toScheduleResponse(s domain.Schedule) scheduleResponse {
	out := scheduleResponse{
		ID:                  s.ID.String(),
		ProviderID:          s.ProviderID,
		ServiceID:           s.ServiceID,
		Date:                s.Date.Format(dateLayout),
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		SlotDurationMinutes: s.SlotDurationMinutes,
		IsCancelled:         s.IsCancelled,
		CancellationReason:  s.CancellationReason,
		Slots:               make([]slotResponse, 0, len(s.Slots)),
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
	for _, slot := range s.Slots {
		out.Slots = append(out.Slots, toSlotResponse(*slot))
	}
	return out
}

type previewResponse struct {
	Slots         []slotSpanPayload `json:"slots"`
	SlotCount     int               `json:"slotCount"`
	BookableCount int               `json:"bookableCount"`
}

func toPreviewResponse(p scheduling.Preview) previewResponse {
	out := previewResponse{
		Slots:         make([]slotSpanPayload, 0, len(p.Slots)),
		SlotCount:     p.SlotCount,
		BookableCount: p.BookableCount,
	}
	for _, span := range p.Slots {
		out.Slots = append(out.Slots, slotSpanPayload{StartTime: span.Start, EndTime: span.End, IsBreak: span.IsBreak})
	}
	return out
}

type dayPreviewResponse struct {
	Date      string            `json:"date"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Conflict  bool              `json:"conflict"`
	Reason    string            `json:"reason,omitempty"`
	Slots     []slotSpanPayload `json:"slots,omitempty"`
}

func toDayPreviewResponses(previews []scheduling.DayPreview) []dayPreviewResponse {
	out := make([]dayPreviewResponse, 0, len(previews))
	for _, p := range previews {
		d := dayPreviewResponse{
			Date:      p.Date.Format(dateLayout),
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
			Conflict:  p.Conflict,
			Reason:    p.Reason,
		}
		for _, span := range p.Slots {
			d.Slots = append(d.Slots, slotSpanPayload{StartTime: span.Start, EndTime: span.End, IsBreak: span.IsBreak})
		}
		out = append(out, d)
	}
	return out
}

type recurringOutcomeResponse struct {
	Date       string    `json:"date"`
	BlockStart time.Time `json:"blockStart"`
	BlockEnd   time.Time `json:"blockEnd"`
	Success    bool      `json:"success"`
	ScheduleID string    `json:"scheduleId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

func toRecurringOutcomeResponses(outcomes []store.RecurringDayOutcome) []recurringOutcomeResponse {
	out := make([]recurringOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		r := recurringOutcomeResponse{
			Date:       o.Date.Format(dateLayout),
			BlockStart: o.BlockStart,
			BlockEnd:   o.BlockEnd,
			Success:    !o.Skipped,
			Reason:     o.Reason,
		}
		if !o.Skipped {
			r.ScheduleID = o.ScheduleID.String()
		}
		out = append(out, r)
	}
	return out
}

type refundEventResponse struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"scheduleId"`
	SlotID     string    `json:"slotId"`
	PatientRef string    `json:"patientRef"`
	ServiceID  string    `json:"serviceId"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

type cancelScheduleResponse struct {
	AlreadyCancelled bool                  `json:"alreadyCancelled"`
	Schedule         scheduleResponse      `json:"schedule"`
	RefundEvents     []refundEventResponse `json:"refundEvents"`
}

func toCancelScheduleResponse(res store.CancelResult) cancelScheduleResponse {
	out := cancelScheduleResponse{
		AlreadyCancelled: res.AlreadyCancelled,
		Schedule:         toScheduleResponse(res.Schedule),
		RefundEvents:     make([]refundEventResponse, 0, len(res.RefundEvents)),
	}
	for _, ev := range res.RefundEvents {
		out.RefundEvents = append(out.RefundEvents, refundEventResponse{
			ID:         ev.ID.String(),
			ScheduleID: ev.ScheduleID.String(),
			SlotID:     ev.SlotID.String(),
			PatientRef: ev.PatientRef,
			ServiceID:  ev.ServiceID,
			Reason:     ev.Reason,
			CreatedAt:  ev.CreatedAt,
		})
	}
	return out
}

type schedulePageResponse struct {
	Schedules []scheduleResponse `json:"schedules"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}
