package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from SlotStatus
		to   SlotStatus
		want bool
	}{
		{"available_to_pending", SlotStatusAvailable, SlotStatusPending, true},
		{"available_to_cancelled", SlotStatusAvailable, SlotStatusCancelled, true},
		{"available_to_booked_skips_pending", SlotStatusAvailable, SlotStatusBooked, false},
		{"pending_to_booked", SlotStatusPending, SlotStatusBooked, true},
		{"pending_to_cancelled", SlotStatusPending, SlotStatusCancelled, true},
		{"pending_to_rescheduled", SlotStatusPending, SlotStatusRescheduled, false},
		{"booked_to_completed", SlotStatusBooked, SlotStatusCompleted, true},
		{"booked_to_rescheduled", SlotStatusBooked, SlotStatusRescheduled, true},
		{"booked_to_cancelled", SlotStatusBooked, SlotStatusCancelled, true},
		{"rescheduled_to_cancelled", SlotStatusRescheduled, SlotStatusCancelled, true},
		{"rescheduled_to_booked", SlotStatusRescheduled, SlotStatusBooked, false},
		{"completed_is_terminal", SlotStatusCompleted, SlotStatusCancelled, false},
		{"cancelled_is_terminal", SlotStatusCancelled, SlotStatusAvailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := Slot{Status: tt.from}
			if got := CanTransition(slot, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanTransition_BreakSlotsNeverEnterBookingFlow(t *testing.T) {
	br := Slot{Status: SlotStatusAvailable, IsBreak: true}

	if CanTransition(br, SlotStatusPending) {
		t.Fatalf("break slot must not become pending")
	}
	if CanTransition(br, SlotStatusBooked) {
		t.Fatalf("break slot must not become booked")
	}
	if !CanTransition(br, SlotStatusCancelled) {
		t.Fatalf("break slot must be cancellable")
	}

	cancelled := Slot{Status: SlotStatusCancelled, IsBreak: true}
	if CanTransition(cancelled, SlotStatusAvailable) {
		t.Fatalf("cancelled break slot must stay cancelled")
	}
}

func TestIsTerminalStatus(t *testing.T) {
	if !IsTerminalStatus(SlotStatusCompleted) || !IsTerminalStatus(SlotStatusCancelled) {
		t.Fatalf("completed and cancelled are terminal")
	}
	for _, s := range []SlotStatus{SlotStatusAvailable, SlotStatusPending, SlotStatusBooked, SlotStatusRescheduled} {
		if IsTerminalStatus(s) {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}

func TestCancellationAction(t *testing.T) {
	tests := []struct {
		status     SlotStatus
		wantCancel bool
		wantRefund bool
	}{
		{SlotStatusAvailable, true, false},
		{SlotStatusPending, true, false},
		{SlotStatusRescheduled, true, false},
		{SlotStatusBooked, true, true},
		{SlotStatusCompleted, false, false},
		{SlotStatusCancelled, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			cancel, refund := CancellationAction(Slot{Status: tt.status})
			if cancel != tt.wantCancel || refund != tt.wantRefund {
				t.Fatalf("CancellationAction(%s) = (%v, %v), want (%v, %v)",
					tt.status, cancel, refund, tt.wantCancel, tt.wantRefund)
			}
		})
	}
}
