package domain

// slotTransitions is the full status machine. completed and cancelled are
// terminal. rescheduled is reachable from booked only; a rescheduled slot can
// still be swept to cancelled by a schedule-level cancel.
var slotTransitions = map[SlotStatus]map[SlotStatus]bool{
	SlotStatusAvailable: {
		SlotStatusPending:   true,
		SlotStatusCancelled: true,
	},
	SlotStatusPending: {
		SlotStatusBooked:    true,
		SlotStatusCancelled: true,
	},
	SlotStatusBooked: {
		SlotStatusCompleted:   true,
		SlotStatusRescheduled: true,
		SlotStatusCancelled:   true,
	},
	SlotStatusRescheduled: {
		SlotStatusCancelled: true,
	},
	SlotStatusCompleted: {},
	SlotStatusCancelled: {},
}

// CanTransition reports whether a slot may move from its current status to
// the target. Break slots never enter the booking flow: the only move allowed
// for them is available to cancelled.
func CanTransition(slot Slot, to SlotStatus) bool {
	if slot.IsBreak {
		return slot.Status == SlotStatusAvailable && to == SlotStatusCancelled
	}
	return slotTransitions[slot.Status][to]
}

// IsTerminalStatus reports whether no further transition can leave the status.
func IsTerminalStatus(s SlotStatus) bool {
	return len(slotTransitions[s]) == 0
}

// ValidSlotStatus reports whether s is one of the known statuses.
func ValidSlotStatus(s SlotStatus) bool {
	_, ok := slotTransitions[s]
	return ok
}

// CancellationAction decides what a schedule-level cancel does to one slot:
// whether the slot transitions to cancelled, and whether a refund trigger is
// owed. booked slots are the only ones carrying money; completed and already
// cancelled slots are left untouched.
func CancellationAction(slot Slot) (cancel bool, refund bool) {
	switch slot.Status {
	case SlotStatusAvailable, SlotStatusPending, SlotStatusRescheduled:
		return true, false
	case SlotStatusBooked:
		return true, true
	default:
		return false, false
	}
}
