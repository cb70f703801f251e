package domain

import "time"

// SlotSpan is a candidate slot produced by slicing, before anything is
// persisted.
type SlotSpan struct {
	Start   time.Time
	End     time.Time
	IsBreak bool
}

// TimeBlock is a half-open absolute time range [Start, End).
type TimeBlock struct {
	Start time.Time
	End   time.Time
}

// SliceRange cuts [start, end) into consecutive spans of slotDuration. When
// the range is not an exact multiple of the duration the final span is
// truncated to end exactly at end, so the spans always cover the range with
// no gaps and no overlap. Returns nil when the inputs cannot produce a span.
func SliceRange(start, end time.Time, slotDuration time.Duration) []SlotSpan {
	if slotDuration <= 0 || !end.After(start) {
		return nil
	}

	total := end.Sub(start)
	count := int((total + slotDuration - 1) / slotDuration)
	out := make([]SlotSpan, 0, count)

	for cursor := start; cursor.Before(end); cursor = cursor.Add(slotDuration) {
		spanEnd := cursor.Add(slotDuration)
		if spanEnd.After(end) {
			spanEnd = end
		}
		out = append(out, SlotSpan{Start: cursor, End: spanEnd})
	}
	return out
}

// ApplyBreaks marks every span that intersects one of the given break blocks
// as a break. Break spans stay in the sequence; they are only excluded from
// booking, not from the slot count.
func ApplyBreaks(spans []SlotSpan, breaks []TimeBlock) []SlotSpan {
	if len(breaks) == 0 {
		return spans
	}
	out := make([]SlotSpan, len(spans))
	copy(out, spans)
	for i := range out {
		for _, b := range breaks {
			if Overlaps(out[i].Start, out[i].End, b.Start, b.End) {
				out[i].IsBreak = true
				break
			}
		}
	}
	return out
}
