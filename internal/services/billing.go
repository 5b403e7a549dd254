package services

import (
	"time"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
)

// minBilledMinutesOnCompanionHangup is the minimum-charge floor when the
// companion ends the call early, so very short cancellations still pay out.
const minBilledMinutesOnCompanionHangup = 10

// ResolveBillableMinutes decides how many of the committed minutes are
// charged, in priority order: a recorded positive billed-minutes value wins;
// otherwise elapsed minutes are derived from the start/completion timestamps
// and the termination-reason policy applies: a companion hangup bills
// max(floor, elapsed), while a speaker hangup or timeout bills the full
// committed duration. The result is always clamped to [0, duration].
func ResolveBillableMinutes(recorded *int, startedAt, completedAt *time.Time, reason models.EndedReason, durationMinutes int) int {
	if recorded != nil && *recorded > 0 {
		return clampMinutes(*recorded, durationMinutes)
	}

	elapsed := 0
	if startedAt != nil && completedAt != nil {
		if ms := completedAt.Sub(*startedAt).Milliseconds(); ms > 0 {
			elapsed = int((ms + 59999) / 60000)
		}
	}

	var billed int
	switch reason {
	case models.EndedByCompanion:
		billed = elapsed
		if billed < minBilledMinutesOnCompanionHangup {
			billed = minBilledMinutesOnCompanionHangup
		}
	case models.EndedBySpeaker, models.EndedByTimeout:
		// The speaker caused or timed out the termination; the full
		// committed duration is owed regardless of elapsed time.
		billed = durationMinutes
	default:
		billed = durationMinutes
	}

	return clampMinutes(billed, durationMinutes)
}

// ProportionalCaptureAmount prorates the held amount by the billed fraction
// of the committed duration, rounding up so fractional cents are never
// under-collected, then clamps to [1, held]: never capture zero, never
// exceed the hold.
func ProportionalCaptureAmount(heldMinor int64, durationMinutes, billedMinutes int) int64 {
	if heldMinor <= 0 {
		return 0
	}
	if durationMinutes <= 0 || billedMinutes >= durationMinutes {
		return heldMinor
	}

	amount := (heldMinor*int64(billedMinutes) + int64(durationMinutes) - 1) / int64(durationMinutes)
	if amount < 1 {
		amount = 1
	}
	if amount > heldMinor {
		amount = heldMinor
	}
	return amount
}

func clampMinutes(minutes, durationMinutes int) int {
	if minutes < 0 {
		return 0
	}
	if minutes > durationMinutes {
		return durationMinutes
	}
	return minutes
}
