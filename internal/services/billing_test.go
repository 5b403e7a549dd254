package services

import (
	"testing"
	"time"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
)

func TestProportionalCaptureAmount(t *testing.T) {
	tests := []struct {
		name     string
		held     int64
		duration int
		billed   int
		want     int64
	}{
		{"half of the hold", 10000, 20, 10, 5000},
		{"ceiling rounding", 999, 7, 1, 143},
		{"full duration returns hold", 10000, 20, 20, 10000},
		{"billed beyond duration caps at hold", 10000, 20, 25, 10000},
		{"zero billed still captures minimum", 10000, 20, 0, 1},
		{"one minute of a long call", 10000, 60, 1, 167},
		{"zero hold", 0, 20, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProportionalCaptureAmount(tt.held, tt.duration, tt.billed)
			if got != tt.want {
				t.Errorf("ProportionalCaptureAmount(%d, %d, %d) = %d, want %d",
					tt.held, tt.duration, tt.billed, got, tt.want)
			}
		})
	}
}

func TestProportionalCaptureAmountMonotonic(t *testing.T) {
	const held = 999
	const duration = 7

	prev := int64(0)
	for billed := 0; billed <= duration; billed++ {
		got := ProportionalCaptureAmount(held, duration, billed)
		if got < prev {
			t.Fatalf("capture amount decreased at billed=%d: %d -> %d", billed, prev, got)
		}
		if got > held {
			t.Fatalf("capture amount %d exceeds hold %d at billed=%d", got, held, billed)
		}
		prev = got
	}
	if prev != held {
		t.Errorf("full billing should capture the whole hold, got %d", prev)
	}
}

func TestResolveBillableMinutes(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	after := func(d time.Duration) *time.Time {
		end := start.Add(d)
		return &end
	}
	recorded := func(v int) *int { return &v }

	tests := []struct {
		name        string
		recorded    *int
		startedAt   *time.Time
		completedAt *time.Time
		reason      models.EndedReason
		duration    int
		want        int
	}{
		{"recorded value wins", recorded(12), &start, after(3 * time.Minute), models.EndedByCompanion, 20, 12},
		{"recorded value clamped to duration", recorded(45), &start, after(3 * time.Minute), models.EndedBySpeaker, 20, 20},
		{"recorded zero falls through to policy", recorded(0), &start, after(15 * time.Minute), models.EndedByCompanion, 20, 15},
		{"companion hangup under the floor", nil, &start, after(3 * time.Minute), models.EndedByCompanion, 20, 10},
		{"companion hangup over the floor", nil, &start, after(15 * time.Minute), models.EndedByCompanion, 20, 15},
		{"companion hangup floor above short duration", nil, &start, after(2 * time.Minute), models.EndedByCompanion, 5, 5},
		{"speaker hangup bills full duration", nil, &start, after(3 * time.Minute), models.EndedBySpeaker, 20, 20},
		{"timeout bills full duration", nil, &start, after(3 * time.Minute), models.EndedByTimeout, 20, 20},
		{"partial minute rounds up", nil, &start, after(2*time.Minute + time.Second), models.EndedByCompanion, 20, 10},
		{"long partial minute rounds up past floor", nil, &start, after(10*time.Minute + time.Second), models.EndedByCompanion, 20, 11},
		{"missing timestamps with companion reason", nil, nil, nil, models.EndedByCompanion, 20, 10},
		{"completion before start floors at zero elapsed", nil, after(10 * time.Minute), &start, models.EndedByCompanion, 20, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveBillableMinutes(tt.recorded, tt.startedAt, tt.completedAt, tt.reason, tt.duration)
			if got != tt.want {
				t.Errorf("ResolveBillableMinutes() = %d, want %d", got, tt.want)
			}
		})
	}
}
