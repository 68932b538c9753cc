package model

import (
	"testing"
	"time"
)

// TestPageViewSeal tests that sealing computes a non-negative dwell time.
func TestPageViewSeal(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		sealAt   time.Time
		expected time.Duration
	}{
		{"normal dwell", start.Add(90 * time.Second), 90 * time.Second},
		{"instant seal", start, 0},
		{"clock went backwards", start.Add(-5 * time.Second), 0},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			view := &PageView{URL: "https://example.com/a", Start: start}
			view.Seal(tc.sealAt)

			if !view.Sealed() {
				t.Fatal("view must be sealed after Seal")
			}
			if view.Dwell != tc.expected {
				t.Errorf("dwell = %v, expected %v", view.Dwell, tc.expected)
			}
			if view.Dwell < 0 {
				t.Errorf("dwell must never be negative, got %v", view.Dwell)
			}
			if got := view.End.Sub(view.Start); got != view.Dwell {
				t.Errorf("dwell %v does not match end-start %v", view.Dwell, got)
			}
		})
	}
}

// TestPageViewSealIdempotent tests that a second seal does not move the
// end timestamp. A navigation boundary and an unload handler may both
// try to seal the same view.
func TestPageViewSealIdempotent(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	view := &PageView{URL: "https://example.com/a", Start: start}

	first := start.Add(10 * time.Second)
	view.Seal(first)
	view.Seal(start.Add(20 * time.Second))

	if !view.End.Equal(first) {
		t.Errorf("second seal moved end timestamp to %v, expected %v", view.End, first)
	}
	if view.Dwell != 10*time.Second {
		t.Errorf("dwell = %v, expected %v", view.Dwell, 10*time.Second)
	}
}

// TestValidCaptureEventType tests the interaction-type allow list.
func TestValidCaptureEventType(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		eventType string
		expected  bool
	}{
		{"click", true},
		{"input", true},
		{"scroll", true},
		{"keypress", true},
		{"focus", true},
		{"blur", true},
		{"select", true},
		{"navigate", false},
		{"", false},
		{"CLICK", false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.eventType, func(t *testing.T) {
			t.Parallel()
			if got := ValidCaptureEventType(tc.eventType); got != tc.expected {
				t.Errorf("ValidCaptureEventType(%q) = %v, expected %v",
					tc.eventType, got, tc.expected)
			}
		})
	}
}
