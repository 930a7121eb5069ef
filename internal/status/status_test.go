package status

import "testing"

func TestRank_ProgressionOrder(t *testing.T) {
	order := []string{Applied, Viewed, Assessment, Interview, Offer}
	for i := 1; i < len(order); i++ {
		if Rank(order[i-1]) >= Rank(order[i]) {
			t.Errorf("Rank(%q) = %d, want less than Rank(%q) = %d",
				order[i-1], Rank(order[i-1]), order[i], Rank(order[i]))
		}
	}
}

func TestRank_UnknownIsZero(t *testing.T) {
	for _, s := range []string{Rejected, Accepted, Withdrawn, UpdateOther, ManualReview, "", "Ghosted"} {
		if got := Rank(s); got != 0 {
			t.Errorf("Rank(%q) = %d, want 0", s, got)
		}
	}
}

func TestPeakExcluded(t *testing.T) {
	excluded := []string{Rejected, Accepted, Withdrawn, ManualReview, UpdateOther}
	for _, s := range excluded {
		if !PeakExcluded(s) {
			t.Errorf("PeakExcluded(%q) = false, want true", s)
		}
	}
	included := []string{Applied, Viewed, Assessment, Interview, Offer}
	for _, s := range included {
		if PeakExcluded(s) {
			t.Errorf("PeakExcluded(%q) = true, want false", s)
		}
	}
}

func TestKnown(t *testing.T) {
	for _, s := range All() {
		if !Known(s) {
			t.Errorf("Known(%q) = false, want true", s)
		}
	}
	if !Known(ManualReview) {
		t.Error("Known(ManualReview) = false, want true")
	}
	for _, s := range []string{"", "applied", "Ghosted", "interview scheduled"} {
		if Known(s) {
			t.Errorf("Known(%q) = true, want false", s)
		}
	}
}

func TestFunnelOrder_CoversAllStatuses(t *testing.T) {
	order := FunnelOrder()
	seen := make(map[string]bool, len(order))
	for _, s := range order {
		seen[s] = true
	}
	for _, s := range All() {
		if !seen[s] {
			t.Errorf("FunnelOrder missing %q", s)
		}
	}
	if !seen[ManualReview] {
		t.Error("FunnelOrder missing the sentinel stage")
	}
}
