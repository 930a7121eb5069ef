package aggregate

import (
	"testing"
	"time"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

func TestCompute_EmptyTable(t *testing.T) {
	got := Compute(nil)

	if len(got.Funnel) != len(status.FunnelOrder()) {
		t.Errorf("Funnel stages = %d, want %d", len(got.Funnel), len(status.FunnelOrder()))
	}
	for _, c := range got.Funnel {
		if c.Count != 0 {
			t.Errorf("stage %q = %d, want 0", c.Label, c.Count)
		}
	}
	if len(got.Platforms) != 0 {
		t.Errorf("Platforms = %v, want empty", got.Platforms)
	}
	if len(got.Weekly) != 0 {
		t.Errorf("Weekly = %v, want empty", got.Weekly)
	}
}

func TestFunnel_KeepsZeroStagesInOrder(t *testing.T) {
	rows := []storage.Application{
		{Status: status.Applied},
		{Status: status.Applied},
		{Status: status.Rejected},
	}
	got := Compute(rows).Funnel

	counts := make(map[string]int)
	for _, c := range got {
		counts[c.Label] = c.Count
	}
	if counts[status.Applied] != 2 || counts[status.Rejected] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if got[0].Label != status.Applied {
		t.Errorf("first stage = %q, want Applied", got[0].Label)
	}
	if counts[status.Interview] != 0 {
		t.Errorf("Interview = %d, want 0", counts[status.Interview])
	}
}

func TestPeakFunnel_CountsPeakNotCurrent(t *testing.T) {
	rows := []storage.Application{
		{Status: status.Rejected, PeakStatus: status.Interview},
		{Status: status.Rejected, PeakStatus: status.Applied},
	}
	got := PeakFunnel(rows)

	counts := make(map[string]int)
	for _, c := range got {
		counts[c.Label] = c.Count
	}
	if counts[status.Interview] != 1 || counts[status.Applied] != 1 {
		t.Errorf("peak counts = %v", counts)
	}
	if counts[status.Rejected] != 0 {
		t.Errorf("Rejected peak = %d, want 0", counts[status.Rejected])
	}
}

func TestPlatforms_SortedByCountThenLabel(t *testing.T) {
	rows := []storage.Application{
		{Platform: "LinkedIn"},
		{Platform: "LinkedIn"},
		{Platform: "Indeed"},
		{Platform: ""},
	}
	got := Compute(rows).Platforms

	want := []Count{
		{Label: "LinkedIn", Count: 2},
		{Label: "Indeed", Count: 1},
		{Label: "Other", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("Platforms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Platforms[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWeekly_BucketsByMonday(t *testing.T) {
	// Wed Mar 5 and Fri Mar 7 2025 share the Mar 3 week; Mon Mar 10 starts a new one.
	rows := []storage.Application{
		{EmailDate: time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)},
		{EmailDate: time.Date(2025, 3, 7, 23, 0, 0, 0, time.UTC)},
		{EmailDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{}, // zero date is skipped
	}
	got := Compute(rows).Weekly

	want := []Count{
		{Label: "2025-03-03", Count: 2},
		{Label: "2025-03-10", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("Weekly = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Weekly[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), "2025-03-03"},  // Monday maps to itself
		{time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC), "2025-03-03"}, // Sunday belongs to preceding Monday
		{time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), "2025-03-10"},
	}
	for _, tt := range tests {
		if got := WeekStart(tt.in).Format("2006-01-02"); got != tt.want {
			t.Errorf("WeekStart(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
