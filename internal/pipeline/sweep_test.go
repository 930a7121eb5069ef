package pipeline

import (
	"testing"
	"time"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

type sweepStore struct {
	rows    []storage.Application
	updated []storage.Application
}

func (s *sweepStore) ListApplications() ([]storage.Application, error) {
	return s.rows, nil
}

func (s *sweepStore) UpdateApplication(app storage.Application) error {
	s.updated = append(s.updated, app)
	return nil
}

func TestSweepStale(t *testing.T) {
	now := time.Date(2025, 3, 30, 12, 0, 0, 0, time.UTC)
	store := &sweepStore{rows: []storage.Application{
		// 40 days idle, still open: swept.
		{ID: "stale", Status: status.Applied, PeakStatus: status.Applied,
			LastUpdate: now.AddDate(0, 0, -40)},
		// 10 days idle: kept.
		{ID: "fresh", Status: status.Interview, PeakStatus: status.Interview,
			LastUpdate: now.AddDate(0, 0, -10)},
		// Terminal, however old: kept.
		{ID: "done", Status: status.Accepted, PeakStatus: status.Offer,
			LastUpdate: now.AddDate(0, 0, -90)},
		{ID: "gone", Status: status.Rejected, PeakStatus: status.Interview,
			LastUpdate: now.AddDate(0, 0, -90)},
	}}

	swept, err := SweepStale(store, 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("SweepStale() error = %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}
	if len(store.updated) != 1 || store.updated[0].ID != "stale" {
		t.Fatalf("updated = %+v, want only the stale row", store.updated)
	}
	got := store.updated[0]
	if got.Status != status.Rejected {
		t.Errorf("Status = %q, want Rejected", got.Status)
	}
	if got.PeakStatus != status.Applied {
		t.Errorf("PeakStatus = %q, want untouched", got.PeakStatus)
	}
}

func TestSweepStale_EmptyTable(t *testing.T) {
	swept, err := SweepStale(&sweepStore{}, 30*24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SweepStale() error = %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0", swept)
	}
}
