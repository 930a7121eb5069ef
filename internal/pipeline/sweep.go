package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

// SweepStore is the persistence surface the staleness sweep needs.
type SweepStore interface {
	ListApplications() ([]storage.Application, error)
	UpdateApplication(storage.Application) error
}

// SweepStale forces status Rejected on applications with no activity since
// the cutoff. Peak status is untouched — the sweep records an inferred
// outcome, not progress. Rows already in a terminal state are skipped.
// Returns the number of rows swept.
func SweepStale(store SweepStore, inactiveFor time.Duration, now time.Time) (int, error) {
	rows, err := store.ListApplications()
	if err != nil {
		return 0, fmt.Errorf("loading applications: %w", err)
	}

	cutoff := now.Add(-inactiveFor)
	swept := 0
	for _, app := range rows {
		switch app.Status {
		case status.Rejected, status.Accepted, status.Withdrawn:
			continue
		}
		if !app.LastUpdate.Before(cutoff) {
			continue
		}

		app.Status = status.Rejected
		app.ProcessedAt = now.UTC()
		if err := store.UpdateApplication(app); err != nil {
			return swept, fmt.Errorf("sweeping application %s: %w", app.ID, err)
		}
		slog.Info("marked stale application rejected",
			"company", app.Company, "title", app.JobTitle,
			"last_update", app.LastUpdate.Format(time.RFC3339))
		swept++
	}
	return swept, nil
}
