package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrRunInProgress is returned when a run lease is already held.
var ErrRunInProgress = errors.New("another run is in progress")

// Application is one tracked job application. One row aggregates every email
// observed for the same (company, job title) identity; EmailID is the most
// recent message that touched the row, not a foreign key.
type Application struct {
	ID           string
	RowID        int64 // SQLite rowid; tie-break for most-recently-touched lookups
	ProcessedAt  time.Time
	EmailDate    time.Time
	Platform     string
	Company      string
	JobTitle     string
	Status       string
	PeakStatus   string
	LastUpdate   time.Time
	EmailSubject string
	EmailLink    string
	EmailID      string
	Notes        string
}
