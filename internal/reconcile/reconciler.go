// Package reconcile merges email extractions into the tracked application
// table: create-vs-update decisions, field merge rules, and the monotone
// peak-status progression.
package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

// Extraction is one classified email, ready to fold into the table.
type Extraction struct {
	Company      string
	JobTitle     string
	Status       string
	Platform     string
	EmailDate    time.Time
	EmailID      string
	EmailSubject string
	EmailLink    string
}

// Unresolved reports whether any extracted field is the sentinel. A sentinel
// status counts: the row was written, but a human still has to read the email.
func (e Extraction) Unresolved() bool {
	return e.Company == status.ManualReview ||
		e.JobTitle == status.ManualReview ||
		e.Status == status.ManualReview
}

// RowStore is the subset of storage the reconciler writes through.
type RowStore interface {
	InsertApplication(storage.Application) (storage.Application, error)
	UpdateApplication(storage.Application) error
}

// Outcome describes the single row a reconciliation touched.
type Outcome struct {
	App     storage.Application
	Created bool
	Manual  bool // sentinel fields present; thread needs human review
}

// Reconciler folds extractions into the table through a run-scoped index.
type Reconciler struct {
	store  RowStore
	index  *Index
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Reconciler over the given index.
func New(store RowStore, index *Index) *Reconciler {
	return &Reconciler{
		store:  store,
		index:  index,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Apply folds one extraction into the table. Exactly one row is created or
// mutated — never both, never zero on success. The index is updated before
// returning so the next message in the batch sees this write.
func (r *Reconciler) Apply(ext Extraction) (Outcome, error) {
	if ext.Company == status.ManualReview {
		// Unresolved company: always a fresh row. Each gets a unique ID so
		// two manual-review emails can never spuriously merge.
		return r.create(ext)
	}

	if match := r.index.match(ext.Company, ext.JobTitle); match != nil {
		return r.update(match, ext)
	}
	return r.create(ext)
}

func (r *Reconciler) create(ext Extraction) (Outcome, error) {
	peak := ext.Status
	if status.PeakExcluded(peak) {
		// Terminal or ambiguous first sighting still means an application
		// exists; seed the funnel at the applied stage.
		peak = status.Applied
	}

	app := storage.Application{
		ID:           uuid.New().String(),
		ProcessedAt:  r.now().UTC(),
		EmailDate:    ext.EmailDate,
		Platform:     ext.Platform,
		Company:      ext.Company,
		JobTitle:     ext.JobTitle,
		Status:       ext.Status,
		PeakStatus:   peak,
		LastUpdate:   ext.EmailDate,
		EmailSubject: ext.EmailSubject,
		EmailLink:    ext.EmailLink,
		EmailID:      ext.EmailID,
	}

	app, err := r.store.InsertApplication(app)
	if err != nil {
		return Outcome{}, fmt.Errorf("creating application row: %w", err)
	}

	r.index.add(&app)
	r.logger.Debug("created application",
		"company", app.Company, "title", app.JobTitle, "status", app.Status)

	return Outcome{App: app, Created: true, Manual: ext.Unresolved()}, nil
}

func (r *Reconciler) update(app *storage.Application, ext Extraction) (Outcome, error) {
	// Email metadata always tracks the latest message.
	app.EmailSubject = ext.EmailSubject
	app.EmailLink = ext.EmailLink
	app.EmailID = ext.EmailID
	if ext.Platform != "" {
		app.Platform = ext.Platform
	}

	// Identity fields: never replace a resolved value with the sentinel.
	if ext.Company != status.ManualReview && ext.Company != app.Company {
		app.Company = ext.Company
	}
	if ext.JobTitle != status.ManualReview && ext.JobTitle != app.JobTitle {
		app.JobTitle = ext.JobTitle
	}

	// Dates only advance; an out-of-order older email never rolls them back.
	if ext.EmailDate.After(app.EmailDate) {
		app.EmailDate = ext.EmailDate
	}
	if ext.EmailDate.After(app.LastUpdate) {
		app.LastUpdate = ext.EmailDate
	}
	app.ProcessedAt = r.now().UTC()

	// Status moves forward by rank; Rejected and Offer Received interrupt
	// any pending stage unconditionally.
	newRank := status.Rank(ext.Status)
	if newRank >= status.Rank(app.Status) ||
		ext.Status == status.Rejected || ext.Status == status.Offer {
		app.Status = ext.Status
	}

	// Peak only rises, and never to an excluded status: a rejection does
	// not erase a recorded interview peak.
	if !status.PeakExcluded(ext.Status) && newRank > status.Rank(app.PeakStatus) {
		app.PeakStatus = ext.Status
	}

	if err := r.store.UpdateApplication(*app); err != nil {
		return Outcome{}, fmt.Errorf("updating application row %s: %w", app.ID, err)
	}

	r.logger.Debug("updated application",
		"company", app.Company, "title", app.JobTitle,
		"status", app.Status, "peak", app.PeakStatus)

	return Outcome{App: *app, Manual: ext.Unresolved()}, nil
}
