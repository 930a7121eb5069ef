package reconcile

import (
	"strings"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

// Index is a run-scoped materialized view of the application table keyed by
// lowercased company. It is rebuilt from storage at the start of every run
// and updated immediately after each write so later messages in the same
// batch observe earlier writes. The table remains the source of truth.
type Index struct {
	byCompany map[string][]*storage.Application
}

// NewIndex builds an index over the given rows. Rows whose company is the
// manual-review sentinel are not indexed: they never participate in identity
// matching.
func NewIndex(rows []storage.Application) *Index {
	idx := &Index{byCompany: make(map[string][]*storage.Application)}
	for i := range rows {
		idx.add(&rows[i])
	}
	return idx
}

func (idx *Index) add(app *storage.Application) {
	if app.Company == status.ManualReview {
		return
	}
	key := strings.ToLower(app.Company)
	idx.byCompany[key] = append(idx.byCompany[key], app)
}

// match finds the row an extraction should merge into. With a known title it
// requires an exact case-insensitive title match; otherwise it falls back to
// the most-recently-touched row for the company, tie-broken by highest rowid.
func (idx *Index) match(company, title string) *storage.Application {
	candidates := idx.byCompany[strings.ToLower(company)]
	if len(candidates) == 0 {
		return nil
	}

	if title != "" && title != status.ManualReview {
		for _, c := range candidates {
			if strings.EqualFold(c.JobTitle, title) {
				return c
			}
		}
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.LastUpdate.After(best.LastUpdate) ||
			(c.LastUpdate.Equal(best.LastUpdate) && c.RowID > best.RowID) {
			best = c
		}
	}
	return best
}

// Size returns the number of indexed rows.
func (idx *Index) Size() int {
	n := 0
	for _, rows := range idx.byCompany {
		n += len(rows)
	}
	return n
}
