// Package aggregate derives presentation views from the application table:
// funnel counts, platform distribution, and weekly application volume.
package aggregate

import (
	"sort"
	"time"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

// Count is one (label, count) pair of a view.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Aggregates is the full derived view set. An empty table yields empty
// slices, not an error.
type Aggregates struct {
	Funnel    []Count `json:"funnel"`
	Platforms []Count `json:"platforms"`
	Weekly    []Count `json:"weekly"`
}

// Compute scans the current rows and recomputes every view. Pure: no side
// effects on the rows.
func Compute(rows []storage.Application) Aggregates {
	return Aggregates{
		Funnel:    funnelCounts(rows),
		Platforms: platformCounts(rows),
		Weekly:    weeklyCounts(rows),
	}
}

// funnelCounts buckets current statuses into the fixed stage order. Stages
// with zero rows are kept so the funnel shape is stable.
func funnelCounts(rows []storage.Application) []Count {
	byStatus := make(map[string]int)
	for _, r := range rows {
		byStatus[r.Status]++
	}
	out := make([]Count, 0, len(status.FunnelOrder()))
	for _, stage := range status.FunnelOrder() {
		out = append(out, Count{Label: stage, Count: byStatus[stage]})
	}
	return out
}

// PeakFunnel buckets peak statuses into the fixed stage order, showing how
// far applications got regardless of final outcome.
func PeakFunnel(rows []storage.Application) []Count {
	byPeak := make(map[string]int)
	for _, r := range rows {
		byPeak[r.PeakStatus]++
	}
	out := make([]Count, 0, len(status.FunnelOrder()))
	for _, stage := range status.FunnelOrder() {
		out = append(out, Count{Label: stage, Count: byPeak[stage]})
	}
	return out
}

func platformCounts(rows []storage.Application) []Count {
	byPlatform := make(map[string]int)
	for _, r := range rows {
		p := r.Platform
		if p == "" {
			p = "Other"
		}
		byPlatform[p]++
	}
	out := make([]Count, 0, len(byPlatform))
	for p, n := range byPlatform {
		out = append(out, Count{Label: p, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// weeklyCounts buckets rows by the Monday of their email date's ISO week,
// ascending.
func weeklyCounts(rows []storage.Application) []Count {
	byWeek := make(map[string]int)
	for _, r := range rows {
		if r.EmailDate.IsZero() {
			continue
		}
		byWeek[WeekStart(r.EmailDate).Format("2006-01-02")]++
	}
	out := make([]Count, 0, len(byWeek))
	for w, n := range byWeek {
		out = append(out, Count{Label: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// WeekStart returns the Monday 00:00 UTC of t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	// time.Weekday is Sunday-based; shift so Monday is day 0.
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
