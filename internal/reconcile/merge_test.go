package reconcile

import (
	"testing"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

func TestMerge_FillsSentinelIdentity(t *testing.T) {
	dst := storage.Application{
		ID: "dst", Company: status.ManualReview, JobTitle: status.ManualReview,
		Status: status.Applied, PeakStatus: status.Applied,
		EmailDate: day(2), LastUpdate: day(2),
	}
	src := storage.Application{
		ID: "src", Company: "Acme", JobTitle: "Dev",
		Status: status.Applied, PeakStatus: status.Applied,
		EmailDate: day(1), LastUpdate: day(1),
	}

	got := Merge(dst, src)
	if got.Company != "Acme" || got.JobTitle != "Dev" {
		t.Errorf("identity = %q/%q, want Acme/Dev", got.Company, got.JobTitle)
	}
	// Older source: destination status and metadata stay.
	if !got.EmailDate.Equal(day(2)) {
		t.Errorf("EmailDate = %v, want %v", got.EmailDate, day(2))
	}
}

func TestMerge_LaterSourceCarriesStatusForward(t *testing.T) {
	dst := storage.Application{
		ID: "dst", Company: "Acme", JobTitle: "Dev",
		Status: status.Applied, PeakStatus: status.Applied,
		EmailDate: day(1), LastUpdate: day(1), EmailID: "m1",
	}
	src := storage.Application{
		ID: "src", Company: status.ManualReview, JobTitle: status.ManualReview,
		Status: status.Interview, PeakStatus: status.Interview,
		EmailDate: day(4), LastUpdate: day(4), EmailID: "m2",
	}

	got := Merge(dst, src)
	if got.Status != status.Interview {
		t.Errorf("Status = %q, want Interview", got.Status)
	}
	if got.PeakStatus != status.Interview {
		t.Errorf("PeakStatus = %q, want Interview", got.PeakStatus)
	}
	if got.EmailID != "m2" || !got.EmailDate.Equal(day(4)) {
		t.Errorf("metadata not carried from later email: id=%q date=%v", got.EmailID, got.EmailDate)
	}
	// Sentinel identity from source never overwrites resolved destination.
	if got.Company != "Acme" || got.JobTitle != "Dev" {
		t.Errorf("identity = %q/%q, want Acme/Dev", got.Company, got.JobTitle)
	}
}

func TestMerge_LaterSourceCannotRegressStatus(t *testing.T) {
	dst := storage.Application{
		ID: "dst", Company: "Acme", JobTitle: "Dev",
		Status: status.Interview, PeakStatus: status.Interview,
		EmailDate: day(2), LastUpdate: day(2),
	}
	src := storage.Application{
		ID: "src", Company: "Acme", JobTitle: "Dev",
		Status: status.Viewed, PeakStatus: status.Viewed,
		EmailDate: day(3), LastUpdate: day(3),
	}

	got := Merge(dst, src)
	if got.Status != status.Interview {
		t.Errorf("Status = %q, want Interview (no regression)", got.Status)
	}
	if got.PeakStatus != status.Interview {
		t.Errorf("PeakStatus = %q, want Interview", got.PeakStatus)
	}
}

func TestMerge_ConcatenatesNotes(t *testing.T) {
	dst := storage.Application{ID: "dst", Notes: "followed up by phone"}
	src := storage.Application{ID: "src", Notes: "recruiter is Dana"}

	got := Merge(dst, src)
	if got.Notes != "followed up by phone\nrecruiter is Dana" {
		t.Errorf("Notes = %q", got.Notes)
	}

	// Merging again is a no-op.
	again := Merge(got, src)
	if again.Notes != got.Notes {
		t.Errorf("Notes duplicated: %q", again.Notes)
	}
}
