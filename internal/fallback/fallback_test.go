package fallback

import (
	"testing"

	"github.com/jkoval/apptrack/internal/status"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"LinkedIn <jobs-noreply@linkedin.com>", "LinkedIn"},
		{"Indeed Apply <indeedapply@indeed.com>", "Indeed"},
		{"no-reply@greenhouse.io", "Greenhouse"},
		{"Acme Inc <acme@myworkday.com>", "Workday"},
		{"careers@lever.co", "Lever"},
		{"team@wellfound.com", "Wellfound"},
		{"recruiting@acme.com", PlatformOther},
		{"", PlatformOther},
	}
	for _, tt := range tests {
		if got := DetectPlatform(tt.from); got != tt.want {
			t.Errorf("DetectPlatform(%q) = %q, want %q", tt.from, got, tt.want)
		}
	}
}

func TestScanStatus_PrecedenceRejectedOverInterview(t *testing.T) {
	// Rejection after an interview mentions both; the rejection wins.
	text := "Thank you for taking the time to interview with us. Unfortunately, we have decided to pursue other candidates."
	if got := ScanStatus(text); got != status.Rejected {
		t.Errorf("ScanStatus = %q, want %q", got, status.Rejected)
	}
}

func TestScanStatus_Categories(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"We are pleased to offer you the position", status.Offer},
		{"We would like to schedule a call to discuss next steps", status.Interview},
		{"Please complete this coding challenge within 7 days", status.Assessment},
		{"Your application was viewed by the employer", status.Viewed},
		{"Thanks for applying. We received your materials.", status.Applied},
		{"", status.Applied},
	}
	for _, tt := range tests {
		if got := ScanStatus(tt.text); got != tt.want {
			t.Errorf("ScanStatus(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtract_SubjectSentTo(t *testing.T) {
	got := Extract("Your application was sent to Acme Inc.", "", "jobs-noreply@linkedin.com")

	if got.Company != "Acme Inc" {
		t.Errorf("Company = %q, want %q", got.Company, "Acme Inc")
	}
	if got.JobTitle != status.ManualReview {
		t.Errorf("JobTitle = %q, want sentinel", got.JobTitle)
	}
	if got.Status != status.Applied {
		t.Errorf("Status = %q, want %q", got.Status, status.Applied)
	}
	if got.Platform != "LinkedIn" {
		t.Errorf("Platform = %q, want LinkedIn", got.Platform)
	}
}

func TestExtract_SubjectAppliedToTitleAtCompany(t *testing.T) {
	got := Extract("You applied to Data Analyst at Initech", "", "indeedapply@indeed.com")

	if got.JobTitle != "Data Analyst" {
		t.Errorf("JobTitle = %q, want %q", got.JobTitle, "Data Analyst")
	}
	if got.Company != "Initech" {
		t.Errorf("Company = %q, want %q", got.Company, "Initech")
	}
}

func TestExtract_BodyFillsMissingFields(t *testing.T) {
	body := "Hi Jane,\n\nYour application for Backend Engineer was sent to Globex Corp.\nGood luck!"
	got := Extract("Application submitted", body, "noreply@example.com")

	if got.JobTitle != "Backend Engineer" {
		t.Errorf("JobTitle = %q, want %q", got.JobTitle, "Backend Engineer")
	}
	if got.Company != "Globex Corp" {
		t.Errorf("Company = %q, want %q", got.Company, "Globex Corp")
	}
}

func TestExtract_BodyCompanyLeadingLine(t *testing.T) {
	body := "Dear candidate,\nGlobex Corp has received your application and will review it shortly."
	got := Extract("Re: your application", body, "noreply@globex.com")

	if got.Company != "Globex Corp" {
		t.Errorf("Company = %q, want %q", got.Company, "Globex Corp")
	}
}

func TestExtract_NothingMatches(t *testing.T) {
	got := Extract("Weekly digest", "Here are jobs you might like.", "digest@example.com")

	if got.Company != status.ManualReview {
		t.Errorf("Company = %q, want sentinel", got.Company)
	}
	if got.JobTitle != status.ManualReview {
		t.Errorf("JobTitle = %q, want sentinel", got.JobTitle)
	}
	if got.Status != status.Applied {
		t.Errorf("Status = %q, want %q", got.Status, status.Applied)
	}
}

func TestCleanField_RejectsOverlongCapture(t *testing.T) {
	long := "a company name that goes on and on because a greedy regex swallowed an entire paragraph of prose text"
	if got := cleanField(long); got != "" {
		t.Errorf("cleanField(overlong) = %q, want empty", got)
	}
	if got := cleanField("  Acme Inc.  "); got != "Acme Inc" {
		t.Errorf("cleanField = %q, want %q", got, "Acme Inc")
	}
}
