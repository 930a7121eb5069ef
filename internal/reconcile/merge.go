package reconcile

import (
	"strings"

	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

// Merge folds src into dst for the manual merge operation, used when the
// correlation heuristic split one real application across two rows. dst is
// authoritative; src contributes whatever is more resolved or more recent.
// The caller persists dst and deletes src.
func Merge(dst, src storage.Application) storage.Application {
	if dst.Company == status.ManualReview && src.Company != status.ManualReview {
		dst.Company = src.Company
	}
	if dst.JobTitle == status.ManualReview && src.JobTitle != status.ManualReview {
		dst.JobTitle = src.JobTitle
	}

	// The later email carries the current truth for status and metadata,
	// subject to the same progression rule the pipeline applies.
	if src.EmailDate.After(dst.EmailDate) {
		if status.Rank(src.Status) >= status.Rank(dst.Status) ||
			src.Status == status.Rejected || src.Status == status.Offer {
			dst.Status = src.Status
		}
		dst.EmailDate = src.EmailDate
		dst.EmailSubject = src.EmailSubject
		dst.EmailLink = src.EmailLink
		dst.EmailID = src.EmailID
		dst.Platform = src.Platform
	}

	if status.Rank(src.PeakStatus) > status.Rank(dst.PeakStatus) {
		dst.PeakStatus = src.PeakStatus
	}
	if src.LastUpdate.After(dst.LastUpdate) {
		dst.LastUpdate = src.LastUpdate
	}
	if src.ProcessedAt.After(dst.ProcessedAt) {
		dst.ProcessedAt = src.ProcessedAt
	}

	if src.Notes != "" {
		if dst.Notes == "" {
			dst.Notes = src.Notes
		} else if !strings.Contains(dst.Notes, src.Notes) {
			dst.Notes = dst.Notes + "\n" + src.Notes
		}
	}
	return dst
}
