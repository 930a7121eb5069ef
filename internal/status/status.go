// Package status defines the closed vocabulary of application lifecycle
// states, their progression order, and the set of states excluded from
// peak tracking.
package status

// ManualReview is the sentinel written into any field the system could not
// confidently resolve. It never participates in identity matching.
const ManualReview = "MANUAL_REVIEW_NEEDED"

// Lifecycle states. The pipeline never produces a status outside this set;
// the extraction prompt embeds these exact strings so the model cannot
// invent new ones.
const (
	Applied     = "Applied"
	Viewed      = "Viewed"
	Assessment  = "Assessment"
	Interview   = "Interview Scheduled"
	Offer       = "Offer Received"
	Rejected    = "Rejected"
	Accepted    = "Accepted"
	Withdrawn   = "Withdrawn"
	UpdateOther = "Update/Other"
)

// ranks totally orders the non-terminal lifecycle. Anything absent from this
// map (terminal states, the sentinel, free text that slipped through) ranks
// at the defined minimum rather than panicking.
var ranks = map[string]int{
	Applied:    1,
	Viewed:     2,
	Assessment: 3,
	Interview:  4,
	Offer:      5,
}

// peakExcluded states never raise peakStatus: a rejection must not erase a
// previously recorded interview peak, and ambiguous states carry no signal.
var peakExcluded = map[string]bool{
	Rejected:     true,
	Accepted:     true,
	Withdrawn:    true,
	ManualReview: true,
	UpdateOther:  true,
}

// Rank returns the progression rank of s. Unknown statuses rank 0.
func Rank(s string) int {
	return ranks[s]
}

// PeakExcluded reports whether s is excluded from peak-status tracking.
func PeakExcluded(s string) bool {
	return peakExcluded[s]
}

// Known reports whether s belongs to the closed vocabulary (sentinel included).
func Known(s string) bool {
	if s == ManualReview {
		return true
	}
	if _, ok := ranks[s]; ok {
		return true
	}
	return peakExcluded[s]
}

// All lists every status the extraction prompt offers the model, in
// progression order with terminal states last.
func All() []string {
	return []string{
		Applied, Viewed, Assessment, Interview, Offer,
		Rejected, Accepted, Withdrawn, UpdateOther,
	}
}

// FunnelOrder is the fixed stage ordering used by aggregate views.
func FunnelOrder() []string {
	return []string{
		Applied, Viewed, Assessment, Interview, Offer,
		Accepted, Rejected, Withdrawn, UpdateOther, ManualReview,
	}
}
