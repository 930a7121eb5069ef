// Package fallback is the deterministic last-resort extractor: platform
// detection from the sender domain, pattern-based company/title extraction,
// and an ordered keyword scan for status. It never fails — when nothing
// matches it degrades to the sentinel values.
package fallback

import (
	"regexp"
	"strings"

	"github.com/jkoval/apptrack/internal/status"
)

// PlatformOther is recorded when the sender matches no known platform.
const PlatformOther = "Other"

// platformDomains maps sender-domain substrings to platform names. First
// match wins; order matters only for the job boards that white-label ATS
// mail (checked before the generic ATS domains).
var platformDomains = []struct {
	keyword  string
	platform string
}{
	{"linkedin", "LinkedIn"},
	{"indeed", "Indeed"},
	{"glassdoor", "Glassdoor"},
	{"ziprecruiter", "ZipRecruiter"},
	{"wellfound", "Wellfound"},
	{"angel.co", "Wellfound"},
	{"greenhouse", "Greenhouse"},
	{"lever.co", "Lever"},
	{"myworkday", "Workday"},
	{"workday", "Workday"},
	{"smartrecruiters", "SmartRecruiters"},
	{"icims", "iCIMS"},
	{"monster", "Monster"},
}

// DetectPlatform resolves the sending platform from a From header value.
func DetectPlatform(from string) string {
	f := strings.ToLower(from)
	for _, pd := range platformDomains {
		if strings.Contains(f, pd.keyword) {
			return pd.platform
		}
	}
	return PlatformOther
}

// statusRule pairs a status with the keywords that indicate it.
type statusRule struct {
	status   string
	keywords []string
}

// StatusPrecedence is the ordered tie-break among keyword categories: the
// first rule with any matching keyword wins, so a body mentioning both an
// interview and a rejection resolves to Rejected.
var StatusPrecedence = []statusRule{
	{status.Rejected, []string{
		"unfortunately",
		"other candidates",
		"not to move forward",
		"not moving forward",
		"will not be moving",
		"regret to inform",
		"decided to pursue",
		"position has been filled",
		"no longer under consideration",
	}},
	{status.Offer, []string{
		"pleased to offer",
		"offer letter",
		"job offer",
		"extend an offer",
		"compensation package",
	}},
	{status.Interview, []string{
		"interview",
		"phone screen",
		"schedule a call",
		"schedule some time",
		"meet the team",
	}},
	{status.Assessment, []string{
		"assessment",
		"coding challenge",
		"take-home",
		"online test",
		"hackerrank",
		"codility",
	}},
	{status.Viewed, []string{
		"viewed your application",
		"application was viewed",
		"viewed by the employer",
		"looked at your application",
	}},
}

// ScanStatus resolves a status from email text by ordered keyword scan.
// Text with no category match defaults to Applied — an email reached the
// tracked label, so at minimum an application exists.
func ScanStatus(text string) string {
	t := strings.ToLower(text)
	for _, rule := range StatusPrecedence {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.status
			}
		}
	}
	return status.Applied
}

// extractRule captures company/title from one phrasing convention.
// company and title are submatch indices; 0 means the pattern does not
// yield that field.
type extractRule struct {
	re      *regexp.Regexp
	company int
	title   int
}

// subjectRules and bodyRules cover the notification phrasings of the major
// platforms plus generic ATS mail. Subject lines are tried first; they are
// templated and far less noisy than bodies.
var subjectRules = []extractRule{
	// "Your application was sent to Acme Inc."
	{re: regexp.MustCompile(`(?i)your application (?:was )?sent to (.+?)\s*$`), company: 1},
	// "You applied to Data Analyst at Acme Inc."
	{re: regexp.MustCompile(`(?i)you(?:r application)? applied to (.+?) at (.+?)\s*$`), title: 1, company: 2},
	// "Application update from Acme Inc."
	{re: regexp.MustCompile(`(?i)application (?:update|status) from (.+?)\s*$`), company: 1},
	// "Thank you for applying to Acme Inc.!"
	{re: regexp.MustCompile(`(?i)thank you for applying to (.+?)[.!]?\s*$`), company: 1},
	// "Interview invitation: Data Analyst - Acme Inc."
	{re: regexp.MustCompile(`(?i)^(?:interview invitation|application submitted|indeed application):\s*(.+?)\s+[-–]\s+(.+?)\s*$`), title: 1, company: 2},
	// "Your update from Acme Inc."
	{re: regexp.MustCompile(`(?i)your update from (.+?)\s*$`), company: 1},
}

var bodyRules = []extractRule{
	// "Your application for Data Analyst was sent to Acme Inc."
	{re: regexp.MustCompile(`(?i)your application for (.+?) (?:was )?sent to (.+?)[.\n]`), title: 1, company: 2},
	// "your application for the Data Analyst position at Acme Inc."
	{re: regexp.MustCompile(`(?i)application for (?:the )?(.+?) (?:position|role|opening) at (.+?)[.,\n]`), title: 1, company: 2},
	// "applying to Data Analyst at Acme Inc."
	{re: regexp.MustCompile(`(?i)apply(?:ing)? (?:to|for) (.+?) at (.+?)[.,\n]`), title: 1, company: 2},
	// "Acme Inc. would like to ..." (company only, common in direct ATS mail)
	{re: regexp.MustCompile(`(?im)^(.+?) (?:would like to|has received your application|viewed your application)`), company: 1},
	// "interest in the Data Analyst position"
	{re: regexp.MustCompile(`(?i)interest in (?:the )?(.+?) (?:position|role|opening)`), title: 1},
}

// Result is the fallback extraction for one email.
type Result struct {
	Company  string
	JobTitle string
	Status   string
	Platform string
}

// Extract produces a best-effort extraction from raw email content. Fields
// that no rule resolves come back as the sentinel; Status always resolves
// (Applied at minimum).
func Extract(subject, body, from string) Result {
	res := Result{
		Company:  status.ManualReview,
		JobTitle: status.ManualReview,
		Status:   ScanStatus(subject + "\n" + body),
		Platform: DetectPlatform(from),
	}

	applyRules(&res, subject, subjectRules)
	if res.Company == status.ManualReview || res.JobTitle == status.ManualReview {
		applyRules(&res, body, bodyRules)
	}
	return res
}

func applyRules(res *Result, text string, rules []extractRule) {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if r.company > 0 && res.Company == status.ManualReview {
			if v := cleanField(m[r.company]); v != "" {
				res.Company = v
			}
		}
		if r.title > 0 && res.JobTitle == status.ManualReview {
			if v := cleanField(m[r.title]); v != "" {
				res.JobTitle = v
			}
		}
		if res.Company != status.ManualReview && res.JobTitle != status.ManualReview {
			return
		}
	}
}

// cleanField normalizes a captured fragment: trims whitespace, trailing
// punctuation, and mail-merge leftovers. Overlong captures are noise from a
// greedy match against prose, not a real name.
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".,!:;")
	if len(s) == 0 || len(s) > 80 {
		return ""
	}
	return s
}
