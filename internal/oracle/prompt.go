package oracle

import (
	"fmt"
	"strings"

	"github.com/jkoval/apptrack/internal/status"
)

const systemPromptTemplate = `You are a job application email classifier. Analyze the email subject and body. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Fields:
- "company_name": the hiring company. NOT the job board or mail provider.
- "job_title": the position applied for.
- "status": the lifecycle stage this email reports.

Rules:
- "status" must be exactly one of: %s.
- If a field cannot be determined from the email, use the exact string "%s".
- Prefer "%s" over guessing.
- Confirmation-of-submission emails are "%s"; generic notifications with no stage change are "%s".`

// BuildSystemPrompt renders the fixed classification instruction. The
// controlled vocabulary is encoded verbatim so the model cannot drift into
// free text in the status field.
func BuildSystemPrompt() string {
	quoted := make([]string, 0, len(status.All()))
	for _, s := range status.All() {
		quoted = append(quoted, fmt.Sprintf("%q", s))
	}
	return fmt.Sprintf(systemPromptTemplate,
		strings.Join(quoted, ", "),
		status.ManualReview,
		status.ManualReview,
		status.Applied,
		status.UpdateOther,
	)
}

// BuildUserPrompt renders the email content for classification. The body is
// truncated to maxBodyLen; classification signal lives in the opening lines
// and oracle cost scales with length.
func BuildUserPrompt(subject, body string, maxBodyLen int) string {
	if maxBodyLen > 0 && len(body) > maxBodyLen {
		body = body[:maxBodyLen]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Subject: %s\n\nBody:\n%s", subject, body)
	return sb.String()
}
