package mailjet

import (
	"github.com/scorimmo/email-verifier/internal/core"
)

// Outcome categories in decreasing order of priority. The first category
// with a nonzero count wins, so a list that somehow reports several
// categories is read optimistically.
var resultPriority = []string{"deliverable", "catch_all", "undeliverable", "do_not_send"}

// Risk levels in decreasing order of priority
var riskPriority = []string{"low", "medium", "high"}

var resultMessages = map[string]string{
	"deliverable":   "Deliverable",
	"catch_all":     "Catch-all domain, existence cannot be confirmed",
	"undeliverable": "Undeliverable",
	"do_not_send":   "Risky address, do not send",
	"unknown":       "Unknown status",
}

var riskMessages = map[string]string{
	"low":    "a low bounce risk",
	"medium": "a moderate bounce risk",
	"high":   "a high bounce risk",
}

// Analyze interprets a completed job's summary
func (c *Client) Analyze(job *core.VerificationJob) (*core.JobAnalysis, error) {
	if job == nil || job.Summary == nil {
		return nil, &APIError{
			Message:   "job has no verification summary",
			ErrorCode: "MISSING_VERIFICATION_RESULTS",
		}
	}

	status := pickCategory(job.Summary.Result, resultPriority)
	risk := pickCategory(job.Summary.Risk, riskPriority)

	message := resultMessages[status]
	if status == "deliverable" && risk != "unknown" {
		message = message + " with " + riskMessages[risk]
	}

	return &core.JobAnalysis{
		Status:  status,
		Risk:    risk,
		IsValid: status == "deliverable",
		Message: message,
	}, nil
}

func pickCategory(counts map[string]int, priority []string) string {
	for _, category := range priority {
		if counts[category] > 0 {
			return category
		}
	}
	return "unknown"
}
