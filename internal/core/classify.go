package core

import (
	"fmt"
	"regexp"
	"strings"
)

// DataOutcome records what happened when the prober pushed past RCPT with a
// non-committing DATA command
type DataOutcome struct {
	Performed bool
	Accepted  bool
	Response  string
}

var extendedCodeRe = regexp.MustCompile(`\d\.\d\.\d`)

// Accepting replies that still smell like the server is deferring the real
// decision (greylisting, content screening, manual review queues).
var suspiciousTerms = []string{
	"verify",
	"confirm",
	"pending",
	"review",
	"monitored",
	"delayed",
	"filtered",
	"quarantine",
	"screening",
}

// Wording that signals a permanent, policy-level refusal
var hardBounceTerms = []string{
	"blocked",
	"denied",
	"blacklist",
	"spam",
	"banned",
	"poor reputation",
}

// Wording that signals a mailbox which exists but is not ready yet
var mailboxCreationTerms = []string{
	"in process of being created",
	"being created",
	"greylist",
	"try again later",
}

var mailboxFullTerms = []string{
	"mailbox full",
	"quota",
	"insufficient storage",
	"over limit",
}

func containsAny(text string, terms []string) bool {
	lowered := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// Classify maps an SMTP reply and the optional DATA probe outcome to a
// structured probe result. It is deterministic and performs no I/O.
//
// An accepting RCPT reply alone is weak evidence: servers commonly accept
// every recipient to defeat enumeration and only reject at the content
// stage. The DATA outcome therefore overrides the RCPT classification.
func Classify(code int, response string, data DataOutcome) *SmtpProbeResult {
	result := &SmtpProbeResult{
		Code:              code,
		Response:          response,
		ExtendedCode:      extendedCodeRe.FindString(response),
		DataTestPerformed: data.Performed,
		DataTestAccepted:  data.Accepted,
	}

	switch code {
	case 250, 251:
		result.Success = true
		result.Status = StatusValid
		result.ProbableCause = "address_exists"
		result.Confidence = ConfidenceMedium

		if containsAny(response, suspiciousTerms) {
			result.Confidence = ConfidenceLow
			result.ProbableCause = "acceptance_with_screening_language"
		}

		if data.Performed {
			if data.Accepted {
				result.Confidence = ConfidenceHigh
			} else if containsAny(data.Response, hardBounceTerms) {
				result.Success = false
				result.Status = StatusPotentialHardBounce
				result.Confidence = ConfidenceVeryLow
				result.ProbableCause = "rejected_at_content_stage"
				result.Warning = "recipient accepted at RCPT but refused with bounce language at DATA"
			} else {
				result.Confidence = ConfidenceVeryLow
				result.Warning = "recipient accepted at RCPT but DATA command was refused"
			}
		}

	case 450, 451, 452:
		result.Status = StatusTemporaryError
		result.NeedsRetry = true
		if containsAny(response, mailboxCreationTerms) {
			result.ProbableCause = "mailbox_being_created"
		} else {
			result.ProbableCause = "mailbox_temporary_issue"
		}

	case 550, 551, 553:
		result.Status = StatusInvalid
		switch {
		case result.ExtendedCode == "5.1.1":
			result.ProbableCause = "mailbox_not_found"
		case containsAny(response, hardBounceTerms):
			result.ProbableCause = "sender_rejected"
		case containsAny(response, mailboxFullTerms):
			result.ProbableCause = "mailbox_full"
		default:
			result.ProbableCause = "address_invalid"
		}

	case 501:
		result.Status = StatusInvalid
		result.ProbableCause = "invalid_email_format"

	case 554:
		result.Status = StatusRejected
		result.ProbableCause = "policy_rejection"

	default:
		result.Status = StatusUnknownError
	}

	return result
}

// IsFatal reports whether a probe status must halt the pipeline before the
// bulk verification stage. Temporary errors, connection failures and
// sender-side rejections carry no information about the target address and
// let the pipeline continue.
func IsFatal(status ProbeStatus) bool {
	return status == StatusInvalid || status == StatusRejected
}

var smtpCodeMessages = map[int]string{
	250: "Address valid and accepted",
	251: "User not local, the message will be forwarded",
	450: "Action not taken: mailbox temporarily unavailable",
	451: "Action aborted: processing error",
	452: "Action not taken: insufficient storage",
	500: "Syntax error in command",
	501: "Syntax error in parameters",
	503: "Bad sequence of commands",
	550: "Action not taken: mailbox unavailable or access denied",
	551: "User not local",
	552: "Action aborted: storage allocation exceeded",
	553: "Action not taken: mailbox name not allowed",
	554: "Transaction failed",
}

var extendedCodeMessages = map[string]string{
	"5.1.1": "Mailbox does not exist",
	"5.2.1": "Mailbox full",
	"5.7.1": "Sender rejected by policy",
}

// CodeMessage returns the human description of an SMTP reply code, refined
// by the extended status code when one was present in the reply.
func CodeMessage(code int, extendedCode string) string {
	if msg, ok := extendedCodeMessages[extendedCode]; ok {
		return msg
	}
	if msg, ok := smtpCodeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown SMTP code: %d", code)
}
