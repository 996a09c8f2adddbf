package core

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// ProbeStatus classifies the outcome of an SMTP probe
type ProbeStatus string

const (
	StatusValid               ProbeStatus = "valid"
	StatusTemporaryError      ProbeStatus = "temporary_error"
	StatusInvalid             ProbeStatus = "invalid"
	StatusRejected            ProbeStatus = "rejected"
	StatusUnknownError        ProbeStatus = "unknown_error"
	StatusPotentialHardBounce ProbeStatus = "potential_hard_bounce"
	StatusSenderRejected      ProbeStatus = "sender_rejected"
	StatusConnectionError     ProbeStatus = "connection_error"
)

// Confidence expresses how much an accepting SMTP reply can be trusted
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceVeryLow Confidence = "very_low"
)

// SmtpProbeResult is the immutable outcome of a single SMTP probe attempt
type SmtpProbeResult struct {
	Success           bool
	Code              int
	ExtendedCode      string
	Response          string
	Status            ProbeStatus
	Confidence        Confidence
	ProbableCause     string
	NeedsRetry        bool
	Warning           string
	DataTestPerformed bool
	DataTestAccepted  bool
}

// Job status values reported by the bulk verification API
const (
	JobPending   = "Pending"
	JobCompleted = "Completed"
	JobError     = "Error"
)

// VerificationJob is a read-only snapshot of a remote verification job
type VerificationJob struct {
	ListID  int64
	JobID   int64
	Status  string
	Summary *JobSummary
	Error   string
}

// JobSummary holds the per-category counts of a completed job
type JobSummary struct {
	Result map[string]int
	Risk   map[string]int
}

// JobAnalysis is the interpreted outcome of a completed job summary
type JobAnalysis struct {
	Status  string
	Risk    string
	IsValid bool
	Message string
}

// Verdict is the terminal outcome of a verification request
type Verdict struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Details *VerdictDetails `json:"details,omitempty"`
}

// VerdictDetails carries the evidence behind a verdict
type VerdictDetails struct {
	Code     string `json:"code,omitempty"`
	Response string `json:"response,omitempty"`
	Result   string `json:"result,omitempty"`
	Risk     string `json:"risk,omitempty"`
}

// CacheEntry stores a verdict keyed by address hash
type CacheEntry struct {
	EmailHash string
	Verdict   Verdict
	CreatedAt time.Time
	ExpiresAt time.Time
}

// HashEmail derives the cache key for an address
func HashEmail(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// EventName identifies a push-stream event
type EventName string

const (
	EventStep       EventName = "step"
	EventJobStatus  EventName = "job_status"
	EventSmtpResult EventName = "smtp_result"
	EventHeartbeat  EventName = "heartbeat"
	EventResult     EventName = "result"
	EventError      EventName = "error"
)

// Event is one unit of progress pushed to the client
type Event struct {
	Name EventName
	Data any
}

// StepEvent reports a pipeline stage starting (Success == nil) or finishing
type StepEvent struct {
	Message string            `json:"message"`
	Success *bool             `json:"success"`
	Details map[string]string `json:"details,omitempty"`
}

// JobStatusEvent reports one polling iteration
type JobStatusEvent struct {
	Attempt  int      `json:"attempt"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
}

// SmtpResultEvent reports the classified SMTP probe outcome
type SmtpResultEvent struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Details SmtpResultDetails `json:"details"`
}

// SmtpResultDetails carries the raw protocol evidence of a probe
type SmtpResultDetails struct {
	Code         int    `json:"code"`
	ExtendedCode string `json:"extended_code,omitempty"`
	Response     string `json:"response"`
}

// HeartbeatEvent keeps the stream alive between polling iterations
type HeartbeatEvent struct {
	Time    int64 `json:"time"`
	Attempt int   `json:"attempt"`
}

// ErrorEvent reports a non-verdict failure to the client
type ErrorEvent struct {
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
