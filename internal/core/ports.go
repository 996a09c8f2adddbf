package core

import (
	"context"
)

// Prober performs a single SMTP liveness probe for an address.
// Implementations must not fail past this boundary: transport errors
// degrade to a result with StatusConnectionError.
type Prober interface {
	Probe(ctx context.Context, email string) *SmtpProbeResult
}

// BulkVerifier wraps the remote bulk email verification API
type BulkVerifier interface {
	// CreateList creates a disposable contact list and returns its ID
	CreateList(ctx context.Context, name string) (int64, error)

	// AddContact adds the target address to a list
	AddContact(ctx context.Context, listID int64, email string) error

	// LaunchJob starts an asynchronous verification job on a list
	LaunchJob(ctx context.Context, listID int64) (int64, error)

	// JobStatus fetches a read-only snapshot of a running job
	JobStatus(ctx context.Context, listID, jobID int64) (*VerificationJob, error)

	// DeleteList removes a list; callers must invoke it on every path
	// that created one
	DeleteList(ctx context.Context, listID int64) error

	// Analyze maps a completed job's summary to an interpreted outcome
	Analyze(job *VerificationJob) (*JobAnalysis, error)
}

// CacheRepository defines the interface for caching verification verdicts
type CacheRepository interface {
	// Get retrieves a cached entry by address hash
	Get(ctx context.Context, emailHash string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, emailHash string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// MXResolver resolves the mail exchanger hosts of a domain
type MXResolver interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
}
