package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxEmailLength = 254

var crlfRe = regexp.MustCompile(`[\r\n]`)

// VerificationService runs the verification pipeline for one address:
// format check, MX lookup, a single SMTP probe, then bulk verification
// through the remote API. Progress is pushed as events into a channel so
// transports (SSE, CLI) stay decoupled from pipeline logic.
type VerificationService struct {
	prober          Prober
	verifier        BulkVerifier
	cache           CacheRepository
	resolver        MXResolver
	logger          *zap.Logger
	cacheEnabled    bool
	cacheTTL        time.Duration
	initialWait     time.Duration
	pollInterval    time.Duration
	maxPollAttempts int
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	prober Prober,
	verifier BulkVerifier,
	cache CacheRepository,
	resolver MXResolver,
	logger *zap.Logger,
	cacheEnabled bool,
	cacheTTL time.Duration,
	initialWait time.Duration,
	pollInterval time.Duration,
	maxPollAttempts int,
) *VerificationService {
	return &VerificationService{
		prober:          prober,
		verifier:        verifier,
		cache:           cache,
		resolver:        resolver,
		logger:          logger,
		cacheEnabled:    cacheEnabled,
		cacheTTL:        cacheTTL,
		initialWait:     initialWait,
		pollInterval:    pollInterval,
		maxPollAttempts: maxPollAttempts,
	}
}

// Verify starts the pipeline for an address and returns the event stream.
// The channel is closed after the terminal event. Cancelling the context
// aborts the pipeline mid-stage; remote cleanup still runs.
func (s *VerificationService) Verify(ctx context.Context, email string) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		s.run(ctx, email, out)
	}()
	return out
}

func (s *VerificationService) run(ctx context.Context, email string, out chan<- Event) {
	logger := s.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("email", email),
	)

	if email == "" {
		s.emit(ctx, out, Event{EventError, ErrorEvent{Message: "Missing email address"}})
		return
	}
	if len(email) > maxEmailLength {
		s.emit(ctx, out, Event{EventError, ErrorEvent{Message: "Email address too long"}})
		return
	}
	if crlfRe.MatchString(email) {
		s.emit(ctx, out, Event{EventError, ErrorEvent{Message: "Email address contains forbidden characters"}})
		return
	}

	// A fresh verdict for the same address short-circuits everything
	if s.cacheEnabled {
		if entry, err := s.cache.Get(ctx, HashEmail(email)); err == nil {
			logger.Debug("Cache hit for address")
			s.emit(ctx, out, Event{EventResult, entry.Verdict})
			return
		}
	}

	if !s.checkFormat(ctx, email, out) {
		return
	}
	if !s.checkMX(ctx, email, out) {
		return
	}
	if fatal := s.probeSMTP(ctx, email, logger, out); fatal {
		return
	}
	s.verifyBulk(ctx, email, logger, out)
}

// checkFormat runs the syntactic stage; false halts the pipeline
func (s *VerificationService) checkFormat(ctx context.Context, email string, out chan<- Event) bool {
	s.step(ctx, out, "Checking address format...", nil, nil)

	if err := checkmail.ValidateFormat(email); err != nil {
		s.step(ctx, out, "Checking address format...", boolPtr(false), nil)
		verdict := Verdict{Success: false, Message: "Invalid email format"}
		s.emit(ctx, out, Event{EventResult, verdict})
		s.storeVerdict(ctx, email, verdict)
		return false
	}

	s.step(ctx, out, "Checking address format...", boolPtr(true), nil)
	return true
}

// checkMX resolves the domain's mail exchangers; false halts the pipeline
func (s *VerificationService) checkMX(ctx context.Context, email string, out chan<- Event) bool {
	domain := email[strings.LastIndex(email, "@")+1:]
	s.step(ctx, out, "Checking mail servers...", nil, nil)

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	hosts, err := s.resolver.LookupMX(lookupCtx, domain)
	if err != nil || len(hosts) == 0 {
		s.step(ctx, out, "Checking mail servers...", boolPtr(false), nil)
		s.emit(ctx, out, Event{EventError, ErrorEvent{
			Message:      "Invalid domain: " + domain,
			ErrorMessage: "No mail server configured for this domain",
		}})
		return false
	}

	s.step(ctx, out, "Checking mail servers...", boolPtr(true), nil)
	s.step(ctx, out, "Mail servers found: "+strings.Join(hosts, ", "), boolPtr(true), nil)
	return true
}

// probeSMTP runs the single SMTP probe; true means a fatal classification
// halted the pipeline
func (s *VerificationService) probeSMTP(ctx context.Context, email string, logger *zap.Logger, out chan<- Event) bool {
	s.step(ctx, out, "Testing address via SMTP...", nil, nil)

	result := s.prober.Probe(ctx, email)
	logger.Info("SMTP probe finished",
		zap.Int("code", result.Code),
		zap.String("status", string(result.Status)),
		zap.String("confidence", string(result.Confidence)),
		zap.String("cause", result.ProbableCause))

	s.step(ctx, out, "Testing address via SMTP...", boolPtr(result.Success), nil)

	message := smtpMessage(result)
	s.emit(ctx, out, Event{EventSmtpResult, SmtpResultEvent{
		Success: result.Success,
		Message: message,
		Details: SmtpResultDetails{
			Code:         result.Code,
			ExtendedCode: result.ExtendedCode,
			Response:     result.Response,
		},
	}})

	if IsFatal(result.Status) {
		verdict := Verdict{
			Success: false,
			Message: message,
			Details: &VerdictDetails{
				Code:     strconv.Itoa(result.Code),
				Response: result.Response,
			},
		}
		s.emit(ctx, out, Event{EventResult, verdict})
		s.storeVerdict(ctx, email, verdict)
		return true
	}
	return false
}

// verifyBulk drives the remote verification job to a terminal event
func (s *VerificationService) verifyBulk(ctx context.Context, email string, logger *zap.Logger, out chan<- Event) {
	s.step(ctx, out, "Advanced verification via Mailjet...", nil, nil)

	listName := fmt.Sprintf("verify_%s", HashEmail(email+strconv.FormatInt(time.Now().UnixNano(), 10)))
	listID, err := s.verifier.CreateList(ctx, listName)
	if err != nil {
		logger.Error("Failed to create verification list", zap.Error(err))
		s.bulkFailure(ctx, out, "Could not create the verification list")
		return
	}

	// The remote list must be deleted exactly once on every path past this
	// point, including cancellation.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.verifier.DeleteList(cleanupCtx, listID); err != nil {
			logger.Warn("Failed to delete verification list",
				zap.Int64("list_id", listID), zap.Error(err))
		}
	}()

	if err := s.verifier.AddContact(ctx, listID, email); err != nil {
		logger.Error("Failed to add contact to list", zap.Int64("list_id", listID), zap.Error(err))
		s.bulkFailure(ctx, out, "Could not register the address for verification")
		return
	}

	jobID, err := s.verifier.LaunchJob(ctx, listID)
	if err != nil {
		logger.Error("Failed to launch verification job", zap.Int64("list_id", listID), zap.Error(err))
		s.bulkFailure(ctx, out, "Could not launch the verification job")
		return
	}
	logger.Info("Verification job launched", zap.Int64("list_id", listID), zap.Int64("job_id", jobID))

	s.monitorJob(ctx, email, listID, jobID, logger, out)
}

// monitorJob polls the job until it completes, errors out or the attempt
// budget is exhausted
func (s *VerificationService) monitorJob(ctx context.Context, email string, listID, jobID int64, logger *zap.Logger, out chan<- Event) {
	// Let the remote side pick the job up before the first poll
	if !s.wait(ctx, s.initialWait) {
		return
	}

	for attempt := 1; attempt <= s.maxPollAttempts; attempt++ {
		job, err := s.verifier.JobStatus(ctx, listID, jobID)
		if err != nil {
			logger.Warn("Job status check failed", zap.Int("attempt", attempt), zap.Error(err))
			s.emit(ctx, out, Event{EventJobStatus, JobStatusEvent{Attempt: attempt, Status: "Checking"}})
		} else {
			s.emit(ctx, out, Event{EventJobStatus, JobStatusEvent{Attempt: attempt, Status: job.Status}})

			switch job.Status {
			case JobCompleted:
				s.finishJob(ctx, email, job, logger, out)
				return
			case JobError:
				logger.Warn("Verification job failed remotely", zap.String("error", job.Error))
				s.step(ctx, out, "Advanced verification via Mailjet...", boolPtr(false), nil)
				s.emit(ctx, out, Event{EventError, ErrorEvent{
					Message:      "Verification failed",
					ErrorMessage: job.Error,
				}})
				return
			}
		}

		if attempt < s.maxPollAttempts {
			if !s.wait(ctx, s.pollInterval) {
				return
			}
			s.emit(ctx, out, Event{EventHeartbeat, HeartbeatEvent{
				Time:    time.Now().Unix(),
				Attempt: attempt,
			}})
		}
	}

	s.step(ctx, out, "Advanced verification via Mailjet...", boolPtr(false), nil)
	s.emit(ctx, out, Event{EventError, ErrorEvent{
		Message:      "Verification timed out",
		ErrorMessage: "The verification is taking too long, please try again later",
	}})
}

// finishJob turns a completed job into the terminal verdict
func (s *VerificationService) finishJob(ctx context.Context, email string, job *VerificationJob, logger *zap.Logger, out chan<- Event) {
	analysis, err := s.verifier.Analyze(job)
	if err != nil {
		logger.Error("Failed to analyze job summary", zap.Error(err))
		s.bulkFailure(ctx, out, "Could not interpret the verification results")
		return
	}

	code := "INVALID"
	if analysis.IsValid {
		code = "VALID"
	}

	s.step(ctx, out, "Advanced verification via Mailjet...", boolPtr(analysis.IsValid), map[string]string{
		"result": analysis.Status,
		"risk":   analysis.Risk,
	})

	verdict := Verdict{
		Success: analysis.IsValid,
		Message: analysis.Message,
		Details: &VerdictDetails{
			Code:     code,
			Response: analysis.Message,
			Result:   analysis.Status,
			Risk:     analysis.Risk,
		},
	}
	s.emit(ctx, out, Event{EventResult, verdict})
	s.storeVerdict(ctx, email, verdict)
}

// bulkFailure emits the failing step plus a curated error event
func (s *VerificationService) bulkFailure(ctx context.Context, out chan<- Event, message string) {
	s.step(ctx, out, "Advanced verification via Mailjet...", boolPtr(false), nil)
	s.emit(ctx, out, Event{EventError, ErrorEvent{
		Message:      "Verification launch failed",
		ErrorMessage: message,
	}})
}

func (s *VerificationService) storeVerdict(ctx context.Context, email string, verdict Verdict) {
	if !s.cacheEnabled {
		return
	}
	now := time.Now()
	entry := &CacheEntry{
		EmailHash: HashEmail(email),
		Verdict:   verdict,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cacheTTL),
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.cache.Set(writeCtx, entry); err != nil {
		s.logger.Error("Failed to update verdict cache", zap.Error(err))
	}
}

// wait blocks for d or until the context is done; false means aborted
func (s *VerificationService) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *VerificationService) step(ctx context.Context, out chan<- Event, message string, success *bool, details map[string]string) {
	s.emit(ctx, out, Event{EventStep, StepEvent{Message: message, Success: success, Details: details}})
}

func (s *VerificationService) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func smtpMessage(result *SmtpProbeResult) string {
	if result.Status == StatusConnectionError {
		return "SMTP connection failed"
	}
	return CodeMessage(result.Code, result.ExtendedCode)
}

func boolPtr(b bool) *bool {
	return &b
}
