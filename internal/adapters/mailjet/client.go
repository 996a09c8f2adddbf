package mailjet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// Config holds the API credentials and client tuning
type Config struct {
	APIKey         string
	SecretKey      string
	BaseURL        string
	HTTPTimeout    time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// APIError is the typed failure of a remote API call
type APIError struct {
	Message    string
	ErrorCode  string
	HTTPStatus int
	Context    map[string]any
}

func (e *APIError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.ErrorCode, e.HTTPStatus)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.ErrorCode)
}

// HTTP statuses worth retrying at the job-launch stage
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client wraps the Mailjet contact-list and verification REST API
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Mailjet API client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
	}
}

// HasValidCredentials reports whether both API keys are configured
func (c *Client) HasValidCredentials() bool {
	return c.cfg.APIKey != "" && c.cfg.SecretKey != ""
}

type listData struct {
	ID   int64  `json:"ID"`
	Name string `json:"Name"`
}

type jobSummary struct {
	Result map[string]int `json:"result"`
	Risk   map[string]int `json:"risk"`
}

type jobData struct {
	JobID   int64       `json:"JobID"`
	Status  string      `json:"Status"`
	Summary *jobSummary `json:"Summary"`
	Error   string      `json:"Error"`
}

// CreateList creates a disposable contact list
func (c *Client) CreateList(ctx context.Context, name string) (int64, error) {
	if !c.HasValidCredentials() {
		return 0, missingCredentials()
	}
	c.logger.Debug("Creating contact list", zap.String("name", name))

	body, status, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/contactslist", map[string]string{"Name": name})
	if err != nil || status >= 400 {
		return 0, apiFailure("failed to create contact list", "LIST_CREATION_ERROR", status, err,
			map[string]any{"listName": name})
	}

	var parsed struct {
		Data []listData `json:"Data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) == 0 {
		return 0, invalidResponse("Data[0].ID", status)
	}
	return parsed.Data[0].ID, nil
}

// AddContact adds the target address to a list
func (c *Client) AddContact(ctx context.Context, listID int64, email string) error {
	if !c.HasValidCredentials() {
		return missingCredentials()
	}
	c.logger.Debug("Adding contact to list", zap.Int64("list_id", listID), zap.String("email", email))

	url := fmt.Sprintf("%s/contactslist/%d/managecontact", c.cfg.BaseURL, listID)
	_, status, err := c.do(ctx, http.MethodPost, url, map[string]string{"Email": email, "action": "addforce"})
	if err != nil || status >= 400 {
		return apiFailure("failed to add contact to list", "CONTACT_MANAGEMENT_ERROR", status, err,
			map[string]any{"listId": listID, "email": email})
	}
	return nil
}

// LaunchJob starts an asynchronous verification job on a list. Transient
// HTTP failures are retried with exponential backoff; anything else fails
// immediately.
func (c *Client) LaunchJob(ctx context.Context, listID int64) (int64, error) {
	if !c.HasValidCredentials() {
		return 0, missingCredentials()
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		jobID, err := c.launchOnce(ctx, listID)
		if err == nil {
			return jobID, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !retryableStatuses[apiErr.HTTPStatus] {
			return 0, err
		}

		delay := c.cfg.RetryBaseDelay << attempt
		c.logger.Warn("Transient error launching verification job, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("http_status", apiErr.HTTPStatus),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		}
	}
	return 0, lastErr
}

func (c *Client) launchOnce(ctx context.Context, listID int64) (int64, error) {
	c.logger.Debug("Launching verification job", zap.Int64("list_id", listID))

	url := fmt.Sprintf("%s/contactslist/%d/verify", c.cfg.BaseURL, listID)
	body, status, err := c.do(ctx, http.MethodPost, url, map[string]string{"Method": "fulllist"})
	if err != nil || status != http.StatusCreated {
		return 0, apiFailure("failed to launch verification job", "VERIFICATION_LAUNCH_ERROR", status, err,
			map[string]any{"listId": listID})
	}

	var parsed struct {
		Data []jobData `json:"Data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) == 0 {
		return 0, invalidResponse("Data[0].JobID", status)
	}
	return parsed.Data[0].JobID, nil
}

// JobStatus fetches a read-only snapshot of a verification job
func (c *Client) JobStatus(ctx context.Context, listID, jobID int64) (*core.VerificationJob, error) {
	if !c.HasValidCredentials() {
		return nil, missingCredentials()
	}

	url := fmt.Sprintf("%s/contactslist/%d/verify/%d", c.cfg.BaseURL, listID, jobID)
	body, status, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil || status >= 400 {
		return nil, apiFailure("failed to fetch job status", "JOB_STATUS_ERROR", status, err,
			map[string]any{"listId": listID, "jobId": jobID})
	}

	var parsed struct {
		Data []jobData `json:"Data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) == 0 || parsed.Data[0].Status == "" {
		return nil, invalidResponse("Data[0].Status", status)
	}

	data := parsed.Data[0]
	job := &core.VerificationJob{
		ListID: listID,
		JobID:  jobID,
		Status: data.Status,
		Error:  data.Error,
	}
	if data.Summary != nil {
		job.Summary = &core.JobSummary{
			Result: data.Summary.Result,
			Risk:   data.Summary.Risk,
		}
	}
	return job, nil
}

// DeleteList removes a contact list
func (c *Client) DeleteList(ctx context.Context, listID int64) error {
	if !c.HasValidCredentials() {
		return missingCredentials()
	}
	c.logger.Debug("Deleting contact list", zap.Int64("list_id", listID))

	url := fmt.Sprintf("%s/contactslist/%d", c.cfg.BaseURL, listID)
	_, status, err := c.do(ctx, http.MethodDelete, url, nil)
	if err != nil || status < 200 || status >= 300 {
		return apiFailure("failed to delete contact list", "LIST_DELETION_ERROR", status, err,
			map[string]any{"listId": listID})
	}
	return nil
}

// do performs one authenticated JSON request and returns the raw body
func (c *Client) do(ctx context.Context, method, url string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func missingCredentials() *APIError {
	return &APIError{
		Message:   "missing Mailjet API credentials",
		ErrorCode: "CONFIG_ERROR",
	}
}

func invalidResponse(field string, status int) *APIError {
	return &APIError{
		Message:    "unexpected response format, missing " + field,
		ErrorCode:  "INVALID_RESPONSE_FORMAT",
		HTTPStatus: status,
	}
}

func apiFailure(message, errorCode string, status int, err error, context map[string]any) *APIError {
	if err != nil {
		message = message + ": " + err.Error()
	}
	return &APIError{
		Message:    message,
		ErrorCode:  errorCode,
		HTTPStatus: status,
		Context:    context,
	}
}
