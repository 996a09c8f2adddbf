package mailjet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scorimmo/email-verifier/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:         "key",
		SecretKey:      "secret",
		BaseURL:        baseURL,
		HTTPTimeout:    5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}, zap.NewNop())
}

func TestCreateList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contactslist", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "verify_abc", payload["Name"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"Count":1,"Data":[{"ID":4242,"Name":"verify_abc"}]}`))
	}))
	defer server.Close()

	listID, err := newTestClient(server.URL).CreateList(context.Background(), "verify_abc")
	require.NoError(t, err)
	assert.Equal(t, int64(4242), listID)
}

func TestCreateListFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateList(context.Background(), "verify_abc")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "LIST_CREATION_ERROR", apiErr.ErrorCode)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus)
}

func TestMissingCredentialsFailFast(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:1"}, zap.NewNop())

	_, err := client.CreateList(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "CONFIG_ERROR", apiErr.ErrorCode)

	err = client.AddContact(context.Background(), 1, "user@example.com")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "CONFIG_ERROR", apiErr.ErrorCode)
}

func TestLaunchJobRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contactslist/42/verify", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"Count":1,"Data":[{"JobID":7,"Status":"Pending"}]}`))
	}))
	defer server.Close()

	jobID, err := newTestClient(server.URL).LaunchJob(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7), jobID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLaunchJobDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).LaunchJob(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VERIFICATION_LAUNCH_ERROR", apiErr.ErrorCode)
}

func TestLaunchJobGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).LaunchJob(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLaunchJobRejectsNon201(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A 200 with a body is still not the expected creation reply
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Count":1,"Data":[{"JobID":7}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).LaunchJob(context.Background(), 42)
	require.Error(t, err)
}

func TestJobStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/contactslist/42/verify/7", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"Count": 1,
			"Data": [{
				"JobID": 7,
				"Status": "Completed",
				"Summary": {
					"result": {"deliverable": 1},
					"risk": {"low": 1}
				}
			}]
		}`))
	}))
	defer server.Close()

	job, err := newTestClient(server.URL).JobStatus(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 1, job.Summary.Result["deliverable"])
	assert.Equal(t, 1, job.Summary.Risk["low"])
}

func TestJobStatusMissingStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Count":0,"Data":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).JobStatus(context.Background(), 42, 7)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_RESPONSE_FORMAT", apiErr.ErrorCode)
}

func TestDeleteList(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/contactslist/42", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, newTestClient(server.URL).DeleteList(context.Background(), 42))
	assert.True(t, called.Load())
}

func TestAnalyze(t *testing.T) {
	client := newTestClient("http://unused")

	tests := []struct {
		name       string
		summary    *core.JobSummary
		wantStatus string
		wantRisk   string
		wantValid  bool
	}{
		{
			name: "deliverable low risk",
			summary: &core.JobSummary{
				Result: map[string]int{"deliverable": 1},
				Risk:   map[string]int{"low": 1},
			},
			wantStatus: "deliverable",
			wantRisk:   "low",
			wantValid:  true,
		},
		{
			name: "deliverable wins over undeliverable",
			summary: &core.JobSummary{
				Result: map[string]int{"deliverable": 1, "undeliverable": 1},
				Risk:   map[string]int{"medium": 1, "high": 1},
			},
			wantStatus: "deliverable",
			wantRisk:   "medium",
			wantValid:  true,
		},
		{
			name: "catch-all",
			summary: &core.JobSummary{
				Result: map[string]int{"catch_all": 1},
				Risk:   map[string]int{"high": 1},
			},
			wantStatus: "catch_all",
			wantRisk:   "high",
			wantValid:  false,
		},
		{
			name: "undeliverable",
			summary: &core.JobSummary{
				Result: map[string]int{"undeliverable": 1},
				Risk:   map[string]int{},
			},
			wantStatus: "undeliverable",
			wantRisk:   "unknown",
			wantValid:  false,
		},
		{
			name: "do not send",
			summary: &core.JobSummary{
				Result: map[string]int{"do_not_send": 1},
				Risk:   map[string]int{"high": 1},
			},
			wantStatus: "do_not_send",
			wantRisk:   "high",
			wantValid:  false,
		},
		{
			name: "empty summary",
			summary: &core.JobSummary{
				Result: map[string]int{},
				Risk:   map[string]int{},
			},
			wantStatus: "unknown",
			wantRisk:   "unknown",
			wantValid:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := client.Analyze(&core.VerificationJob{Summary: tt.summary})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, analysis.Status)
			assert.Equal(t, tt.wantRisk, analysis.Risk)
			assert.Equal(t, tt.wantValid, analysis.IsValid)
			assert.NotEmpty(t, analysis.Message)
		})
	}
}

func TestAnalyzeMissingSummary(t *testing.T) {
	client := newTestClient("http://unused")

	_, err := client.Analyze(&core.VerificationJob{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "MISSING_VERIFICATION_RESULTS", apiErr.ErrorCode)
}
