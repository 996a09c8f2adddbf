package http

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scorimmo/email-verifier/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	// Input guards and the format stage run before any adapter is touched,
	// so the transport tests get by without wiring them
	service := core.NewVerificationService(nil, nil, nil, nil, zap.NewNop(),
		false, 0, 0, 0, 0)

	server := NewServer("127.0.0.1:0", time.Minute, service, zap.NewNop())
	ts := httptest.NewServer(server.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestVerifyRequiresStreamingMode(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/verify?email=user@example.com")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestVerifyStreamsEvents(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/verify?stream=1&email=not-an-address")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			frames = append(frames, line)
		}
	}

	body := strings.Join(frames, "\n")
	assert.Contains(t, body, "event: step")
	assert.Contains(t, body, "event: result")
	assert.Contains(t, body, "Invalid email format")
}

func TestVerifyStreamsErrorForMissingAddress(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/verify?stream=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "event: error")
	assert.Contains(t, string(body), "Missing email address")
}
