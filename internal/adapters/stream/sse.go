package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// Writer sends verification events to a client as server-sent events
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
}

// NewWriter prepares the response for event streaming. It fails when the
// underlying writer cannot flush, since buffered SSE defeats its purpose.
func NewWriter(w http.ResponseWriter, logger *zap.Logger) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher, logger: logger}, nil
}

// Send writes one event frame and flushes it to the client
func (s *Writer) Send(event core.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		s.logger.Error("Failed to encode event payload",
			zap.String("event", string(event.Name)), zap.Error(err))
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Name, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
