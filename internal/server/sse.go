package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// streamHeartbeat is how often an idle stream sends a comment line so
// proxies keep the connection open.
const streamHeartbeat = 15 * time.Second

// SSEWriter frames values as Server-Sent Events on a long-lived response.
type SSEWriter struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	next int
}

// NewSSEWriter commits the event-stream headers and lifts the server write
// deadline for the lifetime of the response.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("failed to clear write deadline: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	return &SSEWriter{w: w, rc: rc}, nil
}

// Send writes data as JSON under the named event with a sequential id.
func (s *SSEWriter) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	s.next++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.next, event, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Comment writes a line clients ignore.
func (s *SSEWriter) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.rc.Flush()
}

