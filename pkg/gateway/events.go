package gateway

import (
	"fmt"
	"net/http"
)

// handleExecutionSSE streams execution events as server-sent events. It
// subscribes to the event bus keyed by execution id and forwards every event
// until the client disconnects.
func (s *Server) handleExecutionSSE(w http.ResponseWriter, r *http.Request) {
	execID := pathSegment(r.URL.Path, 2)
	if execID == "" {
		http.Error(w, "missing execution id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := s.eventBus.Subscribe(execID)
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
