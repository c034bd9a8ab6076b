package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/relay"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// handleStream relays hub events to the page as server-sent events. The event
// name is the event kind.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, unsubscribe := s.relay.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev relay.Event) bool {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			log.Warn("failed to encode %s event: %v", ev.Kind, err)
			return true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if !send(ev) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
