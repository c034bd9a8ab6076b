package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MimeLyc/movie-dubber/internal/backend"
	"github.com/MimeLyc/movie-dubber/internal/dubbing"
	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/generation"
	"github.com/MimeLyc/movie-dubber/internal/relay"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

const maxBodyBytes = 8 << 20

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var in relay.Inbound
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.relay.Deliver(in); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd dubbing.Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := s.dispatcher.Dispatch(r.Context(), cmd)
	if err != nil {
		log.Warn("command %s failed: %v", cmd.Action, err)
		writeJSON(w, statusFor(err), dubbing.Response{Message: errs.UserMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.relay.Clip(chi.URLParam(r, "voiceID"))
	if !ok {
		writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Data)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotFound, "settings not available")
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleGeneration(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeJSON(w, http.StatusOK, []generation.Entry{})
		return
	}
	writeJSON(w, http.StatusOK, s.queue.List())
}

func (s *Server) handleSearchMovies(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "movie search not available")
		return
	}
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	result, err := s.catalog.SearchMovies(r.Context(), text)
	if err != nil {
		log.Warn("movie search %q failed: %v", text, err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "feedback not available")
		return
	}
	var feedback backend.Feedback
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&feedback); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(feedback.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err := s.catalog.SendFeedback(r.Context(), feedback); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// silentPaths are high-frequency endpoints that are only logged on errors.
var silentPaths = map[string]bool{
	"/api/messages": true,
	"/api/stream":   true,
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if silentPaths[r.URL.Path] && status < 400 {
			return
		}
		log.Info("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start))
	})
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Timeout:
		return http.StatusGatewayTimeout
	case errs.Unavailable, errs.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), errs.UserMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
