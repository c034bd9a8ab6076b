// Package httpapi exposes the dubbing engine to the browser: an event stream,
// an inbound message endpoint for the page agent, UI commands and clip downloads.
package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MimeLyc/movie-dubber/internal/audiofile"
	"github.com/MimeLyc/movie-dubber/internal/backend"
	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/dubbing"
	"github.com/MimeLyc/movie-dubber/internal/generation"
	"github.com/MimeLyc/movie-dubber/internal/relay"
)

// Relay is the page bridge, satisfied by relay.Hub.
type Relay interface {
	Subscribe() (<-chan relay.Event, func())
	Deliver(in relay.Inbound) error
	Clip(voiceID string) (*audiofile.Buffer, bool)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dubbing.Command) (dubbing.Response, error)
}

type settingsReader interface {
	Get() config.PlaybackSettings
}

type generationLister interface {
	List() []generation.Entry
}

// Catalog is the movie search and feedback side of the backend.
type Catalog interface {
	SearchMovies(ctx context.Context, text string) (*backend.SearchResult, error)
	SendFeedback(ctx context.Context, feedback backend.Feedback) error
}

type Server struct {
	relay      Relay
	dispatcher Dispatcher
	settings   settingsReader
	queue      generationLister
	catalog    Catalog

	allowedOrigins []string
	keepAlive      time.Duration
	uiEnabled      bool
	uiStaticDir    string

	router *chi.Mux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithSettings(settings settingsReader) Option {
	return func(s *Server) {
		s.settings = settings
	}
}

func WithGenerationQueue(queue generationLister) Option {
	return func(s *Server) {
		s.queue = queue
	}
}

func WithCatalog(catalog Catalog) Option {
	return func(s *Server) {
		s.catalog = catalog
	}
}

// WithKeepAlive sets the comment interval that keeps idle streams open.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func NewServer(hub Relay, dispatcher Dispatcher, opts ...Option) *Server {
	s := &Server{
		relay:      hub,
		dispatcher: dispatcher,
		keepAlive:  15 * time.Second,
		router:     chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(cors.Handler(corsOptions(s.allowedOrigins)))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stream", s.handleStream)
		r.Post("/messages", s.handleMessage)
		r.Post("/commands", s.handleCommand)
		r.Get("/audio/{voiceID}", s.handleAudio)
		r.Get("/settings", s.handleSettings)
		r.Get("/generation", s.handleGeneration)
		r.Get("/movies", s.handleSearchMovies)
		r.Post("/feedback", s.handleFeedback)
	})
	s.router.Get("/*", s.handleStatic)
}

func corsOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}
	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
