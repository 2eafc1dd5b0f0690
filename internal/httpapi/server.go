package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/podible/podible-server/internal/core"
)

// Server is the HTTP surface over a Core. Feed, stream, and chapter
// endpoints stay open (podcast clients cannot attach custom headers);
// the operator status page requires the API key.
type Server struct {
	core    *core.Core
	apiKey  []byte
	logger  *slog.Logger
	router  *chi.Mux
	noRoots bool
}

// NewServer builds a Server with its routes configured. noRoots marks
// that the process was started with zero library roots: the server
// still starts and answers /healthz and /status normally, but feed
// requests report a runtime error until it is restarted with roots.
func NewServer(c *core.Core, apiKey []byte, logger *slog.Logger, noRoots bool) *Server {
	s := &Server{core: c, apiKey: apiKey, logger: logger, router: chi.NewRouter(), noRoots: noRoots}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Range", "X-Api-Key"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Length"},
		MaxAge:         300,
	}))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/books", s.handleListBooks)
		r.Get("/books/{id}", s.handleGetBook)
		r.Get("/books/{id}/chapters", s.handleChapters)
		r.Get("/stream/{id}", s.handleStream)
		r.Get("/feed", s.handleFeedBooks)
		r.Get("/covers/{id}", s.handleCover)
		r.Get("/epub/{id}", s.handleEpub)

		r.With(s.requireAPIKey).Get("/status", s.handleStatus)
	})
}

// requireAPIKey rejects requests whose X-Api-Key header does not match
// the configured key, using a constant-time comparison so response
// timing cannot leak the key.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("X-Api-Key"))
		if len(got) != len(s.apiKey) || subtle.ConstantTimeCompare(got, s.apiKey) != 1 {
			writeJSON(w, s.logger, http.StatusUnauthorized, map[string]string{"error": "invalid or missing api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
