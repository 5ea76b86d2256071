package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rwfshr/markup/internal/cache"
	"github.com/rwfshr/markup/internal/middleware"
)

// Options wires the gateway. A nil Cache sends every lookup upstream; a
// non-empty JWTSecret turns on local token verification and role checks.
type Options struct {
	Upstream      Upstream
	Drafts        DraftStore
	Cache         cache.Cache
	JWTSecret     []byte
	StrictAnswers bool
	CORSOrigins   []string
	Timeout       time.Duration
}

type Server struct {
	upstream Upstream
	drafts   DraftStore
	catalog  *catalog
	secret   []byte
	strict   bool
	origins  []string
	timeout  time.Duration
	router   *chi.Mux
}

func NewServer(opts Options) *Server {
	s := &Server{
		upstream: opts.Upstream,
		drafts:   opts.Drafts,
		catalog:  &catalog{upstream: opts.Upstream, cache: opts.Cache},
		secret:   opts.JWTSecret,
		strict:   opts.StrictAnswers,
		origins:  opts.CORSOrigins,
		timeout:  opts.Timeout,
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	s.setupRouter()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.timeout))
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-Match", "If-None-Match", "X-Request-ID"},
		ExposedHeaders: []string{"ETag", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	admin := middleware.RequireRole(middleware.RoleAdmin)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(middleware.WithAuth(s.secret))
		r.Use(middleware.RequireAuth)

		r.Post("/records/decode", s.handleDecodeRecord)

		r.Route("/assessments", func(r chi.Router) {
			r.Post("/next", s.handleNextAssessment)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/draft", s.handleGetAnswerDraft)
				r.Put("/draft/groups/{index}", s.handleUpdateAnswerGroup)
				r.Post("/submit", s.handleSubmitAssessment)
			})
		})

		r.Route("/markups/{id}", func(r chi.Router) {
			r.Use(admin)
			r.Post("/reference", s.handleStoreReference)
			r.Get("/assessments", s.handleListAssessments)
			r.Post("/honeypot", s.handleHoneypot)
		})

		r.Route("/markup-types", func(r chi.Router) {
			r.With(admin).Post("/", s.handleCreateMarkupType)
			r.Get("/{id}/form", s.handleMarkupTypeForm)
			r.With(admin).Put("/{id}", s.handleUpdateMarkupType)
		})

		r.Route("/schema-drafts", func(r chi.Router) {
			r.Use(admin)
			r.Post("/", s.handleCreateSchemaDraft)
			r.Get("/{id}", s.handleGetSchemaDraft)
			r.Patch("/{id}", s.handleEditSchemaDraft)
			r.Post("/{id}/publish", s.handlePublishSchemaDraft)
			r.Delete("/{id}", s.handleDeleteSchemaDraft)
		})

		r.Get("/profiles/me/stats", s.handleProfileStats)
	})

	s.router = r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.drafts.Ping(r.Context()); err != nil {
		slog.Error("drafts store unreachable", slog.String("op", "health"), slog.String("error", err.Error()))
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{"ok": code == http.StatusOK, "status": status})
}
