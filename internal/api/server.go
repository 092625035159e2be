// Package api serves the companion web front-end: a JSON API over the local
// stores.
package api

import (
	"context"
	"net/http"
	"time"

	"aqualog/internal/auth"
	"aqualog/internal/dashboard"
	"aqualog/internal/intake"
	"aqualog/internal/metrics"
	"aqualog/internal/settings"
	"aqualog/internal/syncer"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// AuthService signs the user in and out. *auth.Service implements it.
type AuthService interface {
	Status() auth.Status
	SignUp(ctx context.Context, email, password, name string) (auth.Status, error)
	SignIn(ctx context.Context, email, password string) (auth.Status, error)
	SignOut(ctx context.Context) error
}

// Syncer runs a sync on demand. *syncer.Reconciler implements it.
type Syncer interface {
	RunSync(ctx context.Context) (syncer.Result, error)
}

// Pinger is a readiness dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the services behind the API.
type Deps struct {
	Intake    *intake.Store
	Settings  *settings.Service
	Dashboard *dashboard.View
	Auth      AuthService
	Syncer    Syncer
	// Ready lists dependencies checked by /readyz, by name.
	Ready map[string]Pinger
}

type Server struct {
	deps   Deps
	logger *zerolog.Logger
	router chi.Router
}

func NewServer(deps Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Server{deps: deps, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the handler with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/today", s.handleToday)

		r.Post("/intake", s.handleAddIntake)
		r.Delete("/intake/{id}", s.handleDeleteIntake)
		r.Post("/intake/undo", s.handleUndo)
		r.Post("/days/{day}/reset", s.handleResetDay)

		r.Get("/history", s.handleHistory)
		r.Get("/history/export.xlsx", s.handleExport)
		r.Get("/streak", s.handleStreak)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Post("/sync", s.handleSync)

		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/signin", s.handleSignIn)
		r.Post("/auth/signout", s.handleSignOut)
		r.Get("/auth/session", s.handleSession)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// corsMiddleware allows the web front-end to be served from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Ready))
	status := http.StatusOK
	for name, p := range s.deps.Ready {
		if err := p.PingContext(ctx); err != nil {
			s.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, checks)
}
