// Package cloud serves the quickcart-cloud HTTP API: email/password
// accounts with JWT sessions, and one JSON document per user.
package cloud

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dukerupert/quickcart/internal/auth"
	"github.com/dukerupert/quickcart/internal/database"
	"github.com/dukerupert/quickcart/internal/docstore"
	"github.com/dukerupert/quickcart/internal/middleware"
	"github.com/dukerupert/quickcart/internal/store"
)

// credentialAttempts is the per-address budget for the account endpoints,
// per minute.
const credentialAttempts = 10

type Config struct {
	AllowedOrigins []string
}

type Server struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	tokens       *auth.TokenService
	accountH     *AccountHandler
	documentH    *DocumentHandler
	rateLimiter  *middleware.RateLimiter
	cfg          Config
	logger       *slog.Logger
}

func New(db *database.DB, docs docstore.Store, tokens *auth.TokenService, cfg Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)

	return &Server{
		userStore:    userStore,
		sessionStore: sessionStore,
		tokens:       tokens,
		accountH:     NewAccountHandler(userStore, sessionStore, docs, tokens, logger.With("component", "accounts")),
		documentH:    NewDocumentHandler(docs, logger.With("component", "documents")),
		rateLimiter:  middleware.NewRateLimiter(credentialAttempts, time.Minute),
		cfg:          cfg,
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Cleanup drops expired sessions and stale rate-limit entries.
func (s *Server) Cleanup() {
	n, err := s.sessionStore.DeleteExpired(time.Now())
	if err != nil {
		s.logger.Error("cleanup expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}
	s.rateLimiter.Cleanup()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(s.cors())

	r.Get("/health", s.healthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.With(s.rateLimited()).Post("/signup", s.accountH.SignUp)
			r.With(s.rateLimited()).Post("/signin", s.accountH.SignIn)
			r.With(s.rateLimited()).Post("/refresh", s.accountH.Refresh)
			r.With(middleware.RequireBearer(s.tokens, s.sessionStore)).Post("/signout", s.accountH.SignOut)
			r.With(middleware.RequireBearer(s.tokens, s.sessionStore)).Delete("/", s.accountH.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireBearer(s.tokens, s.sessionStore))
			r.Get("/users/{uid}/document", s.documentH.Get)
			r.Patch("/users/{uid}/document", s.documentH.Merge)
			r.Put("/users/{uid}/document", s.documentH.Replace)
		})
	})

	return r
}

func (s *Server) cors() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.Handler(opts)
}

func (s *Server) rateLimited() func(http.Handler) http.Handler {
	denied := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusTooManyRequests, middleware.CodeTooManyRequests,
			"Too many attempts, try again later")
	})
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP, denied)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
