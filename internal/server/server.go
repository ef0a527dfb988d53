package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/handler"
	"github.com/dukerupert/quickcart/internal/middleware"
	"github.com/dukerupert/quickcart/internal/syncer"
	ws "github.com/dukerupert/quickcart/internal/websocket"
)

// authAttempts is the sign-in and sign-up budget per address per minute.
const authAttempts = 10

// Server is the local view API of the quickcart client.
type Server struct {
	hub         *ws.Hub
	listH       *handler.ListHandler
	authH       *handler.AuthHandler
	stateH      *handler.StateHandler
	rateLimiter *middleware.RateLimiter
	stopRelay   func()
	logger      *slog.Logger
}

func New(store *cart.Store, ctrl *syncer.Controller, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	return &Server{
		hub:         hub,
		listH:       handler.NewListHandler(store, logger.With("component", "lists")),
		authH:       handler.NewAuthHandler(ctrl, logger.With("component", "auth")),
		stateH:      handler.NewStateHandler(store, ctrl),
		rateLimiter: middleware.NewRateLimiter(authAttempts, time.Minute),
		stopRelay:   ws.Relay(hub, store, ctrl),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Close detaches the change feed from the store and controller.
func (s *Server) Close() {
	s.stopRelay()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/state", s.stateH.Get)
	mux.HandleFunc("GET /api/search", s.listH.Search)

	// Lists
	mux.HandleFunc("POST /api/lists", s.listH.CreateList)
	mux.HandleFunc("PUT /api/lists/{id}", s.listH.RenameList)
	mux.HandleFunc("DELETE /api/lists/{id}", s.listH.DeleteList)
	mux.HandleFunc("POST /api/lists/{id}/activate", s.listH.Activate)
	mux.HandleFunc("POST /api/lists/{id}/clear-checked", s.listH.ClearChecked)
	mux.HandleFunc("POST /api/lists/{id}/to-buy", s.listH.AddToBuy)

	// Items
	mux.HandleFunc("POST /api/lists/{id}/items", s.listH.AddItem)
	mux.HandleFunc("PUT /api/lists/{id}/items/{item_id}", s.listH.RenameItem)
	mux.HandleFunc("POST /api/lists/{id}/items/{item_id}/toggle", s.listH.ToggleItem)
	mux.HandleFunc("DELETE /api/lists/{id}/items/{item_id}", s.listH.DeleteItem)

	// Session
	mux.HandleFunc("POST /api/auth/signin", s.rateLimitedHandler(s.authH.SignIn))
	mux.HandleFunc("POST /api/auth/signup", s.rateLimitedHandler(s.authH.SignUp))
	mux.HandleFunc("POST /api/auth/signout", s.authH.SignOut)
	mux.HandleFunc("POST /api/auth/local", s.authH.ContinueLocal)
	mux.HandleFunc("POST /api/auth/leave-local", s.authH.LeaveLocal)
	mux.HandleFunc("GET /api/auth/status", s.authH.Status)

	// WebSocket
	mux.Handle("GET /ws", s.hub)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

type healthResponse struct {
	Status  string `json:"status"`
	Views   int    `json:"views"`
	Dropped uint64 `json:"dropped"`
}

// healthHandler also reports the change feed: attached views and how many
// deliveries lagging views have missed.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Views:   s.hub.Views(),
		Dropped: s.hub.Dropped(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	denied := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many attempts, try again later"})
	})
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, denied)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
