package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/quickcart/internal/identity"
	"github.com/dukerupert/quickcart/internal/syncer"
)

// Session is the part of the sync controller the auth endpoints drive.
type Session interface {
	SignIn(ctx context.Context, creds identity.Credentials) (identity.Identity, error)
	SignUp(ctx context.Context, creds identity.Credentials) (identity.Identity, error)
	SignOut(ctx context.Context) error
	ContinueLocal(ctx context.Context) error
	LeaveLocal(ctx context.Context) error
	Status() syncer.Status
}

type AuthHandler struct {
	session Session
	logger  *slog.Logger
}

func NewAuthHandler(session Session, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{session: session, logger: logger}
}

type authErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.session.SignIn)
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.session.SignUp)
}

func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, identity.Credentials) (identity.Identity, error)) {
	var creds identity.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := fn(r.Context(), creds)
	if err != nil {
		var authErr *identity.AuthError
		if errors.As(err, &authErr) {
			status := http.StatusUnauthorized
			if authErr.Code == identity.CodeNetworkFailed {
				status = http.StatusBadGateway
			}
			writeJSON(w, status, authErrorResponse{Error: authErr.Message, Code: authErr.Code})
			return
		}
		h.logger.Error("authenticate", "error", err)
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// SignOut saves pending edits, then ends the session.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(r.Context()); err != nil {
		// The local session is gone either way.
		h.logger.Warn("sign out", "error", err)
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// ContinueLocal keeps lists on this device only.
func (h *AuthHandler) ContinueLocal(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ContinueLocal(r.Context()); err != nil {
		if errors.Is(err, syncer.ErrSignedIn) {
			writeError(w, http.StatusConflict, "already signed in")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *AuthHandler) LeaveLocal(w http.ResponseWriter, r *http.Request) {
	if err := h.session.LeaveLocal(r.Context()); err != nil {
		h.logger.Error("leave local", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to leave local mode")
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}
