package cloud

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/quickcart/internal/auth"
	"github.com/dukerupert/quickcart/internal/docstore"
	"github.com/dukerupert/quickcart/internal/middleware"
	"github.com/dukerupert/quickcart/internal/model"
	"github.com/dukerupert/quickcart/internal/store"
)

const (
	codeInvalidEmail      = "auth/invalid-email"
	codeWeakPassword      = "auth/weak-password"
	codeEmailInUse        = "auth/email-already-in-use"
	codeInvalidCredential = "auth/invalid-credential"
	codeInvalidRequest    = "auth/invalid-request"

	minPasswordLength = 6
)

type AccountHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	docs         docstore.Store
	tokens       *auth.TokenService
	logger       *slog.Logger
}

func NewAccountHandler(us *store.UserStore, ss *store.SessionStore, docs docstore.Store, tokens *auth.TokenService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		userStore:    us,
		sessionStore: ss,
		docs:         docs,
		tokens:       tokens,
		logger:       logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s, "@")
}

// SignUp creates an account and starts its first session.
func (h *AccountHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidEmail, "The email address is badly formatted")
		return
	}
	if len(req.Password) < minPasswordLength {
		middleware.WriteError(w, http.StatusBadRequest, codeWeakPassword, "Password should be at least 6 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user, err := h.userStore.Create(email, string(hash))
	if errors.Is(err, store.ErrEmailTaken) {
		middleware.WriteError(w, http.StatusBadRequest, codeEmailInUse, "The email address is already in use by another account")
		return
	}
	if err != nil {
		h.logger.Error("create user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("account created", "uid", user.ID)
	h.startSession(w, user, http.StatusCreated)
}

// SignIn checks the password and starts a session.
func (h *AccountHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidEmail, "The email address is badly formatted")
		return
	}

	user, err := h.userStore.GetByEmail(email)
	if err != nil {
		h.logger.Error("get user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	// Unknown email and wrong password answer the same way.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidCredential, "Invalid credential")
		return
	}

	h.startSession(w, user, http.StatusOK)
}

// Refresh rotates a session: the old session is deleted and a new one is
// issued, so each refresh token works once.
func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "Missing refresh token")
		return
	}

	claims, err := h.tokens.Validate(req.RefreshToken, auth.TokenRefresh)
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeSessionExpired, "Session has ended, sign in again")
		return
	}

	sess, err := h.sessionStore.GetByID(claims.SessionID)
	if err != nil {
		h.logger.Error("get session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if sess == nil || sess.UserID != claims.Subject || time.Now().After(sess.ExpiresAt) {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeSessionExpired, "Session has ended, sign in again")
		return
	}

	user, err := h.userStore.GetByID(claims.Subject)
	if err != nil {
		h.logger.Error("get user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeSessionExpired, "Session has ended, sign in again")
		return
	}

	if err := h.sessionStore.Delete(sess.ID); err != nil {
		h.logger.Error("delete rotated session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.startSession(w, user, http.StatusOK)
}

// SignOut revokes the caller's session.
func (h *AccountHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionStore.Delete(auth.SessionID(r.Context())); err != nil {
		h.logger.Error("delete session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes the caller's account: the document first, then every
// session, then the user row.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())

	if err := h.docs.Replace(r.Context(), uid, nil); err != nil {
		h.logger.Error("delete document", "uid", uid, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.sessionStore.DeleteByUserID(uid); err != nil {
		h.logger.Error("delete sessions", "uid", uid, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.userStore.Delete(uid); err != nil {
		h.logger.Error("delete user", "uid", uid, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("account deleted", "uid", uid)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) startSession(w http.ResponseWriter, user *model.User, status int) {
	sess, err := h.sessionStore.Create(user.ID, h.tokens.RefreshTTL())
	if err != nil {
		h.logger.Error("create session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pair, err := h.tokens.Issue(user.ID, user.Email, sess.ID)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, status, sessionResponse{
		UID:          user.ID,
		Email:        user.Email,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}
