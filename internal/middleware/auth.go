package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/quickcart/internal/auth"
	"github.com/dukerupert/quickcart/internal/store"
)

// Error codes shared by the cloud API and its middleware.
const (
	CodeUnauthorized    = "auth/unauthorized"
	CodeSessionExpired  = "auth/session-expired"
	CodeTooManyRequests = "auth/too-many-requests"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorMessage renders text the way the cloud reports errors, with a
// "cloud: " prefix and the code in trailing parentheses.
func ErrorMessage(text, code string) string {
	return fmt.Sprintf("cloud: %s (%s).", text, code)
}

// WriteError answers a cloud API error.
func WriteError(w http.ResponseWriter, status int, code, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: ErrorMessage(text, code)}})
}

// RequireBearer validates the access token in the Authorization header and
// the session it belongs to, then populates AuthContext.
func RequireBearer(tokens *auth.TokenService, sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Missing access token")
				return
			}

			claims, err := tokens.Validate(raw, auth.TokenAccess)
			if errors.Is(err, auth.ErrExpiredToken) {
				WriteError(w, http.StatusUnauthorized, CodeSessionExpired, "Access token expired")
				return
			}
			if err != nil {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid access token")
				return
			}

			sess, err := sessions.GetByID(claims.SessionID)
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if sess == nil || sess.UserID != claims.Subject || time.Now().After(sess.ExpiresAt) {
				WriteError(w, http.StatusUnauthorized, CodeSessionExpired, "Session has ended")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{
				UserID:    claims.Subject,
				Email:     claims.Email,
				SessionID: sess.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
