// Package identity is the boundary to the identity provider. It exposes the
// signed-in user as a signal: subscribers receive the current identity, or
// nil, every time it changes.
package identity

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

// Identity is an authenticated user.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Credentials are what the user types into the sign-in form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Error codes reported by the provider.
const (
	CodeInvalidEmail       = "auth/invalid-email"
	CodeWeakPassword       = "auth/weak-password"
	CodeEmailInUse         = "auth/email-already-in-use"
	CodeInvalidCredential  = "auth/invalid-credential"
	CodeSessionExpired     = "auth/session-expired"
	CodeUnauthorized       = "auth/unauthorized"
	CodeTooManyRequests    = "auth/too-many-requests"
	CodeNetworkFailed      = "auth/network-request-failed"
	CodeMissingCredentials = "auth/missing-credentials"
)

// AuthError is a failed authentication attempt. Message is ready for display.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

var codeSuffix = regexp.MustCompile(`\s*\(auth/[^)]*\)\.?\s*$`)

// CleanMessage strips the backend's "cloud: " prefix and trailing
// "(auth/...)." code from a raw provider message.
func CleanMessage(raw string) string {
	msg := strings.TrimSpace(raw)
	msg = strings.TrimPrefix(msg, "cloud: ")
	msg = codeSuffix.ReplaceAllString(msg, "")
	return strings.TrimSpace(msg)
}

// Provider signs users in and out and reports who is signed in.
type Provider interface {
	SignIn(ctx context.Context, creds Credentials) (Identity, error)
	SignUp(ctx context.Context, creds Credentials) (Identity, error)
	SignOut(ctx context.Context) error
	Current() (Identity, bool)
	// Subscribe registers fn for identity changes and returns a function
	// that removes it. fn receives nil when the user is signed out.
	Subscribe(fn func(*Identity)) func()
	// Restore re-establishes a session persisted by an earlier run.
	Restore(ctx context.Context) error
}

// signal fans an identity change out to subscribers.
type signal struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(*Identity)
}

func (s *signal) subscribe(fn func(*Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(*Identity))
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *signal) emit(id *Identity) {
	s.mu.Lock()
	fns := make([]func(*Identity), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if id == nil {
			fn(nil)
			continue
		}
		cp := *id
		fn(&cp)
	}
}
