package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukerupert/quickcart/internal/cloudclient"
)

// SessionKey is the local storage key holding the persisted session.
const SessionKey = "quickcart-session"

// KV is the local storage the provider persists its session in.
type KV interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, data []byte) error
	Delete(key string) error
}

type persistedSession struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
}

// CloudProvider authenticates against quickcart-cloud. It keeps the user
// signed in across restarts by persisting the refresh token.
type CloudProvider struct {
	client *cloudclient.Client
	kv     KV
	logger *slog.Logger

	mu      sync.Mutex
	current *Identity
	sig     signal
}

// NewCloudProvider wires a provider to client. Session changes reported by
// the client, including a session the cloud rejects, flow into the signal.
func NewCloudProvider(client *cloudclient.Client, kv KV, logger *slog.Logger) *CloudProvider {
	p := &CloudProvider{
		client: client,
		kv:     kv,
		logger: logger,
	}
	client.OnTokens(p.tokensChanged)
	return p
}

// Client returns the underlying cloud client, which also serves as the
// remote document store.
func (p *CloudProvider) Client() *cloudclient.Client {
	return p.client
}

func (p *CloudProvider) SignIn(ctx context.Context, creds Credentials) (Identity, error) {
	if err := checkCredentials(creds); err != nil {
		return Identity{}, err
	}
	t, err := p.client.SignIn(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		return Identity{}, toAuthError(err)
	}
	return Identity{UID: t.UID, Email: t.Email}, nil
}

func (p *CloudProvider) SignUp(ctx context.Context, creds Credentials) (Identity, error) {
	if err := checkCredentials(creds); err != nil {
		return Identity{}, err
	}
	t, err := p.client.SignUp(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		return Identity{}, toAuthError(err)
	}
	return Identity{UID: t.UID, Email: t.Email}, nil
}

// SignOut revokes the session. Local credentials are cleared even if the
// cloud cannot be reached.
func (p *CloudProvider) SignOut(ctx context.Context) error {
	err := p.client.SignOut(ctx)
	// The client reports nothing when it held no session.
	p.tokensChanged(nil)
	if err != nil {
		p.logger.Warn("cloud sign-out failed", "error", err)
	}
	return nil
}

func (p *CloudProvider) Current() (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Identity{}, false
	}
	return *p.current, true
}

func (p *CloudProvider) Subscribe(fn func(*Identity)) func() {
	return p.sig.subscribe(fn)
}

// Restore signs the user back in from the persisted refresh token. A token
// the cloud rejects is discarded; a network failure keeps it for next time.
func (p *CloudProvider) Restore(ctx context.Context) error {
	data, found, err := p.kv.Read(SessionKey)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if !found {
		return nil
	}

	var ps persistedSession
	if err := json.Unmarshal(data, &ps); err != nil || ps.RefreshToken == "" {
		p.logger.Warn("discarding unreadable session")
		return p.kv.Delete(SessionKey)
	}

	if _, err := p.client.Refresh(ctx, ps.RefreshToken); err != nil {
		var apiErr *cloudclient.APIError
		if errors.As(err, &apiErr) {
			p.logger.Info("persisted session rejected", "code", apiErr.Code)
			return p.kv.Delete(SessionKey)
		}
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

// tokensChanged runs for every session change the client reports.
func (p *CloudProvider) tokensChanged(t *cloudclient.Tokens) {
	if t == nil {
		p.mu.Lock()
		had := p.current != nil
		p.current = nil
		p.mu.Unlock()

		if err := p.kv.Delete(SessionKey); err != nil {
			p.logger.Error("failed to delete session", "error", err)
		}
		if had {
			p.sig.emit(nil)
		}
		return
	}

	data, err := json.Marshal(persistedSession{UID: t.UID, Email: t.Email, RefreshToken: t.RefreshToken})
	if err == nil {
		err = p.kv.Write(SessionKey, data)
	}
	if err != nil {
		p.logger.Error("failed to persist session", "error", err)
	}

	id := Identity{UID: t.UID, Email: t.Email}
	p.mu.Lock()
	changed := p.current == nil || *p.current != id
	p.current = &id
	p.mu.Unlock()

	if changed {
		p.sig.emit(&id)
	}
}

func checkCredentials(creds Credentials) error {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return &AuthError{Code: CodeMissingCredentials, Message: "Email and password are required."}
	}
	return nil
}

// toAuthError maps a cloud client failure onto an AuthError.
func toAuthError(err error) error {
	var apiErr *cloudclient.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		msg := CleanMessage(apiErr.Message)
		if msg == "" {
			msg = "Authentication failed."
		}
		return &AuthError{Code: code, Message: msg}
	}
	return &AuthError{
		Code:    CodeNetworkFailed,
		Message: "Unable to reach the server. Check your connection and try again.",
	}
}
