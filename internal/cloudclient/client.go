// Package cloudclient talks to the quickcart-cloud HTTP API: account
// sign-up, sign-in, token refresh and sign-out, plus reads and writes of the
// signed-in user's document.
package cloudclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNoSession is returned by document calls made while signed out.
var ErrNoSession = errors.New("cloudclient: not signed in")

// refreshSkew refreshes the access token slightly before it expires.
const refreshSkew = 30 * time.Second

// Config holds the cloud endpoint settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Tokens is a signed-in session as issued by the cloud.
type Tokens struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// APIError is an error answered by the cloud.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("cloud: status %d (%s).", e.Status, e.Code)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Client is safe for concurrent use. It holds at most one session.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	tokens     *Tokens
	onTokens   func(*Tokens)
	refreshMu  sync.Mutex
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client for the cloud at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

// OnTokens registers fn to be called whenever the session changes: after
// sign-in, after a token refresh, and with nil when the session ends or the
// cloud rejects it. fn runs outside the client's lock.
func (c *Client) OnTokens(fn func(*Tokens)) {
	c.mu.Lock()
	c.onTokens = fn
	c.mu.Unlock()
}

// Session returns the current session, if any.
func (c *Client) Session() (Tokens, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return Tokens{}, false
	}
	return *c.tokens, true
}

func (c *Client) setSession(t *Tokens) {
	c.mu.Lock()
	c.tokens = t
	fn := c.onTokens
	c.mu.Unlock()

	if fn != nil {
		if t == nil {
			fn(nil)
			return
		}
		cp := *t
		fn(&cp)
	}
}

// SignUp creates an account and starts a session for it.
func (c *Client) SignUp(ctx context.Context, email, password string) (Tokens, error) {
	return c.startSession(ctx, "/v1/accounts/signup", credentialsRequest{Email: email, Password: password})
}

// SignIn starts a session for an existing account.
func (c *Client) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	return c.startSession(ctx, "/v1/accounts/signin", credentialsRequest{Email: email, Password: password})
}

// Refresh exchanges a refresh token for a new session. It is used both to
// restore a persisted session and to renew an expired access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return c.startSession(ctx, "/v1/accounts/refresh", refreshRequest{RefreshToken: refreshToken})
}

func (c *Client) startSession(ctx context.Context, path string, body any) (Tokens, error) {
	var t Tokens
	if err := c.do(ctx, http.MethodPost, path, "", body, &t); err != nil {
		return Tokens{}, err
	}
	c.setSession(&t)
	return t, nil
}

// SignOut revokes the session on the cloud and forgets it locally. The local
// session is dropped even when the revoke call fails.
func (c *Client) SignOut(ctx context.Context) error {
	t, ok := c.Session()
	if !ok {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/v1/accounts/signout", t.AccessToken, nil, nil)
	c.setSession(nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// ReadDocument fetches the user's document. found is false when the user
// has never written one.
func (c *Client) ReadDocument(ctx context.Context, uid string) (map[string]json.RawMessage, bool, error) {
	var fields map[string]json.RawMessage
	err := c.authorized(ctx, http.MethodGet, documentPath(uid), nil, &fields)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return fields, true, nil
}

// WriteDocument writes fields into the user's document. With merge the
// given fields overwrite their namesakes and every other field is kept;
// without it the document is replaced.
func (c *Client) WriteDocument(ctx context.Context, uid string, fields map[string]any, merge bool) error {
	method := http.MethodPut
	if merge {
		method = http.MethodPatch
	}
	return c.authorized(ctx, method, documentPath(uid), fields, nil)
}

func documentPath(uid string) string {
	return "/v1/users/" + url.PathEscape(uid) + "/document"
}

// authorized performs a bearer request, refreshing the access token first
// when it is about to expire and once more if the cloud answers 401.
func (c *Client) authorized(ctx context.Context, method, path string, body, out any) error {
	t, ok := c.Session()
	if !ok {
		return ErrNoSession
	}
	if !t.ExpiresAt.IsZero() && c.now().Add(refreshSkew).After(t.ExpiresAt) {
		if t, err := c.renew(ctx, t); err == nil {
			return c.do(ctx, method, path, t.AccessToken, body, out)
		} else if isUnauthorized(err) {
			return err
		}
	}

	err := c.do(ctx, method, path, t.AccessToken, body, out)
	if !isUnauthorized(err) {
		return err
	}
	t, err = c.renew(ctx, t)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, t.AccessToken, body, out)
}

// renew refreshes stale. Concurrent callers share one refresh: whoever
// arrives second sees the already-rotated session and reuses it.
func (c *Client) renew(ctx context.Context, stale Tokens) (Tokens, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	cur, ok := c.Session()
	if !ok {
		return Tokens{}, ErrNoSession
	}
	if cur.AccessToken != stale.AccessToken {
		return cur, nil
	}

	t, err := c.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if isUnauthorized(err) {
			c.setSession(nil)
		}
		return Tokens{}, err
	}
	return t, nil
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var eb errorBody
	if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
		apiErr.Code = eb.Error.Code
		apiErr.Message = eb.Error.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = "http/" + strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "-"))
	}
	return apiErr
}
