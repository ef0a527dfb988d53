// Package syncer decides when the list collection is loaded and saved.
//
// An identity from the provider selects the remote adapter and triggers a
// single load; choosing to continue without signing in selects the local
// adapter instead. Once the load has finished, every user edit arms a
// debounce timer and the collection is written when edits stop. Loads and
// saves are tagged with a session generation so that work started for one
// session never lands in the next.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/identity"
	"github.com/dukerupert/quickcart/internal/persist"
)

// ErrSignedIn is returned when local-only mode is requested while a user is
// signed in.
var ErrSignedIn = errors.New("syncer: a user is signed in")

// Options configures a Controller.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

type Controller struct {
	store    *cart.Store
	provider identity.Provider
	remote   persist.Adapter
	local    persist.Adapter
	logger   *slog.Logger
	debounce *Debouncer

	mu        sync.Mutex
	state     State
	mode      Mode
	ident     *identity.Identity
	loaded    bool
	gen       uint64
	lastSaved time.Time
	lastErr   string

	// sessionMu makes a generation change and the store swap that goes
	// with it atomic with respect to loads landing.
	sessionMu sync.Mutex
	// saveMu keeps saves from overlapping.
	saveMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]func(Status)
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()
	wg     sync.WaitGroup
}

func New(store *cart.Store, provider identity.Provider, remote, local persist.Adapter, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:    store,
		provider: provider,
		remote:   remote,
		local:    local,
		logger:   logger.With("component", "syncer"),
		debounce: NewDebouncer(opts.Debounce),
		subs:     make(map[int]func(Status)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start wires the controller to the store and the identity signal. If the
// provider already has a user, loading begins immediately.
func (c *Controller) Start() {
	c.unsubs = append(c.unsubs,
		c.store.Subscribe(c.handleChange),
		c.provider.Subscribe(c.HandleIdentity),
	)
	if id, ok := c.provider.Current(); ok {
		c.HandleIdentity(&id)
	}
}

// Stop writes any pending save, detaches from the store and provider, and
// waits for in-flight loads.
func (c *Controller) Stop(ctx context.Context) {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.flushPending(ctx)
	c.cancel()
	c.wg.Wait()
}

// Subscribe registers fn for status changes.
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) publish() {
	st := c.Status()

	c.subMu.Lock()
	fns := make([]func(Status), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (c *Controller) Status() Status {
	pending := c.debounce.Pending()

	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:       c.state,
		Mode:        c.mode,
		Loaded:      c.loaded,
		PendingSave: pending,
		LastError:   c.lastErr,
		LocalOnly:   c.mode == ModeLocal,
	}
	if c.ident != nil {
		id := *c.ident
		st.Identity = &id
	}
	if !c.lastSaved.IsZero() {
		t := c.lastSaved
		st.LastSaved = &t
	}
	return st
}

// HandleIdentity reacts to the identity signal. A non-nil identity starts
// a remote session; nil ends whatever remote session is active.
func (c *Controller) HandleIdentity(id *identity.Identity) {
	if id == nil {
		c.endRemote()
		return
	}

	c.mu.Lock()
	if c.ident != nil && c.ident.UID == id.UID && (c.state == Loading || c.state == Ready) {
		c.mu.Unlock()
		return
	}
	fromLocal := c.mode == ModeLocal
	c.mu.Unlock()

	if fromLocal {
		c.flushPending(c.ctx)
	}

	c.logger.Info("identity established", "uid", id.UID)
	ident := *id
	c.beginSession(ModeRemote, &ident)
}

func (c *Controller) endRemote() {
	c.debounce.Cancel()

	c.sessionMu.Lock()
	c.mu.Lock()
	if c.ident == nil {
		c.mu.Unlock()
		c.sessionMu.Unlock()
		return
	}
	c.gen++
	c.ident = nil
	c.state = Unauthenticated
	c.mode = ModeNone
	c.loaded = false
	c.lastErr = ""
	c.mu.Unlock()
	c.store.Clear()
	c.sessionMu.Unlock()

	c.logger.Info("identity cleared")
	c.publish()
}

// beginSession bumps the generation, clears the store and loads the
// collection through the adapter for mode. The returned channel closes
// when the load has been applied or discarded.
func (c *Controller) beginSession(mode Mode, id *identity.Identity) <-chan struct{} {
	c.debounce.Cancel()

	c.sessionMu.Lock()
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mode = mode
	c.ident = id
	c.loaded = false
	c.lastErr = ""
	if mode == ModeRemote {
		c.state = Loading
	} else {
		c.state = Unauthenticated
	}
	c.mu.Unlock()
	c.store.Clear()
	c.sessionMu.Unlock()
	c.publish()

	adapter, uid := c.adapter(mode, id)
	done := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		c.load(gen, adapter, uid)
	}()
	return done
}

func (c *Controller) adapter(mode Mode, id *identity.Identity) (persist.Adapter, string) {
	if mode == ModeLocal {
		return c.local, ""
	}
	return c.remote, id.UID
}

func (c *Controller) load(gen uint64, adapter persist.Adapter, uid string) {
	coll, err := adapter.Load(c.ctx, uid)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		c.logger.Info("no saved lists", "adapter", adapter.Name())
	case err != nil:
		c.logger.Warn("load failed, starting empty", "adapter", adapter.Name(), "error", err)
	}

	c.sessionMu.Lock()
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.sessionMu.Unlock()
		c.logger.Debug("discarding stale load", "adapter", adapter.Name())
		return
	}
	c.mu.Unlock()

	if err == nil {
		c.store.Replace(coll)
	}

	c.mu.Lock()
	c.loaded = true
	if c.mode == ModeRemote {
		c.state = Ready
	}
	c.mu.Unlock()
	c.sessionMu.Unlock()

	if err == nil {
		c.logger.Info("lists loaded", "adapter", adapter.Name(), "lists", len(coll))
	}
	c.publish()
}

// handleChange arms the debounce timer for user edits made while a loaded
// session is active.
func (c *Controller) handleChange(ch cart.Change) {
	if !ch.UserEdit() {
		return
	}

	c.mu.Lock()
	armed := c.loaded && ((c.mode == ModeRemote && c.state == Ready) || c.mode == ModeLocal)
	gen := c.gen
	c.mu.Unlock()
	if !armed {
		return
	}

	c.debounce.Trigger(func() {
		c.save(c.ctx, gen)
	})
	c.publish()
}

// flushPending writes a pending debounced save now.
func (c *Controller) flushPending(ctx context.Context) {
	if !c.debounce.Cancel() {
		return
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.save(ctx, gen)
}

// save writes the collection if gen is still the active, loaded session.
func (c *Controller) save(ctx context.Context, gen uint64) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if gen != c.gen || !c.loaded || c.mode == ModeNone {
		c.mu.Unlock()
		return
	}
	adapter, uid := c.adapter(c.mode, c.ident)
	snapshot := c.store.Lists()
	c.mu.Unlock()

	err := adapter.Save(ctx, uid, snapshot)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastSaved = time.Now()
		c.lastErr = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("save failed", "adapter", adapter.Name(), "error", err)
	} else {
		c.logger.Debug("lists saved", "adapter", adapter.Name(), "lists", len(snapshot))
	}
	c.publish()
}

// SignIn authenticates with the provider. The identity signal then starts
// the remote session.
func (c *Controller) SignIn(ctx context.Context, creds identity.Credentials) (identity.Identity, error) {
	return c.authenticate(ctx, creds, c.provider.SignIn)
}

// SignUp creates an account and signs it in.
func (c *Controller) SignUp(ctx context.Context, creds identity.Credentials) (identity.Identity, error) {
	return c.authenticate(ctx, creds, c.provider.SignUp)
}

func (c *Controller) authenticate(ctx context.Context, creds identity.Credentials,
	fn func(context.Context, identity.Credentials) (identity.Identity, error)) (identity.Identity, error) {
	c.mu.Lock()
	prev := c.state
	if prev == Unauthenticated {
		c.state = AuthPending
	}
	c.mu.Unlock()
	c.publish()

	id, err := fn(ctx, creds)
	if err != nil {
		c.mu.Lock()
		if c.state == AuthPending {
			c.state = Unauthenticated
		}
		c.mu.Unlock()
		c.publish()
		return identity.Identity{}, err
	}

	c.HandleIdentity(&id)
	return id, nil
}

// SignOut writes the collection one last time while the session is still
// valid, then signs out and clears local state.
func (c *Controller) SignOut(ctx context.Context) error {
	c.debounce.Cancel()

	c.mu.Lock()
	gen := c.gen
	final := c.mode == ModeRemote && c.loaded
	c.mu.Unlock()

	if final {
		c.save(ctx, gen)
	}

	err := c.provider.SignOut(ctx)
	c.endRemote()
	return err
}

// ContinueLocal switches to local-only mode and waits for the local
// collection to load.
func (c *Controller) ContinueLocal(ctx context.Context) error {
	c.mu.Lock()
	if c.ident != nil {
		c.mu.Unlock()
		return ErrSignedIn
	}
	if c.mode == ModeLocal {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	done := c.beginSession(ModeLocal, nil)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveLocal writes any pending local save and returns to the signed-out
// state with an empty collection.
func (c *Controller) LeaveLocal(ctx context.Context) error {
	c.mu.Lock()
	local := c.mode == ModeLocal
	c.mu.Unlock()
	if !local {
		return nil
	}

	c.flushPending(ctx)

	c.sessionMu.Lock()
	c.mu.Lock()
	c.gen++
	c.mode = ModeNone
	c.state = Unauthenticated
	c.loaded = false
	c.lastErr = ""
	c.mu.Unlock()
	c.store.Clear()
	c.sessionMu.Unlock()

	c.publish()
	return nil
}
