package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/identity"
	"github.com/dukerupert/quickcart/internal/model"
	"github.com/dukerupert/quickcart/internal/persist"
)

const testDebounce = 30 * time.Millisecond

type savedCall struct {
	uid   string
	lists model.Collection
}

type fakeAdapter struct {
	name string

	mu      sync.Mutex
	data    map[string]model.Collection
	loadErr error
	saveErr error
	gates   map[string]chan struct{}
	loads   int
	saves   []savedCall
	onSave  func()
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{
		name:  name,
		data:  make(map[string]model.Collection),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Load(ctx context.Context, uid string) (model.Collection, error) {
	f.mu.Lock()
	f.loads++
	gate := f.gates[uid]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	c, ok := f.data[uid]
	if !ok {
		return nil, persist.ErrNotFound
	}
	return c.Clone(), nil
}

func (f *fakeAdapter) Save(_ context.Context, uid string, c model.Collection) error {
	f.mu.Lock()
	onSave := f.onSave
	f.mu.Unlock()
	if onSave != nil {
		onSave()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, savedCall{uid: uid, lists: c})
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[uid] = c
	return nil
}

func (f *fakeAdapter) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeAdapter) saveCalls() []savedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedCall(nil), f.saves...)
}

type fakeProvider struct {
	mu        sync.Mutex
	current   *identity.Identity
	subs      map[int]func(*identity.Identity)
	next      int
	signInErr error
	signOuts  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[int]func(*identity.Identity))}
}

func (p *fakeProvider) set(id *identity.Identity) {
	p.mu.Lock()
	p.current = id
	fns := make([]func(*identity.Identity), 0, len(p.subs))
	for i := 0; i < p.next; i++ {
		if fn, ok := p.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (p *fakeProvider) SignIn(_ context.Context, creds identity.Credentials) (identity.Identity, error) {
	p.mu.Lock()
	err := p.signInErr
	p.mu.Unlock()
	if err != nil {
		return identity.Identity{}, err
	}
	id := identity.Identity{UID: "uid-" + creds.Email, Email: creds.Email}
	p.set(&id)
	return id, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, creds identity.Credentials) (identity.Identity, error) {
	return p.SignIn(ctx, creds)
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOuts++
	p.mu.Unlock()
	p.set(nil)
	return nil
}

func (p *fakeProvider) Current() (identity.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return identity.Identity{}, false
	}
	return *p.current, true
}

func (p *fakeProvider) Subscribe(fn func(*identity.Identity)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) Restore(context.Context) error { return nil }

type harness struct {
	store    *cart.Store
	provider *fakeProvider
	remote   *fakeAdapter
	local    *fakeAdapter
	ctrl     *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithDebounce(t, testDebounce)
}

func newHarnessWithDebounce(t *testing.T, debounce time.Duration) *harness {
	t.Helper()
	h := &harness{
		store:    cart.NewStore(),
		provider: newFakeProvider(),
		remote:   newFakeAdapter("remote"),
		local:    newFakeAdapter("local"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.ctrl = New(h.store, h.provider, h.remote, h.local, Options{Debounce: debounce, Logger: logger})
	h.ctrl.Start()
	t.Cleanup(func() { h.ctrl.Stop(context.Background()) })
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) signIn(t *testing.T, email string) {
	t.Helper()
	if _, err := h.ctrl.SignIn(context.Background(), identity.Credentials{Email: email, Password: "secret1"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	waitFor(t, "ready", func() bool { return h.ctrl.Status().State == Ready })
}

func sampleLists(name string) model.Collection {
	return model.Collection{{
		ID:         100,
		Name:       name,
		LastEdited: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Items:      []model.CartItem{{ID: 1, Name: "Apples"}},
	}}
}

func TestIdentityTriggersSingleLoad(t *testing.T) {
	h := newHarness(t)
	h.remote.data["uid-a@example.com"] = sampleLists("Produce")

	h.signIn(t, "a@example.com")

	if n := h.remote.loadCount(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
	lists := h.store.Lists()
	if len(lists) != 1 || lists[0].Name != "Produce" {
		t.Fatalf("lists = %+v, want loaded Produce", lists)
	}
	st := h.ctrl.Status()
	if st.Mode != ModeRemote || !st.Loaded || st.Identity == nil || st.Identity.UID != "uid-a@example.com" {
		t.Errorf("status = %+v", st)
	}
	if st.LocalOnly {
		t.Error("LocalOnly set for remote session")
	}
	if len(h.remote.saveCalls()) != 0 {
		t.Error("hydration triggered a save")
	}
}

func TestRepeatedIdentitySignalIgnored(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")

	id, _ := h.provider.Current()
	h.ctrl.HandleIdentity(&id)
	h.ctrl.HandleIdentity(&id)

	if n := h.remote.loadCount(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestLoadFailureStillUnblocksSaves(t *testing.T) {
	h := newHarness(t)
	h.remote.loadErr = errors.New("offline")

	h.signIn(t, "a@example.com")
	if len(h.store.Lists()) != 0 {
		t.Fatal("expected empty collection after failed load")
	}

	h.store.CreateList("Hardware")
	waitFor(t, "save", func() bool { return len(h.remote.saveCalls()) == 1 })

	saved := h.remote.saveCalls()[0]
	if saved.uid != "uid-a@example.com" || len(saved.lists) != 1 || saved.lists[0].Name != "Hardware" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestNoSaveBeforeLoadCompletes(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.remote.gates["uid-a@example.com"] = gate

	if _, err := h.ctrl.SignIn(context.Background(), identity.Credentials{Email: "a@example.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if st := h.ctrl.Status(); st.State != Loading {
		t.Fatalf("state = %v, want loading", st.State)
	}

	h.store.CreateList("Early")
	time.Sleep(3 * testDebounce)
	if n := len(h.remote.saveCalls()); n != 0 {
		t.Fatalf("saves = %d before load completed, want 0", n)
	}

	close(gate)
	waitFor(t, "ready", func() bool { return h.ctrl.Status().State == Ready })
}

func TestBurstOfEditsSavesOnce(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")

	id := h.store.CreateList("Produce")
	for i := 0; i < 5; i++ {
		h.store.AddItem(id)
	}
	if !h.ctrl.Status().PendingSave {
		t.Error("PendingSave not reported")
	}

	waitFor(t, "save", func() bool { return len(h.remote.saveCalls()) == 1 })
	time.Sleep(3 * testDebounce)

	saves := h.remote.saveCalls()
	if len(saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(saves))
	}
	if got := len(saves[0].lists[0].Items); got != 5 {
		t.Errorf("saved items = %d, want 5", got)
	}
	st := h.ctrl.Status()
	if st.LastSaved == nil || st.PendingSave {
		t.Errorf("status after save = %+v", st)
	}
}

func TestSaveFailureRecorded(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")
	h.remote.mu.Lock()
	h.remote.saveErr = errors.New("quota exceeded")
	h.remote.mu.Unlock()

	h.store.CreateList("Produce")
	waitFor(t, "failed save", func() bool { return h.ctrl.Status().LastError != "" })

	if got := h.ctrl.Status().LastError; got != "quota exceeded" {
		t.Errorf("LastError = %q, want %q", got, "quota exceeded")
	}
}

func TestStaleLoadDiscarded(t *testing.T) {
	h := newHarness(t)
	gateA := make(chan struct{})
	h.remote.gates["uid-a@example.com"] = gateA
	h.remote.data["uid-a@example.com"] = sampleLists("From A")
	h.remote.data["uid-b@example.com"] = sampleLists("From B")

	if _, err := h.ctrl.SignIn(context.Background(), identity.Credentials{Email: "a@example.com"}); err != nil {
		t.Fatalf("SignIn a: %v", err)
	}
	if err := h.ctrl.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	h.signIn(t, "b@example.com")

	close(gateA)
	waitFor(t, "both loads", func() bool { return h.remote.loadCount() == 2 })
	time.Sleep(20 * time.Millisecond)

	lists := h.store.Lists()
	if len(lists) != 1 || lists[0].Name != "From B" {
		t.Fatalf("lists = %+v, want From B", lists)
	}
}

func TestSignOutSavesOnceBeforeClearing(t *testing.T) {
	h := newHarnessWithDebounce(t, time.Hour)
	h.signIn(t, "a@example.com")

	var signedInAtSave []bool
	h.remote.mu.Lock()
	h.remote.onSave = func() {
		_, ok := h.provider.Current()
		signedInAtSave = append(signedInAtSave, ok)
	}
	h.remote.mu.Unlock()

	id := h.store.CreateList("Produce")
	h.store.AddItem(id)

	if err := h.ctrl.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	saves := h.remote.saveCalls()
	if len(saves) != 1 {
		t.Fatalf("saves = %d, want exactly 1", len(saves))
	}
	if len(saves[0].lists) != 1 || len(saves[0].lists[0].Items) != 1 {
		t.Errorf("final save = %+v, want pending edits", saves[0].lists)
	}
	if len(signedInAtSave) != 1 || !signedInAtSave[0] {
		t.Errorf("signed in at save = %v, want [true]", signedInAtSave)
	}

	st := h.ctrl.Status()
	if st.State != Unauthenticated || st.Mode != ModeNone || st.Loaded || st.Identity != nil {
		t.Errorf("status after sign-out = %+v", st)
	}
	if len(h.store.Lists()) != 0 {
		t.Error("store not cleared on sign-out")
	}
	if h.provider.signOuts != 1 {
		t.Errorf("provider sign-outs = %d, want 1", h.provider.signOuts)
	}
}

func TestEditsAfterSignOutNotSaved(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")
	if err := h.ctrl.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	before := len(h.remote.saveCalls())

	h.store.CreateList("Orphan")
	time.Sleep(3 * testDebounce)

	if got := len(h.remote.saveCalls()); got != before {
		t.Errorf("saves = %d, want %d", got, before)
	}
	if got := len(h.local.saveCalls()); got != 0 {
		t.Errorf("local saves = %d, want 0", got)
	}
}

func TestSignInFailureReturnsToUnauthenticated(t *testing.T) {
	h := newHarness(t)
	h.provider.signInErr = &identity.AuthError{Code: identity.CodeInvalidCredential, Message: "Invalid credential"}

	var states []State
	h.ctrl.Subscribe(func(st Status) { states = append(states, st.State) })

	_, err := h.ctrl.SignIn(context.Background(), identity.Credentials{Email: "a@example.com", Password: "x"})
	var authErr *identity.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *AuthError", err)
	}
	if len(states) != 2 || states[0] != AuthPending || states[1] != Unauthenticated {
		t.Errorf("states = %v, want [auth_pending unauthenticated]", states)
	}
}

func TestContinueLocal(t *testing.T) {
	h := newHarness(t)
	h.local.data[""] = sampleLists("Saved Locally")

	if err := h.ctrl.ContinueLocal(context.Background()); err != nil {
		t.Fatalf("ContinueLocal: %v", err)
	}
	lists := h.store.Lists()
	if len(lists) != 1 || lists[0].Name != "Saved Locally" {
		t.Fatalf("lists = %+v", lists)
	}
	st := h.ctrl.Status()
	if st.Mode != ModeLocal || !st.Loaded || !st.LocalOnly {
		t.Errorf("status = %+v", st)
	}

	h.store.RenameList(100, "Renamed")
	waitFor(t, "local save", func() bool { return len(h.local.saveCalls()) == 1 })
	if n := len(h.remote.saveCalls()); n != 0 {
		t.Errorf("remote saves = %d, want 0", n)
	}
	if n := h.remote.loadCount(); n != 0 {
		t.Errorf("remote loads = %d, want 0", n)
	}
}

func TestContinueLocalWhileSignedIn(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")
	if err := h.ctrl.ContinueLocal(context.Background()); !errors.Is(err, ErrSignedIn) {
		t.Fatalf("err = %v, want ErrSignedIn", err)
	}
}

func TestLeaveLocalFlushesPendingSave(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.ContinueLocal(context.Background()); err != nil {
		t.Fatalf("ContinueLocal: %v", err)
	}
	h.store.CreateList("Groceries")

	if err := h.ctrl.LeaveLocal(context.Background()); err != nil {
		t.Fatalf("LeaveLocal: %v", err)
	}
	saves := h.local.saveCalls()
	if len(saves) != 1 || saves[0].lists[0].Name != "Groceries" {
		t.Fatalf("local saves = %+v, want one with Groceries", saves)
	}
	if st := h.ctrl.Status(); st.Mode != ModeNone || st.LocalOnly {
		t.Errorf("status = %+v", st)
	}
	if len(h.store.Lists()) != 0 {
		t.Error("store not cleared")
	}
}

func TestSignInFromLocalFlushesLocalFirst(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.ContinueLocal(context.Background()); err != nil {
		t.Fatalf("ContinueLocal: %v", err)
	}
	h.store.CreateList("Offline List")

	h.signIn(t, "a@example.com")

	if n := len(h.local.saveCalls()); n != 1 {
		t.Errorf("local saves = %d, want 1", n)
	}
	if st := h.ctrl.Status(); st.Mode != ModeRemote {
		t.Errorf("mode = %v, want remote", st.Mode)
	}
	h.store.CreateList("Online List")
	waitFor(t, "remote save", func() bool { return len(h.remote.saveCalls()) == 1 })
	if n := len(h.local.saveCalls()); n != 1 {
		t.Errorf("local saves = %d after remote edit, want 1", n)
	}
}

func TestStartWithExistingIdentity(t *testing.T) {
	store := cart.NewStore()
	provider := newFakeProvider()
	provider.current = &identity.Identity{UID: "u1"}
	remote := newFakeAdapter("remote")
	remote.data["u1"] = sampleLists("Restored")

	ctrl := New(store, provider, remote, newFakeAdapter("local"), Options{Debounce: testDebounce})
	ctrl.Start()
	defer ctrl.Stop(context.Background())

	waitFor(t, "ready", func() bool { return ctrl.Status().State == Ready })
	if lists := store.Lists(); len(lists) != 1 || lists[0].Name != "Restored" {
		t.Errorf("lists = %+v", lists)
	}
}

func TestStopFlushesPendingSave(t *testing.T) {
	store := cart.NewStore()
	provider := newFakeProvider()
	remote := newFakeAdapter("remote")
	ctrl := New(store, provider, remote, newFakeAdapter("local"), Options{Debounce: time.Hour})
	ctrl.Start()

	if _, err := ctrl.SignIn(context.Background(), identity.Credentials{Email: "a@example.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	waitFor(t, "ready", func() bool { return ctrl.Status().State == Ready })
	store.CreateList("Unsaved")

	ctrl.Stop(context.Background())
	if n := len(remote.saveCalls()); n != 1 {
		t.Errorf("saves = %d, want 1", n)
	}
}

func TestStateText(t *testing.T) {
	b, _ := Ready.MarshalText()
	if string(b) != "ready" {
		t.Errorf("Ready = %q, want %q", b, "ready")
	}
	if ModeLocal.String() != "local" {
		t.Errorf("ModeLocal = %q, want %q", ModeLocal.String(), "local")
	}
}

func TestStatusJSONRoundTrip(t *testing.T) {
	in := Status{State: AuthPending, Mode: ModeLocal, Loaded: true, LocalOnly: true}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Status
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.State != AuthPending || out.Mode != ModeLocal {
		t.Errorf("got %v/%v, want %v/%v", out.State, out.Mode, AuthPending, ModeLocal)
	}

	var st State
	if err := st.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown state")
	}
}
