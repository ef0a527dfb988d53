// Package app assembles the client: the local store, the cloud identity
// provider, both persistence adapters, the cart store and the sync
// controller.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/cloudclient"
	"github.com/dukerupert/quickcart/internal/config"
	"github.com/dukerupert/quickcart/internal/identity"
	"github.com/dukerupert/quickcart/internal/localstore"
	"github.com/dukerupert/quickcart/internal/persist"
	"github.com/dukerupert/quickcart/internal/syncer"
)

// App holds the client state and dependencies.
type App struct {
	Store    *cart.Store
	Sync     *syncer.Controller
	Provider *identity.CloudProvider
	Local    *localstore.Store

	logger *slog.Logger
	unlock func()
}

// New opens the data directory and takes the single-instance lock. The
// controller is not started until Start.
func New(cfg config.Client, logger *slog.Logger) (*App, error) {
	local, err := localstore.Open(cfg.DataDir, localstore.Options{Passphrase: cfg.Passphrase})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	unlock, err := local.LockInstance()
	if err != nil {
		return nil, err
	}
	logger.Info("data directory opened", "dir", local.Dir(), "encrypted", cfg.Passphrase != "")

	client := cloudclient.NewClient(cloudclient.Config{BaseURL: cfg.CloudURL})
	provider := identity.NewCloudProvider(client, local, logger.With("component", "identity"))
	store := cart.NewStore()
	ctrl := syncer.New(store, provider,
		persist.NewRemote(client),
		persist.NewLocal(local),
		syncer.Options{Debounce: cfg.SaveDebounce, Logger: logger.With("component", "sync")},
	)

	return &App{
		Store:    store,
		Sync:     ctrl,
		Provider: provider,
		Local:    local,
		logger:   logger,
		unlock:   unlock,
	}, nil
}

// Start attaches the controller and restores a persisted session. A
// session that cannot be restored leaves the user signed out.
func (a *App) Start(ctx context.Context) {
	a.Sync.Start()
	if err := a.Provider.Restore(ctx); err != nil {
		a.logger.Warn("restore session", "error", err)
	}
}

// Close flushes a pending save and releases the instance lock.
func (a *App) Close(ctx context.Context) {
	a.Sync.Stop(ctx)
	a.unlock()
}
