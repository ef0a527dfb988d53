// Package persist saves and loads a user's list collection. Two adapters
// implement the same contract: Remote writes a per-user cloud document and
// Local writes a fixed key in local durable storage. Callers pick one per
// session and never write to both.
package persist

import (
	"context"
	"errors"

	"github.com/dukerupert/quickcart/internal/model"
)

// ErrNotFound reports that no collection has been saved yet.
var ErrNotFound = errors.New("persist: no saved lists")

// Adapter loads and saves a collection for a user. Local adapters ignore uid.
type Adapter interface {
	Name() string
	Load(ctx context.Context, uid string) (model.Collection, error)
	Save(ctx context.Context, uid string, c model.Collection) error
}
