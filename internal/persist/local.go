package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/quickcart/internal/codec"
	"github.com/dukerupert/quickcart/internal/localstore"
	"github.com/dukerupert/quickcart/internal/model"
)

// ListsKey is the local storage key holding the collection.
const ListsKey = "quickcart-lists"

// KV is the local durable storage boundary.
type KV interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, data []byte) error
}

// asider is implemented by stores that can move an unreadable value out
// of the way instead of letting the next save overwrite it.
type asider interface {
	SetAside(key string) (string, error)
}

// Local keeps the collection under ListsKey. It serves sessions where the
// user chose to continue without signing in.
type Local struct {
	kv KV
}

func NewLocal(kv KV) *Local {
	return &Local{kv: kv}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Load(_ context.Context, _ string) (model.Collection, error) {
	data, found, err := l.kv.Read(ListsKey)
	if errors.Is(err, localstore.ErrDecrypt) {
		if a, ok := l.kv.(asider); ok {
			aside, asideErr := a.SetAside(ListsKey)
			if asideErr != nil {
				return nil, fmt.Errorf("read local lists: %w (set aside: %v)", err, asideErr)
			}
			return nil, fmt.Errorf("read local lists: %w; kept as %s", err, aside)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read local lists: %w", err)
	}
	if !found || len(data) == 0 {
		return nil, ErrNotFound
	}
	c, err := codec.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (l *Local) Save(_ context.Context, _ string, c model.Collection) error {
	data, err := codec.Marshal(c)
	if err != nil {
		return err
	}
	if err := l.kv.Write(ListsKey, data); err != nil {
		return fmt.Errorf("write local lists: %w", err)
	}
	return nil
}
