package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/quickcart/internal/codec"
	"github.com/dukerupert/quickcart/internal/model"
)

const (
	fieldLists       = "lists"
	fieldLastUpdated = "lastUpdated"
)

// DocumentStore is the remote document store boundary: one document per
// user identity, made of named JSON fields.
type DocumentStore interface {
	ReadDocument(ctx context.Context, uid string) (fields map[string]json.RawMessage, found bool, err error)
	WriteDocument(ctx context.Context, uid string, fields map[string]any, merge bool) error
}

// Remote keeps the collection in the user's cloud document. Writes merge,
// so document fields other than lists and lastUpdated survive.
type Remote struct {
	docs DocumentStore
	now  func() time.Time
}

func NewRemote(docs DocumentStore) *Remote {
	return &Remote{docs: docs, now: time.Now}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Load(ctx context.Context, uid string) (model.Collection, error) {
	fields, found, err := r.docs.ReadDocument(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	raw, ok := fields[fieldLists]
	if !found || !ok || string(raw) == "null" {
		return nil, ErrNotFound
	}

	var lists []codec.WireList
	if err := json.Unmarshal(raw, &lists); err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}
	c, err := codec.Deserialize(lists)
	if err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}
	return c, nil
}

func (r *Remote) Save(ctx context.Context, uid string, c model.Collection) error {
	fields := map[string]any{
		fieldLists:       codec.Serialize(c),
		fieldLastUpdated: codec.FormatTime(r.now()),
	}
	if err := r.docs.WriteDocument(ctx, uid, fields, true); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
