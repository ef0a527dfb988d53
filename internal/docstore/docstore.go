// Package docstore keeps one JSON document per user on the cloud side. A
// document is a set of named JSON fields; a merge write overwrites the named
// fields and keeps the rest, a replace write swaps the whole set.
//
// Three backends share the contract: SQLStore (a row per field), RedisStore
// (a hash per document) and S3Store (an object per document).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Document maps field names to raw JSON values.
type Document map[string]json.RawMessage

// ErrInvalidValue is returned when a field value is not valid JSON.
var ErrInvalidValue = errors.New("docstore: field value is not valid JSON")

// Store reads and writes documents by key. A document with no fields does
// not exist.
type Store interface {
	Get(ctx context.Context, key string) (Document, bool, error)
	Merge(ctx context.Context, key string, fields Document) error
	Replace(ctx context.Context, key string, fields Document) error
}

func validate(fields Document) error {
	for _, v := range fields {
		if !json.Valid(v) {
			return ErrInvalidValue
		}
	}
	return nil
}
