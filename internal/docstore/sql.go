package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/quickcart/internal/database"
)

// SQLStore keeps each field in its own document_fields row, so a merge is
// an upsert per field.
type SQLStore struct {
	db *database.DB
}

func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

const upsertField = `INSERT INTO document_fields (doc_key, field, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (doc_key, field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (s *SQLStore) Get(ctx context.Context, key string) (Document, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM document_fields WHERE doc_key = ?`, key)
	if err != nil {
		return nil, false, fmt.Errorf("query document: %w", err)
	}
	defer rows.Close()

	doc := make(Document)
	for rows.Next() {
		var field string
		var value []byte
		if err := rows.Scan(&field, &value); err != nil {
			return nil, false, fmt.Errorf("scan field: %w", err)
		}
		doc[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate fields: %w", err)
	}
	if len(doc) == 0 {
		return nil, false, nil
	}
	return doc, true, nil
}

func (s *SQLStore) Merge(ctx context.Context, key string, fields Document) error {
	return s.write(ctx, key, fields, false)
}

func (s *SQLStore) Replace(ctx context.Context, key string, fields Document) error {
	return s.write(ctx, key, fields, true)
}

func (s *SQLStore) write(ctx context.Context, key string, fields Document, replace bool) error {
	if err := validate(fields); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_fields WHERE doc_key = ?`, key); err != nil {
			return fmt.Errorf("clear document: %w", err)
		}
	}

	now := time.Now().UTC()
	for field, value := range fields {
		if _, err := tx.ExecContext(ctx, upsertField, key, field, string(value), now); err != nil {
			return fmt.Errorf("upsert field %s: %w", field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
