package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/dukerupert/quickcart/internal/database"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func compactJSON(t *testing.T, v json.RawMessage) string {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		t.Fatalf("compact %s: %v", v, err)
	}
	return buf.String()
}

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	key := uuid.NewString()

	t.Run("missing", func(t *testing.T) {
		doc, found, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if found || doc != nil {
			t.Errorf("found = %v, doc = %v, want missing", found, doc)
		}
	})

	t.Run("merge keeps sibling fields", func(t *testing.T) {
		if err := s.Merge(ctx, key, Document{"theme": raw(`"dark"`)}); err != nil {
			t.Fatalf("merge: %v", err)
		}
		if err := s.Merge(ctx, key, Document{"lists": raw(`[{"id":1}]`), "lastUpdated": raw(`"2026-03-01T00:00:00Z"`)}); err != nil {
			t.Fatalf("merge: %v", err)
		}
		doc, found, err := s.Get(ctx, key)
		if err != nil || !found {
			t.Fatalf("get: found=%v err=%v", found, err)
		}
		if got := compactJSON(t, doc["theme"]); got != `"dark"` {
			t.Errorf("theme = %s, want %q", got, `"dark"`)
		}
		if got := compactJSON(t, doc["lists"]); got != `[{"id":1}]` {
			t.Errorf("lists = %s", got)
		}
	})

	t.Run("merge overwrites named field", func(t *testing.T) {
		if err := s.Merge(ctx, key, Document{"lists": raw(`[]`)}); err != nil {
			t.Fatalf("merge: %v", err)
		}
		doc, _, _ := s.Get(ctx, key)
		if got := compactJSON(t, doc["lists"]); got != `[]` {
			t.Errorf("lists = %s, want []", got)
		}
		if len(doc) != 3 {
			t.Errorf("fields = %d, want 3", len(doc))
		}
	})

	t.Run("replace drops other fields", func(t *testing.T) {
		if err := s.Replace(ctx, key, Document{"lists": raw(`[{"id":2}]`)}); err != nil {
			t.Fatalf("replace: %v", err)
		}
		doc, found, _ := s.Get(ctx, key)
		if !found || len(doc) != 1 {
			t.Fatalf("doc = %v, want only lists", doc)
		}
		if _, ok := doc["theme"]; ok {
			t.Error("theme survived replace")
		}
	})

	t.Run("replace with nothing removes document", func(t *testing.T) {
		if err := s.Replace(ctx, key, Document{}); err != nil {
			t.Fatalf("replace: %v", err)
		}
		if _, found, _ := s.Get(ctx, key); found {
			t.Error("document still found")
		}
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		err := s.Merge(ctx, key, Document{"bad": raw(`{nope`)})
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("err = %v, want ErrInvalidValue", err)
		}
	})

	t.Run("documents are independent", func(t *testing.T) {
		other := uuid.NewString()
		s.Merge(ctx, key, Document{"a": raw(`1`)})
		s.Merge(ctx, other, Document{"b": raw(`2`)})
		doc, _, _ := s.Get(ctx, key)
		if _, ok := doc["b"]; ok {
			t.Error("field leaked between documents")
		}
	})
}

func TestSQLStore(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	exerciseStore(t, NewSQLStore(db))
}

func TestSQLStorePostgres(t *testing.T) {
	dsn := os.Getenv("QUICKCART_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUICKCART_TEST_POSTGRES_DSN not set")
	}
	db, err := database.OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	exerciseStore(t, NewSQLStore(db))
}

func TestS3Store(t *testing.T) {
	exerciseStore(t, newS3Store(newMockS3(), "bucket", ""))
}

func TestS3StoreObjectLayout(t *testing.T) {
	mock := newMockS3()
	s := newS3Store(mock, "bucket", "docs")

	if err := s.Merge(context.Background(), "u1", Document{"lists": raw(`[]`)}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, ok := mock.objects["docs/u1.json"]; !ok {
		t.Errorf("objects = %v, want docs/u1.json", mock.objects)
	}
}

func TestS3StoreGetError(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	s := newS3Store(mock, "bucket", "")

	if _, _, err := s.Get(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Merge(context.Background(), "u1", Document{"x": raw(`1`)}); err == nil {
		t.Fatal("expected merge to fail when the read fails")
	}
}

func TestNewS3StoreRequiresCredentials(t *testing.T) {
	if _, err := NewS3Store(S3Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("QUICKCART_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("QUICKCART_TEST_REDIS_ADDR not set")
	}
	s, err := NewRedisStore(context.Background(), addr, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}
