package docstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document in a hash, one hash field per document
// field. HSET already has merge semantics.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: "quickcart:doc:"}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) hashKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (Document, bool, error) {
	values, err := s.client.HGetAll(ctx, s.hashKey(key)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("hgetall: %w", err)
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	doc := make(Document, len(values))
	for field, value := range values {
		doc[field] = []byte(value)
	}
	return doc, true, nil
}

func (s *RedisStore) Merge(ctx context.Context, key string, fields Document) error {
	if err := validate(fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.hashKey(key), hashValues(fields)).Err(); err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	return nil
}

func (s *RedisStore) Replace(ctx context.Context, key string, fields Document) error {
	if err := validate(fields); err != nil {
		return err
	}
	k := s.hashKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(fields) > 0 {
			pipe.HSet(ctx, k, hashValues(fields))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

func hashValues(fields Document) map[string]any {
	values := make(map[string]any, len(fields))
	for field, value := range fields {
		values[field] = string(value)
	}
	return values
}
