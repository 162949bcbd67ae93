package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPersister keeps the record under a single Redis key, for clients that share
// preferences across machines.
type RedisPersister struct {
	client redis.Cmdable
	key    string
}

// NewRedisPersister stores the record under key; an empty key means StorageName.
func NewRedisPersister(client redis.Cmdable, key string) *RedisPersister {
	if key == "" {
		key = StorageName
	}
	return &RedisPersister{client: client, key: key}
}

func (r *RedisPersister) Load(ctx context.Context, defaults Persisted) (*Persisted, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return decodeRecord(data, defaults)
}

func (r *RedisPersister) Save(ctx context.Context, p Persisted) error {
	data, err := encodeRecord(p)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
