package redis

import (
	"context"
	"errors"
	"time"

	"cybershield-progress/internal/infra/local"
	"github.com/redis/go-redis/v9"
)

// LocalBackend keeps each device's durable guest state in one Redis hash:
//
//	HSET device:{deviceID} {key} {value}
//
// The hash expiry is refreshed on every write, so an abandoned device ages out.
type LocalBackend struct {
	client *redis.Client
	ttl    time.Duration
}

var _ local.Backend = (*LocalBackend)(nil)

// NewLocalBackend builds the backend. ttl <= 0 keeps device hashes forever.
func NewLocalBackend(client *redis.Client, ttl time.Duration) *LocalBackend {
	return &LocalBackend{client: client, ttl: ttl}
}

func (b *LocalBackend) Device(deviceID string) local.KeyValue {
	return &deviceKV{client: b.client, ttl: b.ttl, key: "device:" + deviceID}
}

type deviceKV struct {
	client *redis.Client
	ttl    time.Duration
	key    string
}

func (d *deviceKV) Get(ctx context.Context, field string) ([]byte, bool, error) {
	v, err := d.client.HGet(ctx, d.key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *deviceKV) Set(ctx context.Context, field string, value []byte) error {
	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, d.key, field, value)
	if d.ttl > 0 {
		pipe.Expire(ctx, d.key, d.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (d *deviceKV) Delete(ctx context.Context, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return d.client.HDel(ctx, d.key, fields...).Err()
}
