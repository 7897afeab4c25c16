package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Client() *redis.Client { return s.rdb }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// KV is a synchronous string key-value view of Redis under a key prefix,
// used as client-side storage. Each call is bounded by timeout.
type KV struct {
	rdb     redis.Cmdable
	prefix  string
	timeout time.Duration
}

func NewKV(rdb redis.Cmdable, prefix string) *KV {
	return &KV{rdb: rdb, prefix: prefix, timeout: 3 * time.Second}
}

func (s *Store) KV(prefix string) *KV {
	return NewKV(s.rdb, prefix)
}

func (kv *KV) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), kv.timeout)
	defer cancel()

	v, err := kv.rdb.Get(ctx, kv.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (kv *KV) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), kv.timeout)
	defer cancel()
	return kv.rdb.Set(ctx, kv.prefix+key, value, 0).Err()
}
