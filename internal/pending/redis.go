package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
)

const defaultKeyPrefix = "voteledger:unlock:"

// RedisStore shares pending tokens between service instances. A claim sets a
// confirmation marker with SET NX before taking the pending entry with GETDEL,
// so of two concurrent claims only one can see the entry.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
}

var _ ledger.PendingStore = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, keyPrefix: defaultKeyPrefix}
}

// DialRedis parses a redis:// URL and checks the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) pendingKey(token string) string {
	return r.keyPrefix + "pending:" + token
}

func (r *RedisStore) confirmedKey(token string) string {
	return r.keyPrefix + "confirmed:" + token
}

func (r *RedisStore) Put(ctx context.Context, p model.PendingUnlock, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.pendingKey(p.Token), string(data), ttl).Err()
}

func (r *RedisStore) Claim(ctx context.Context, token string) (model.PendingUnlock, error) {
	first, err := r.client.SetNX(ctx, r.confirmedKey(token), "1", ConfirmedTTL).Result()
	if err != nil {
		return model.PendingUnlock{}, fmt.Errorf("marking token: %w", err)
	}
	if !first {
		return model.PendingUnlock{}, ledger.ErrAlreadyConfirmed
	}

	raw, err := r.client.GetDel(ctx, r.pendingKey(token)).Result()
	if err != nil {
		// release the marker so an unknown token keeps reporting expired
		r.client.Del(ctx, r.confirmedKey(token))
		if errors.Is(err, redis.Nil) {
			return model.PendingUnlock{}, ledger.ErrExpired
		}
		return model.PendingUnlock{}, fmt.Errorf("taking pending token: %w", err)
	}

	var p model.PendingUnlock
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.PendingUnlock{}, fmt.Errorf("decoding pending token: %w", err)
	}
	return p, nil
}

// Release puts the pending entry back before dropping the confirmed marker,
// so a concurrent Claim sees either the marker or the entry.
func (r *RedisStore) Release(ctx context.Context, p model.PendingUnlock, ttl time.Duration) error {
	if ttl > 0 {
		if err := r.Put(ctx, p, ttl); err != nil {
			return fmt.Errorf("restoring pending token: %w", err)
		}
	}
	if err := r.client.Del(ctx, r.confirmedKey(p.Token)).Err(); err != nil {
		return fmt.Errorf("clearing confirmed marker: %w", err)
	}
	return nil
}
