package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OnceGuard claims keys for a limited time so that an action keyed by the same
// value runs at most once per window, across every process sharing the Redis.
type OnceGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewOnceGuard(client *redis.Client, prefix string, ttl time.Duration) *OnceGuard {
	return &OnceGuard{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Claim takes key for the guard's TTL. ok is false when another caller already
// holds it. The token is needed to release the claim early.
func (g *OnceGuard) Claim(ctx context.Context, key string) (token string, ok bool, err error) {
	token = uuid.NewString()

	ok, err = g.client.SetNX(ctx, g.key(key), token, g.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// Release drops a claim, but only if it is still held with token.
func (g *OnceGuard) Release(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, g.client, []string{g.key(key)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// key appends k to the prefix as is; the prefix carries its own separator.
func (g *OnceGuard) key(k string) string {
	return g.prefix + k
}
