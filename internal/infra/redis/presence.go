package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence marks transport-session liveness with TTL keys. Keys expire
// on their own when a process dies without cleanup, so a stale entry
// never outlives the TTL.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func (p *Presence) Touch(ctx context.Context, sessionID string) error {
	return p.client.Set(ctx, p.key(sessionID), "1", p.ttl).Err()
}

func (p *Presence) Forget(ctx context.Context, sessionID string) error {
	return p.client.Del(ctx, p.key(sessionID)).Err()
}

func (p *Presence) key(sessionID string) string {
	return "quiz:presence:" + sessionID
}
