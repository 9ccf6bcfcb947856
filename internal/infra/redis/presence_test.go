package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPresenceTouchAndForget(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	presence := NewPresence(client, 30*time.Second)
	if err := presence.Touch(ctx, "conn-a"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !mr.Exists("quiz:presence:conn-a") {
		t.Fatalf("presence key missing after touch")
	}
	if ttl := mr.TTL("quiz:presence:conn-a"); ttl != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %v", ttl)
	}

	// Keys vanish without cleanup once the TTL elapses.
	mr.FastForward(31 * time.Second)
	if mr.Exists("quiz:presence:conn-a") {
		t.Fatalf("presence key survived its ttl")
	}

	if err := presence.Touch(ctx, "conn-b"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := presence.Forget(ctx, "conn-b"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if mr.Exists("quiz:presence:conn-b") {
		t.Fatalf("presence key survived forget")
	}
}
