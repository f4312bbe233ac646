// Package redisstore holds the optional Redis-backed pieces of the auth flow:
// a one-time refresh token ledger and an OTP resend throttle.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open parses a redis:// URL and checks connectivity.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RefreshLedger remembers redeemed refresh token ids until the token itself
// would have expired.
type RefreshLedger struct {
	redis  *redis.Client
	prefix string
}

func NewRefreshLedger(client *redis.Client) *RefreshLedger {
	return &RefreshLedger{redis: client, prefix: "tv:rt:"}
}

// MarkUsed reports true on the first redemption of jti and false afterwards.
func (l *RefreshLedger) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := l.redis.SetNX(ctx, l.prefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("refresh ledger: %w", err)
	}
	return ok, nil
}

// ResendThrottle allows one OTP resend per address per window.
type ResendThrottle struct {
	redis  *redis.Client
	window time.Duration
	prefix string
}

func NewResendThrottle(client *redis.Client, window time.Duration) *ResendThrottle {
	return &ResendThrottle{redis: client, window: window, prefix: "tv:otp:res:"}
}

// Allow claims the window for email. When the window is already held it
// returns false with the time left.
func (t *ResendThrottle) Allow(ctx context.Context, email string) (bool, time.Duration, error) {
	key := t.prefix + strings.ToLower(strings.TrimSpace(email))
	ok, err := t.redis.SetNX(ctx, key, 1, t.window).Result()
	if err != nil {
		return false, 0, fmt.Errorf("resend throttle: %w", err)
	}
	if ok {
		return true, 0, nil
	}
	ttl, err := t.redis.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("resend throttle ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return false, ttl, nil
}
