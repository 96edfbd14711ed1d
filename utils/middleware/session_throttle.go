package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/utils/response"
)

// Counter is the subset of the Redis cache used for throttling
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// ThrottleConfig bounds how many intake actions one session may issue per window
type ThrottleConfig struct {
	Limit  int64
	Window time.Duration
}

// SessionThrottle caps orchestrator actions per widget session
type SessionThrottle struct {
	counter Counter
	config  ThrottleConfig
}

// NewSessionThrottle creates a throttle backed by counter
func NewSessionThrottle(counter Counter, config ThrottleConfig) *SessionThrottle {
	if config.Limit <= 0 {
		config.Limit = 200
	}
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	return &SessionThrottle{counter: counter, config: config}
}

// Limit rejects requests once the caller's session exceeds the window's budget.
// Sessions are identified by widget token claims, falling back to the client IP.
func (t *SessionThrottle) Limit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		key := "intake:actions:ip:" + c.IP()
		if claims := GetWidgetClaims(c); claims != nil {
			key = "intake:actions:session:" + claims.SessionID
		}

		count, err := t.counter.Increment(ctx, key)
		if err != nil {
			// If Redis is down, allow the request
			return c.Next()
		}
		if count == 1 {
			_ = t.counter.Expire(ctx, key, t.config.Window)
		}

		if count > t.config.Limit {
			retryAfter := int(t.config.Window.Seconds())
			if ttl, err := t.counter.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds())
			}
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", retryAfter))
			return response.TooManyRequests(c, fmt.Sprintf("Too many chat requests. Try again in %d seconds", retryAfter))
		}

		return c.Next()
	}
}
