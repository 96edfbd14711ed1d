package services

import (
	"context"
	"time"

	"github.com/northbeam/portal-api/utils/cache"
)

const (
	terminalKeyPrefix = "intake:terminal:"

	// DefaultTerminalTTL keeps claims long enough to cover any realistic widget session
	DefaultTerminalTTL = 24 * time.Hour
)

// TerminalLedger records which sessions already had their summary forwarded,
// so duplicate terminal requests from a misbehaving client are dropped.
type TerminalLedger interface {
	// Claim returns false when the session was already claimed
	Claim(ctx context.Context, sessionID string) (bool, error)
	// Release undoes a claim whose delivery failed
	Release(ctx context.Context, sessionID string) error
}

// RedisTerminalLedger stores claims with SETNX
type RedisTerminalLedger struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisTerminalLedger creates a ledger backed by Redis
func NewRedisTerminalLedger(c *cache.RedisCache, ttl time.Duration) *RedisTerminalLedger {
	if ttl <= 0 {
		ttl = DefaultTerminalTTL
	}
	return &RedisTerminalLedger{cache: c, ttl: ttl}
}

func (l *RedisTerminalLedger) Claim(ctx context.Context, sessionID string) (bool, error) {
	return l.cache.SetNX(ctx, terminalKeyPrefix+sessionID, time.Now().UTC().Format(time.RFC3339), l.ttl)
}

func (l *RedisTerminalLedger) Release(ctx context.Context, sessionID string) error {
	return l.cache.Delete(ctx, terminalKeyPrefix+sessionID)
}
