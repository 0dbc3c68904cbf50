package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const signedURLPrefix = "signed_url:"

// CachedSigner remembers signed URLs in Redis for half of their validity so
// that a feed page does not presign the same avatar on every request. A
// Redis failure falls through to the wrapped signer.
type CachedSigner struct {
	next   Signer
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSigner wraps next. urlTTL is the validity of the URLs next
// produces.
func NewCachedSigner(next Signer, rdb *redis.Client, urlTTL time.Duration, logger *zap.Logger) *CachedSigner {
	return &CachedSigner{next: next, rdb: rdb, ttl: urlTTL / 2, logger: logger}
}

func (s *CachedSigner) Sign(ctx context.Context, key string) (string, error) {
	cacheKey := signedURLPrefix + key

	cached, err := s.rdb.Get(ctx, cacheKey).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("signed url cache read failed", zap.String("key", key), zap.Error(err))
	}

	signed, err := s.next.Sign(ctx, key)
	if err != nil {
		return "", err
	}

	if s.ttl > 0 {
		if err := s.rdb.Set(ctx, cacheKey, signed, s.ttl).Err(); err != nil {
			s.logger.Warn("signed url cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return signed, nil
}

// Forget drops the cached URL for key. The media processor calls it for
// every blob it deletes, so a removed avatar is not served from the cache
// until the entry would have expired anyway.
func (s *CachedSigner) Forget(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, signedURLPrefix+key).Err(); err != nil {
		s.logger.Warn("signed url cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
