package utils

import (
	"context"
	"time"

	"gigtasks/config"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewRedisClient connects to Redis when an address is configured. It returns
// nil when Redis is not configured or unreachable; callers fall back to the
// database.
func NewRedisClient(cfg config.Redis) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Pass, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		// don't fail startup for redis issues
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis ping failed, continuing without redis")
		_ = rc.Close()
		return nil
	}
	return rc
}
