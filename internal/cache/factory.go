package cache

import (
	"fmt"

	"tutorhub/internal/config"
)

// New builds the cache selected by cfg.Driver: memory, redis or none.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryCache(cfg.Size, cfg.TTL), nil
	case "redis":
		return NewRedisCache(cfg.Redis, "tutorhub")
	case "none":
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
