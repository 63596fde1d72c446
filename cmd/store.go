package cmd

import (
	"fmt"

	"github.com/renderforge/render-gateway/internal/config"
	"github.com/renderforge/render-gateway/internal/db"
	"github.com/renderforge/render-gateway/internal/kv"
)

// openStore selects the persistence backend from config. The returned
// closer is a no-op for the file backend.
func openStore(cfg config.Config) (kv.Store, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		return kv.NewRedisStore(rdb, cfg.Store.Prefix), func() { _ = rdb.Close() }, nil

	case "", "file":
		fs, err := kv.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
