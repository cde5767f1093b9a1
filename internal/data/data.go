// Package data provides data access layer implementations.
// It handles the optional storage collaborators: MySQL for archival,
// Redis plus an in-process LRU for caching.
package data

import (
	"ShiftGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewArchiveRepo,
	NewAuditLogger,
	NewWebhookNotifier,
)

// Data contains all data layer dependencies.
type Data struct {
	// redisClient is the Redis client for the shared cache tier
	redisClient *redis.Client
	// cache is the two-tier cache used by repositories
	cache CacheClient
	// db is the optional archival database
	db *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Both storage collaborators are optional: the resilience core is fully
// in-memory, so a missing database or Redis only disables archival and
// shared caching (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB, cache CacheClient) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, shared cache tier will be unavailable")
	}
	if db == nil {
		helper.Warn("database is nil, snapshot and alert archival will be unavailable")
	}

	d := &Data{
		redisClient: rdb,
		cache:       cache,
		db:          db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL cleanups are owned by their own providers
		// and invoked by Wire.
	}

	return d, cleanup, nil
}

// GetCache returns the cache client for repository use.
func (d *Data) GetCache() CacheClient {
	return d.cache
}

// GetRedisClient returns the Redis client for advanced operations.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}

// GetDB returns the archival database, or nil when archival is disabled.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}
