package di

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/goliatone/go-feed-cache/bunstore"
	"github.com/goliatone/go-feed-cache/cache"
	"github.com/goliatone/go-feed-cache/feedcache"
)

// EnvPrefix prefixes every environment override, e.g. FEED_REDIS_ADDRESS.
const EnvPrefix = "FEED"

// Config is the process level configuration of a feed cache node.
type Config struct {
	Feed      feedcache.Config `mapstructure:"feed"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Snapshots SnapshotConfig   `mapstructure:"snapshots"`
	NATS      NATSConfig       `mapstructure:"nats"`
	Log       LogConfig        `mapstructure:"log"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// MaxMembership is the membership limit enforced by the store.
	MaxMembership int `mapstructure:"max_membership"`
}

// RedisConfig selects the Redis snapshot store. An empty Address keeps
// snapshots in process memory.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SnapshotConfig sizes the in-memory snapshot store.
type SnapshotConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// NATSConfig enables event driven invalidation when URL is set.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns an in-process setup: sqlite in memory, memory
// snapshots, no event bus.
func DefaultConfig() Config {
	return Config{
		Feed: feedcache.DefaultConfig(),
		Database: DatabaseConfig{
			Driver:        bunstore.DriverSQLite,
			DSN:           "file:feed?mode=memory&cache=shared",
			MaxMembership: bunstore.DefaultMaxMembership,
		},
		Redis: RedisConfig{
			Prefix: "feedcache:",
		},
		Snapshots: SnapshotConfig{
			Capacity: 10000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the feed config and the wiring fields.
func (c Config) Validate() error {
	if err := c.Feed.Validate(); err != nil {
		return err
	}
	if c.Database.Driver == "" {
		return &cache.ConfigError{Field: "Database.Driver", Message: "must be set"}
	}
	if c.Database.MaxMembership < c.Feed.BatchLimit {
		return &cache.ConfigError{Field: "Database.MaxMembership", Message: "must not be smaller than Feed.BatchLimit"}
	}
	if c.Redis.Address == "" && c.Snapshots.Capacity <= 0 {
		return &cache.ConfigError{Field: "Snapshots.Capacity", Message: "must be greater than 0"}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return &cache.ConfigError{Field: "Log.Level", Message: err.Error()}
	}
	return nil
}

// LoadConfig reads path, when given, then applies FEED_ prefixed
// environment overrides on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	f := d.Feed
	defaults := map[string]any{
		"feed.batch_limit":               f.BatchLimit,
		"feed.over_fetch":                f.OverFetch,
		"feed.page_size":                 f.PageSize,
		"feed.broad_scan_threshold":      f.BroadScanThreshold,
		"feed.broad_scan_factor":         f.BroadScanFactor,
		"feed.fetch_workers":             f.FetchWorkers,
		"feed.like_workers":              f.LikeWorkers,
		"feed.store_timeout":             f.StoreTimeout,
		"feed.refresh_interval":          f.RefreshInterval,
		"feed.refresh_threshold":         f.RefreshThreshold,
		"feed.cache.following_ttl":       f.Cache.FollowingTTL,
		"feed.cache.posts_ttl":           f.Cache.PostsTTL,
		"feed.cache.cold_ttl":            f.Cache.ColdTTL,
		"feed.cache.capacity":            f.Cache.Capacity,
		"feed.cache.num_shards":          f.Cache.NumShards,
		"feed.cache.eviction_percentage": f.Cache.EvictionPercentage,
		"feed.cache.eviction_interval":   f.Cache.EvictionInterval,
		"feed.cache.snapshot_max_posts":  f.Cache.SnapshotMaxPosts,
		"feed.cache.write_queue_size":    f.Cache.WriteQueueSize,
		"database.driver":                d.Database.Driver,
		"database.dsn":                   d.Database.DSN,
		"database.max_membership":        d.Database.MaxMembership,
		"redis.address":                  d.Redis.Address,
		"redis.password":                 d.Redis.Password,
		"redis.db":                       d.Redis.DB,
		"redis.prefix":                   d.Redis.Prefix,
		"snapshots.capacity":             d.Snapshots.Capacity,
		"nats.url":                       d.NATS.URL,
		"log.level":                      d.Log.Level,
	}
	for key, value := range defaults {
		if dur, ok := value.(time.Duration); ok {
			value = dur.String()
		}
		v.SetDefault(key, value)
	}
}
