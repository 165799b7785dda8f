package cache

import (
	"time"

	"github.com/goliatone/go-feed-cache/internal/cacheinfra"
)

// ConfigError is returned by Validate for an invalid field.
type ConfigError = cacheinfra.ConfigError

// Config exposes the two tier cache options.
type Config struct {
	// FollowingTTL bounds how long a resolved following set is reused.
	FollowingTTL time.Duration `mapstructure:"following_ttl"`
	// PostsTTL bounds how long a fetched feed is served without refetch.
	PostsTTL time.Duration `mapstructure:"posts_ttl"`
	// ColdTTL bounds how old a persisted snapshot may be when restored.
	ColdTTL time.Duration `mapstructure:"cold_ttl"`

	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval"`

	// SnapshotMaxPosts caps how many posts are written per snapshot.
	// Zero writes the whole entry.
	SnapshotMaxPosts int `mapstructure:"snapshot_max_posts"`
	// WriteQueueSize is the buffer of the snapshot writer.
	WriteQueueSize int `mapstructure:"write_queue_size"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	infra := cacheinfra.DefaultConfig()
	return Config{
		FollowingTTL:       infra.TTL,
		PostsTTL:           5 * time.Minute,
		ColdTTL:            2 * time.Hour,
		Capacity:           infra.Capacity,
		NumShards:          infra.NumShards,
		EvictionPercentage: infra.EvictionPercentage,
		EvictionInterval:   infra.EvictionInterval,
		SnapshotMaxPosts:   100,
		WriteQueueSize:     256,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.toInternal().Validate(); err != nil {
		if cfgErr, ok := err.(*cacheinfra.ConfigError); ok && cfgErr.Field == "TTL" {
			return &ConfigError{Field: "FollowingTTL", Message: cfgErr.Message}
		}
		return err
	}

	if c.PostsTTL <= 0 {
		return &ConfigError{Field: "PostsTTL", Message: "must be greater than 0"}
	}

	if c.ColdTTL < c.PostsTTL {
		return &ConfigError{Field: "ColdTTL", Message: "must not be shorter than PostsTTL"}
	}

	if c.SnapshotMaxPosts < 0 {
		return &ConfigError{Field: "SnapshotMaxPosts", Message: "must be non-negative"}
	}

	if c.WriteQueueSize <= 0 {
		return &ConfigError{Field: "WriteQueueSize", Message: "must be greater than 0"}
	}

	return nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.FollowingTTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}
