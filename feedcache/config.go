package feedcache

import (
	"time"

	"github.com/goliatone/go-feed-cache/cache"
)

// Config holds the fetch pipeline knobs and the cache tiers it drives.
type Config struct {
	// BatchLimit is the most ids the store accepts in one membership query.
	BatchLimit int `mapstructure:"batch_limit"`
	// OverFetch multiplies the page size into the per-query limit.
	OverFetch int `mapstructure:"over_fetch"`
	PageSize  int `mapstructure:"page_size"`

	// BroadScanThreshold is the largest following set still fetched with
	// membership batches. Larger sets use one scan filtered in process.
	BroadScanThreshold int `mapstructure:"broad_scan_threshold"`
	// BroadScanFactor multiplies the per-query limit for a broad scan.
	BroadScanFactor int `mapstructure:"broad_scan_factor"`

	FetchWorkers int           `mapstructure:"fetch_workers"`
	LikeWorkers  int           `mapstructure:"like_workers"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`

	Cache cache.Config `mapstructure:"cache"`
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		BatchLimit:         10,
		OverFetch:          5,
		PageSize:           20,
		BroadScanThreshold: 100,
		BroadScanFactor:    4,
		FetchWorkers:       4,
		LikeWorkers:        8,
		StoreTimeout:       10 * time.Second,
		RefreshInterval:    2 * time.Minute,
		RefreshThreshold:   10 * time.Minute,
		Cache:              cache.DefaultConfig(),
	}
}

// Validate checks every knob, including the nested cache config.
func (c Config) Validate() error {
	positive := []struct {
		field string
		value int
	}{
		{"BatchLimit", c.BatchLimit},
		{"OverFetch", c.OverFetch},
		{"PageSize", c.PageSize},
		{"BroadScanFactor", c.BroadScanFactor},
		{"FetchWorkers", c.FetchWorkers},
		{"LikeWorkers", c.LikeWorkers},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &cache.ConfigError{Field: p.field, Message: "must be greater than 0"}
		}
	}

	if c.BroadScanThreshold < c.BatchLimit {
		return &cache.ConfigError{Field: "BroadScanThreshold", Message: "must not be smaller than BatchLimit"}
	}

	if c.StoreTimeout <= 0 {
		return &cache.ConfigError{Field: "StoreTimeout", Message: "must be greater than 0"}
	}

	if c.RefreshInterval <= 0 {
		return &cache.ConfigError{Field: "RefreshInterval", Message: "must be greater than 0"}
	}

	if c.RefreshThreshold <= 0 {
		return &cache.ConfigError{Field: "RefreshThreshold", Message: "must be greater than 0"}
	}

	return c.Cache.Validate()
}

// queryLimit is K, the per-query limit for a page of pageSize.
func (c Config) queryLimit(pageSize int) int {
	return pageSize * c.OverFetch
}
