package cacheinfra

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.TTL != 30*time.Minute {
		t.Errorf("expected TTL to be 30 minutes, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
		field     string
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid capacity - zero",
			mutate:    func(c *Config) { c.Capacity = 0 },
			wantError: true,
			field:     "Capacity",
		},
		{
			name:      "invalid shards - negative",
			mutate:    func(c *Config) { c.NumShards = -1 },
			wantError: true,
			field:     "NumShards",
		},
		{
			name:      "invalid ttl - zero",
			mutate:    func(c *Config) { c.TTL = 0 },
			wantError: true,
			field:     "TTL",
		},
		{
			name:      "invalid eviction percentage - over 100",
			mutate:    func(c *Config) { c.EvictionPercentage = 101 },
			wantError: true,
			field:     "EvictionPercentage",
		},
		{
			name:      "invalid eviction interval - negative",
			mutate:    func(c *Config) { c.EvictionInterval = -time.Second },
			wantError: true,
			field:     "EvictionInterval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantError {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigError but got: %v", err)
				}
				if cfgErr.Field != tt.field {
					t.Errorf("expected field %q but got: %q", tt.field, cfgErr.Field)
				}
				return
			}
			if err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
		})
	}
}

func TestConfig_ToSturdycOptions(t *testing.T) {
	cfg := DefaultConfig()
	if got := len(cfg.ToSturdycOptions()); got != 0 {
		t.Errorf("expected no options without eviction interval, got %d", got)
	}

	cfg.EvictionInterval = time.Minute
	if got := len(cfg.ToSturdycOptions()); got != 1 {
		t.Errorf("expected one option with eviction interval, got %d", got)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	want := "config error in field TTL: must be greater than 0"
	if err.Error() != want {
		t.Errorf("expected %q but got: %q", want, err.Error())
	}
}

func TestNewSturdycStore_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 0

	store, err := NewSturdycStore[string](cfg)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if store != nil {
		t.Error("expected nil store on error")
	}
}

type cachedSet struct {
	IDs []string
	At  time.Time
}

func TestSturdycStore_SetGetDelete(t *testing.T) {
	store, err := NewSturdycStore[cachedSet](DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if _, ok := store.Get("following::u1"); ok {
		t.Fatal("expected miss on empty store")
	}

	now := time.Now()
	store.Set("following::u1", cachedSet{IDs: []string{"a", "b"}, At: now})

	got, ok := store.Get("following::u1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(got.IDs) != 2 || !got.At.Equal(now) {
		t.Errorf("unexpected value: %+v", got)
	}

	store.Delete("following::u1")
	if _, ok := store.Get("following::u1"); ok {
		t.Error("expected miss after Delete")
	}
}
