package sessions

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fastmcp/sessions/pkg/adapters/memory"
	"github.com/fastmcp/sessions/pkg/adapters/redis"
	"github.com/fastmcp/sessions/pkg/domain"
	"github.com/fastmcp/sessions/pkg/ports"
	"github.com/fastmcp/sessions/pkg/session"
)

// Backend tags recognized by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// Config is the construction-time surface of the session layer.
// Zero values fall back to the documented defaults.
type Config struct {
	// Backend selects the store implementation: "memory" or "redis".
	Backend string `yaml:"backend" json:"backend"`

	// KeyPrefix namespaces record and index keys in shared backends.
	KeyPrefix string `yaml:"key_prefix" json:"keyPrefix"`

	// TTLMillis is the idle expiry in milliseconds.
	TTLMillis int64 `yaml:"ttl_ms" json:"ttlMs"`

	// DebounceMillis is the write-behind coalescing window in milliseconds.
	DebounceMillis int64 `yaml:"debounce_ms" json:"debounceMs"`

	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// DefaultConfig returns the documented defaults: in-process backend,
// "fastmcp:session:" prefix, one hour TTL.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendMemory,
		KeyPrefix:      domain.DefaultKeyPrefix,
		TTLMillis:      domain.DefaultTTL.Milliseconds(),
		DebounceMillis: session.DefaultDebounce.Milliseconds(),
	}
}

// ParseConfig reads a YAML document over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse session config: %w", err)
	}
	return cfg, nil
}

// TTL returns the configured idle expiry as a duration. Zero falls back to
// the default; a negative value disables expiry.
func (c Config) TTL() time.Duration {
	if c.TTLMillis == 0 {
		return domain.DefaultTTL
	}
	if c.TTLMillis < 0 {
		return 0
	}
	return time.Duration(c.TTLMillis) * time.Millisecond
}

// Debounce returns the configured coalescing window as a duration.
func (c Config) Debounce() time.Duration {
	if c.DebounceMillis <= 0 {
		return session.DefaultDebounce
	}
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// Open resolves the backend tag once, at construction, into a concrete store.
// No runtime type inspection happens after this point; callers holding an
// already-constructed store simply skip Open and pass it along.
func Open(cfg Config) (ports.SessionStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		return memory.NewStore(memory.WithTTL(cfg.TTL())), nil
	case BackendRedis:
		prefix := cfg.KeyPrefix
		if prefix == "" {
			prefix = domain.DefaultKeyPrefix
		}
		return redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(prefix),
			redis.WithTTL(cfg.TTL()),
		), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}
