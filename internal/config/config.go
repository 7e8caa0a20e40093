// Package config provides configuration types and loading for avguard.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store backend types.
const (
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Config is the top-level avguard configuration.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server" json:"server"`

	// Log contains logging configuration.
	Log LogConfig `yaml:"log" json:"log"`

	// Cache contains group-membership cache configuration.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Groups maps group names to their members. Used by the built-in
	// static group resolver.
	Groups map[string][]string `yaml:"groups,omitempty" json:"groups,omitempty"`

	// Routes are the guarded routes served by the demo server.
	Routes []RouteConfig `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" json:"addr"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// IdentityHeader is the trusted header carrying the requester identity.
	IdentityHeader string `yaml:"identityHeader,omitempty" json:"identityHeader,omitempty"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Format is the log format: json or console.
	Format string `yaml:"format" json:"format"`

	// Output is the log destination: stdout or stderr.
	Output string `yaml:"output" json:"output"`
}

// CacheConfig contains group-membership cache configuration.
type CacheConfig struct {
	// Enabled indicates whether membership caching is enabled.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Type is the store backend type: "memory" or "redis".
	Type string `yaml:"type" json:"type"`

	// TTL is the time-to-live for cached membership entries.
	// Zero means entries never expire.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// Redis contains Redis-specific configuration.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig contains Redis-specific store configuration.
type RedisConfig struct {
	// URL is the Redis connection URL.
	// Format: redis://[user:password@]host:port[/db]
	URL string `yaml:"url" json:"url"`

	// KeyPrefix is a prefix added to all store keys.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`

	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`

	// ReadTimeout is the timeout for read operations.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the timeout for write operations.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
}

// RouteConfig describes one guarded route of the demo server.
type RouteConfig struct {
	// Path is the route path, e.g. "/reports".
	Path string `yaml:"path" json:"path"`

	// Mode is the packed chmod code, e.g. 110. Zero selects the
	// owner/group rule form.
	Mode int `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Owner is the identity granted owner access.
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`

	// Group is the group granted group access.
	Group string `yaml:"group,omitempty" json:"group,omitempty"`

	// Body is the static response body returned on grant.
	Body string `yaml:"body,omitempty" json:"body,omitempty"`
}

// LoadConfig loads configuration from a file path.
func LoadConfig(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path is validated via filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return parseConfig(data)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(data)
}

// parseConfig parses YAML data into a Config.
func parseConfig(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// applyDefaults fills in defaults for unset fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.IdentityHeader == "" {
		c.Server.IdentityHeader = "X-Auth-User"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Cache.Type == "" {
		c.Cache.Type = StoreTypeMemory
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Cache.Type != StoreTypeMemory && c.Cache.Type != StoreTypeRedis {
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}

	if c.Cache.Enabled && c.Cache.Type == StoreTypeRedis {
		if c.Cache.Redis == nil || c.Cache.Redis.URL == "" {
			return errors.New("redis cache requires a redis URL")
		}
	}

	seen := make(map[string]bool, len(c.Routes))
	for _, route := range c.Routes {
		if route.Path == "" {
			return errors.New("route path must not be empty")
		}
		if seen[route.Path] {
			return fmt.Errorf("duplicate route path %q", route.Path)
		}
		seen[route.Path] = true
	}

	return nil
}
