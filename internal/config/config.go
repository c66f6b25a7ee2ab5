package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the API needs at startup. It is loaded once and passed to
// constructors; nothing reads the environment after Load returns.
type Config struct {
	Server    ServerConfig
	Tokens    TokenConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	LogLevel  string
	Version   string
	Commit    string
}

// ServerConfig holds listener addresses and request budgets.
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string
	// TrustedProxies lists proxy addresses or CIDR ranges whose X-Forwarded-For is honoured.
	TrustedProxies  []string
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a single-host prefix.
func (s ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// TokenConfig holds signing material for access and refresh tokens.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// StorageConfig selects backing stores. An empty PostgresDSN runs on in-memory stores.
type StorageConfig struct {
	PostgresDSN string
	RedisURL    string
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Burst     int
	PerSecond int
	Window    time.Duration
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("TVSHELF_HTTP_ADDR", ":8080"),
			GRPCAddr:        getEnv("TVSHELF_GRPC_ADDR", ":9090"),
			ReadTimeout:     getEnvDuration("TVSHELF_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("TVSHELF_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("TVSHELF_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("TVSHELF_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvDuration("TVSHELF_REQUEST_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(getEnvInt("TVSHELF_MAX_BODY_BYTES", 1<<20)),
			CORSOrigins:     getEnvList("TVSHELF_CORS_ORIGINS", []string{"http://localhost:8081"}),
			TrustedProxies:  getEnvList("TVSHELF_TRUSTED_PROXIES", nil),
		},
		Tokens: TokenConfig{
			AccessSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
			RefreshSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
			AccessTTL:     getEnvDuration("TVSHELF_ACCESS_TTL", 30*time.Minute),
			RefreshTTL:    getEnvDuration("TVSHELF_REFRESH_TTL", 365*24*time.Hour),
			Issuer:        getEnv("TVSHELF_TOKEN_ISSUER", "tvshelf"),
		},
		Storage: StorageConfig{
			PostgresDSN: strings.TrimSpace(os.Getenv("TVSHELF_PG_DSN")),
			RedisURL:    strings.TrimSpace(os.Getenv("TVSHELF_REDIS_URL")),
		},
		RateLimit: RateLimitConfig{
			Burst:     getEnvInt("TVSHELF_RATE_BURST", 20),
			PerSecond: getEnvInt("TVSHELF_RATE_PER_SEC", 10),
			Window:    getEnvDuration("TVSHELF_RATE_WINDOW", time.Minute),
		},
		LogLevel: getEnv("TVSHELF_LOG_LEVEL", "info"),
		Version:  getEnv("TVSHELF_VERSION", "dev"),
		Commit:   getEnv("TVSHELF_COMMIT", "none"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants the rest of the service relies on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Tokens.AccessSecret) == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if strings.TrimSpace(c.Tokens.RefreshSecret) == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.Tokens.AccessSecret != "" && c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Tokens.RefreshTTL < c.Tokens.AccessTTL {
		errs = append(errs, errors.New("refresh token lifetime must not be shorter than access token lifetime"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("rate limit burst and rate must be positive"))
	}
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
