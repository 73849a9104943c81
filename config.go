package peerbonus

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/peerbonus/peerbonus-go/storage"
)

// Config is the complete Manager configuration. The mapstructure tags are
// the keys used by configuration files and PEERBONUS_ environment variables.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Session SessionConfig `mapstructure:"session"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the Peer Bonus backend.
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AuthPath    string        `mapstructure:"auth_path"`
	GraphQLPath string        `mapstructure:"graphql_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// GraphQLURL returns the absolute GraphQL endpoint.
func (c APIConfig) GraphQLURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.GraphQLPath, "/")
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects the persistent session store.
type StorageBackend string

const (
	// StorageMemory keeps the session for the life of the process only.
	StorageMemory StorageBackend = "memory"
	// StorageFile keeps the session in a YAML file.
	StorageFile StorageBackend = "file"
	// StorageRedis keeps the session in Redis.
	StorageRedis StorageBackend = "redis"
)

// StorageConfig configures the persistent session store.
type StorageConfig struct {
	Backend     StorageBackend `mapstructure:"backend"`
	Path        string         `mapstructure:"path"`
	RedisAddr   string         `mapstructure:"redis_addr"`
	RedisPrefix string         `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration  `mapstructure:"redis_ttl"`
	TokenKey    string         `mapstructure:"token_key"`
	ProfileKey  string         `mapstructure:"profile_key"`
}

func (c StorageConfig) keys() storage.Keys {
	return storage.Keys{Token: c.TokenKey, Profile: c.ProfileKey}
}

/*
====================================
SESSION CONFIG
====================================
*/

// ConcurrencyPolicy decides what an overlapping Login or Register does.
type ConcurrencyPolicy string

const (
	// ConcurrencyReject fails the overlapping call with ErrOperationInFlight.
	ConcurrencyReject ConcurrencyPolicy = "reject"
	// ConcurrencySerialize waits for the running call to finish.
	ConcurrencySerialize ConcurrencyPolicy = "serialize"
)

// SessionConfig tunes the session state machine.
type SessionConfig struct {
	Concurrency ConcurrencyPolicy `mapstructure:"concurrency"`
	// ExpirySkew treats stored JWTs expiring within this window as expired.
	ExpirySkew time.Duration `mapstructure:"expiry_skew"`
	// ValidateRegistration applies the local registration policy before
	// calling the Auth API.
	ValidateRegistration bool `mapstructure:"validate_registration"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:     "http://localhost:8000",
			AuthPath:    "/api/auth",
			GraphQLPath: "/graphql",
			Timeout:     10 * time.Second,
			RetryCount:  2,
			UserAgent:   "peerbonus-go",
		},
		Storage: StorageConfig{
			Backend:     StorageMemory,
			RedisPrefix: "peerbonus",
			TokenKey:    storage.DefaultKeys.Token,
			ProfileKey:  storage.DefaultKeys.Profile,
		},
		Session: SessionConfig{
			Concurrency:          ConcurrencyReject,
			ExpirySkew:           30 * time.Second,
			ValidateRegistration: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem, if any.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("API BaseURL %q must be an absolute URL", c.API.BaseURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("API BaseURL scheme must be http or https")
		}
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}
	if c.API.RetryCount < 0 || c.API.RetryCount > 10 {
		return errors.New("API RetryCount must be between 0 and 10")
	}

	// Storage
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("Storage Path is required for the file backend")
		}
	case StorageRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return errors.New("Storage RedisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Storage.RedisTTL < 0 {
		return errors.New("Storage RedisTTL must be >= 0")
	}
	if c.Storage.TokenKey == "" || c.Storage.ProfileKey == "" {
		return errors.New("Storage TokenKey and ProfileKey are required")
	}
	if c.Storage.TokenKey == c.Storage.ProfileKey {
		return errors.New("Storage TokenKey and ProfileKey must differ")
	}

	// Session
	if c.Session.Concurrency != ConcurrencyReject && c.Session.Concurrency != ConcurrencySerialize {
		return fmt.Errorf("unsupported session concurrency policy %q", c.Session.Concurrency)
	}
	if c.Session.ExpirySkew < 0 || c.Session.ExpirySkew > time.Hour {
		return errors.New("Session ExpirySkew must be between 0 and 1h")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
