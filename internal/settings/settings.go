package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Atrox/homedir"
	peerbonus "github.com/peerbonus/peerbonus-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment variable, e.g. PEERBONUS_API_BASE_URL.
const EnvPrefix = "PEERBONUS"

const (
	defaultDir         = "~/.config/peerbonus"
	defaultSessionFile = "session.yaml"
	defaultUsersFile   = "offline-users.yaml"
)

// Settings is the full CLI configuration.
type Settings struct {
	peerbonus.Config `mapstructure:",squash"`

	Logging LoggingConfig `mapstructure:"logging"`
	Offline OfflineConfig `mapstructure:"offline"`
	Kudos   KudosConfig   `mapstructure:"kudos"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OfflineConfig configures the in-process Auth API used by --offline.
type OfflineConfig struct {
	UsersPath string `mapstructure:"users_path"`
	// SigningMethod is hs256 or ed25519. Secret is the HMAC secret or the
	// Ed25519 private key in PEM; empty generates one into the users file.
	SigningMethod string        `mapstructure:"signing_method"`
	Secret        string        `mapstructure:"secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

// KudosConfig tunes the kudos commands.
type KudosConfig struct {
	FeedLimit     int           `mapstructure:"feed_limit"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

// Default returns the settings used when no file or environment overrides
// anything.
func Default() (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	return unmarshal(v)
}

// Load reads configFile (or config.yaml from the usual search paths when
// empty), then .env, then the environment. A missing default config file is
// not an error; a missing explicit one is.
func Load(configFile string) (*Settings, error) {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := homedir.Expand(defaultDir); err == nil {
		v.AddConfigPath(dir)
	}
	if configFile != "" {
		path, err := homedir.Expand(configFile)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(path)
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.expandPaths(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	d := peerbonus.DefaultConfig()

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.auth_path", d.API.AuthPath)
	v.SetDefault("api.graphql_path", d.API.GraphQLPath)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.retry_count", d.API.RetryCount)
	v.SetDefault("api.user_agent", d.API.UserAgent)

	// The CLI keeps its session across invocations.
	v.SetDefault("storage.backend", string(peerbonus.StorageFile))
	v.SetDefault("storage.path", filepath.Join(defaultDir, defaultSessionFile))
	v.SetDefault("storage.redis_addr", "")
	v.SetDefault("storage.redis_prefix", d.Storage.RedisPrefix)
	v.SetDefault("storage.redis_ttl", d.Storage.RedisTTL)
	v.SetDefault("storage.token_key", d.Storage.TokenKey)
	v.SetDefault("storage.profile_key", d.Storage.ProfileKey)

	v.SetDefault("session.concurrency", string(d.Session.Concurrency))
	v.SetDefault("session.expiry_skew", d.Session.ExpirySkew)
	v.SetDefault("session.validate_registration", d.Session.ValidateRegistration)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", true)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	v.SetDefault("offline.users_path", filepath.Join(defaultDir, defaultUsersFile))
	v.SetDefault("offline.signing_method", "hs256")
	v.SetDefault("offline.secret", "")
	v.SetDefault("offline.token_ttl", 7*24*time.Hour)

	v.SetDefault("kudos.feed_limit", 20)
	v.SetDefault("kudos.watch_interval", 5*time.Second)
}

func (s *Settings) expandPaths() error {
	for _, p := range []*string{&s.Storage.Path, &s.Offline.UsersPath} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// SetupLogging applies level and format to logger.
func SetupLogging(logger *logrus.Logger, cfg LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format %q", cfg.Format)
	}
	return nil
}
