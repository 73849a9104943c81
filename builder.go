package peerbonus

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/peerbonus/peerbonus-go/authapi"
	internalaudit "github.com/peerbonus/peerbonus-go/internal/audit"
	"github.com/peerbonus/peerbonus-go/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Builder assembles a Manager. A Builder can be built once.
type Builder struct {
	config Config
	api    AuthAPI
	store  storage.Store
	redis  redis.UniversalClient
	logger logrus.FieldLogger
	sink   AuditSink
	now    func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAuthAPI sets the Auth API. Without it Build creates an HTTP client
// from Config.API.
func (b *Builder) WithAuthAPI(api AuthAPI) *Builder {
	b.api = api
	return b
}

// WithStore sets the session store. The caller keeps ownership and closes it.
func (b *Builder) WithStore(s storage.Store) *Builder {
	b.store = s
	return b
}

// WithRedis stores the session in Redis through an existing client. The
// client is not closed by the Manager.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger; the default is the logrus standard logger.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithClock overrides the clock used for token expiry and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Auth API latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Manager in
// StateUninitialized. Build performs no I/O.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	instance := uuid.NewString()
	logger = logger.WithField("instance", instance)

	api := b.api
	if api == nil {
		if cfg.API.BaseURL == "" {
			return nil, errors.New("auth api required: set Config.API.BaseURL or use WithAuthAPI")
		}
		client, err := authapi.NewClient(authapi.Config{
			BaseURL:    cfg.API.BaseURL,
			BasePath:   cfg.API.AuthPath,
			Timeout:    cfg.API.Timeout,
			RetryCount: cfg.API.RetryCount,
			UserAgent:  cfg.API.UserAgent,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		api = client
	}

	store, owned := b.store, false
	if store == nil {
		store, owned = newStore(cfg.Storage, b.redis), true
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	var sink AuditSink = b.sink
	if sink == nil && cfg.Audit.Enabled {
		sink = internalaudit.NewLogrusSink(logger)
	}

	b.built = true
	return &Manager{
		config:   cfg,
		api:      api,
		store:    store,
		ownStore: owned,
		keys:     cfg.Storage.keys(),
		logger:   logger,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics:  NewMetrics(cfg.Metrics),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		guard:    semaphore.NewWeighted(1),
		now:      now,
		instance: instance,
		state:    StateUninitialized,
		subs:     make(map[uint64]chan Snapshot),
	}, nil
}

func newStore(cfg StorageConfig, client redis.UniversalClient) storage.Store {
	if client != nil {
		return storage.NewRedisStore(client, cfg.RedisPrefix, cfg.RedisTTL)
	}
	switch cfg.Backend {
	case StorageFile:
		return storage.NewFileStore(cfg.Path)
	case StorageRedis:
		return storage.DialRedisStore(cfg.RedisAddr, cfg.RedisPrefix, cfg.RedisTTL)
	default:
		return storage.NewMemoryStore()
	}
}
