package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/butterflysys/butterfly/internal/audit"
	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/resource"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr"`

	// Password authenticates the connection, when set.
	Password string `yaml:"password"`

	// DB selects the Redis database.
	DB int `yaml:"db"`

	// KeyPrefix namespaces all keys. Defaults to "butterfly:".
	KeyPrefix string `yaml:"keyPrefix"`

	// MaxEventLog caps the audit list length. Defaults to 10000.
	MaxEventLog int64 `yaml:"maxEventLog"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// redisStore is a Redis-backed Store. Definitions are JSON values
// under per-name keys; audit events append to a capped list.
type redisStore struct {
	logger    observability.Logger
	client    *redis.Client
	keyPrefix string
	maxEvents int64
}

// RedisOption is a functional option for the Redis store.
type RedisOption func(*redisStore)

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *redisStore) {
		s.logger = logger
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(cfg RedisConfig, opts ...RedisOption) Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "butterfly:"
	}
	if cfg.MaxEventLog <= 0 {
		cfg.MaxEventLog = 10000
	}

	s := &redisStore{
		logger: observability.NopLogger(),
		client: redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		}),
		keyPrefix: cfg.KeyPrefix,
		maxEvents: cfg.MaxEventLog,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *redisStore) definitionKey(name string) string {
	return s.keyPrefix + "def:" + name
}

func (s *redisStore) auditKey() string {
	return s.keyPrefix + "audit"
}

// Init verifies the backend is reachable.
func (s *redisStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RegisterConnection stores or replaces a definition.
func (s *redisStore) RegisterConnection(ctx context.Context, def *resource.Definition) error {
	stored := *def
	stored.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal definition %q: %w", stored.Name, err)
	}

	if err := s.client.Set(ctx, s.definitionKey(stored.Name), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.logger.Debug("definition registered", observability.String("name", stored.Name))
	return nil
}

// GetConnection returns the definition for a logical name.
func (s *redisStore) GetConnection(ctx context.Context, name string) (*resource.Definition, error) {
	data, err := s.client.Get(ctx, s.definitionKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var def resource.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition %q: %w", name, err)
	}
	return &def, nil
}

// LogEvent appends an audit event to the capped list.
func (s *redisStore) LogEvent(ctx context.Context, event *audit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.auditKey(), data)
	pipe.LTrim(ctx, s.auditKey(), 0, s.maxEvents-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the client.
func (s *redisStore) Close() error {
	return s.client.Close()
}

// Ensure redisStore implements Store.
var _ Store = (*redisStore)(nil)
