package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/butterflysys/butterfly/internal/audit"
	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/resource"
)

// breakerStore wraps a Store with a circuit breaker. When the breaker
// opens, every operation fails fast with ErrUnavailable instead of
// piling timeouts onto a struggling backend. Not-found results are not
// failures and never trip the breaker.
type breakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures opens the breaker after this many consecutive
	// failures. Defaults to 5.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	// Defaults to 30s.
	OpenTimeout time.Duration
}

// BreakerOption is a functional option for the breaker store.
type BreakerOption func(*breakerStore)

// WithBreakerLogger sets the logger.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(s *breakerStore) {
		s.logger = logger
	}
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner Store, cfg BreakerConfig, opts ...BreakerOption) Store {
	if cfg.Name == "" {
		cfg.Name = "storage"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	s := &breakerStore{
		inner:  inner,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	logger := s.logger
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("storage breaker state change",
				observability.String("breaker", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return s
}

// execute runs op through the breaker, translating breaker rejection
// into ErrUnavailable.
func (s *breakerStore) execute(op func() error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// Init prepares the backend.
func (s *breakerStore) Init(ctx context.Context) error {
	return s.execute(func() error { return s.inner.Init(ctx) })
}

// RegisterConnection stores or replaces a definition.
func (s *breakerStore) RegisterConnection(ctx context.Context, def *resource.Definition) error {
	return s.execute(func() error { return s.inner.RegisterConnection(ctx, def) })
}

// GetConnection returns the definition for a logical name. ErrNotFound
// is a successful lookup as far as the breaker is concerned.
func (s *breakerStore) GetConnection(ctx context.Context, name string) (*resource.Definition, error) {
	var def *resource.Definition
	err := s.execute(func() error {
		d, err := s.inner.GetConnection(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		def = d
		return err
	})
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, ErrNotFound
	}
	return def, nil
}

// LogEvent appends an audit event.
func (s *breakerStore) LogEvent(ctx context.Context, event *audit.Event) error {
	return s.execute(func() error { return s.inner.LogEvent(ctx, event) })
}

// Close releases the inner store.
func (s *breakerStore) Close() error {
	return s.inner.Close()
}

// Ensure breakerStore implements Store.
var _ Store = (*breakerStore)(nil)
