package storage

import (
	"context"
	"sync"
	"time"

	"github.com/butterflysys/butterfly/internal/audit"
	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/resource"
)

// memoryStore is an in-process Store for single-node deployments and
// tests.
type memoryStore struct {
	logger observability.Logger

	mu          sync.RWMutex
	definitions map[string]resource.Definition
	events      []audit.Event
	maxEvents   int
}

// MemoryOption is a functional option for the memory store.
type MemoryOption func(*memoryStore)

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger observability.Logger) MemoryOption {
	return func(s *memoryStore) {
		s.logger = logger
	}
}

// WithMemoryEventCap bounds the retained audit trail. Zero keeps the
// default of 10000 events.
func WithMemoryEventCap(n int) MemoryOption {
	return func(s *memoryStore) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...MemoryOption) Store {
	s := &memoryStore{
		logger:      observability.NopLogger(),
		definitions: make(map[string]resource.Definition),
		maxEvents:   10000,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Init prepares the store. The memory store is always ready.
func (s *memoryStore) Init(_ context.Context) error {
	return nil
}

// RegisterConnection stores or replaces a definition. The definition
// is deep-copied in, so later mutations by the caller do not reach the
// store.
func (s *memoryStore) RegisterConnection(_ context.Context, def *resource.Definition) error {
	stored := def.Clone()
	stored.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.definitions[stored.Name] = *stored
	s.mu.Unlock()

	s.logger.Debug("definition registered", observability.String("name", stored.Name))
	return nil
}

// GetConnection returns a deep copy of the definition for a logical
// name; callers may mutate it freely.
func (s *memoryStore) GetConnection(_ context.Context, name string) (*resource.Definition, error) {
	s.mu.RLock()
	def, ok := s.definitions[name]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return def.Clone(), nil
}

// LogEvent appends an audit event, dropping the oldest beyond the cap.
func (s *memoryStore) LogEvent(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	if len(s.events) > s.maxEvents {
		s.events = s.events[len(s.events)-s.maxEvents:]
	}
	return nil
}

// Events returns a snapshot of the retained audit trail, oldest first.
func (s *memoryStore) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}

// Close releases resources.
func (s *memoryStore) Close() error {
	return nil
}

// Ensure memoryStore implements Store.
var _ Store = (*memoryStore)(nil)
