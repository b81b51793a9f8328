// Package engine wires repositories, sequences and transactions over one MongoDB client.
package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/vbouzoukos/vbmongoengine/pkg/entity"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository/document"
	"github.com/vbouzoukos/vbmongoengine/pkg/sequence"
	mongostore "github.com/vbouzoukos/vbmongoengine/pkg/store/mongodb"
)

const (
	// DefaultResultsLimit caps paged find requests.
	DefaultResultsLimit = repository.DefaultResultsLimit
	// DefaultSequenceDatabase holds the counters of auto-increment identities.
	DefaultSequenceDatabase = "vbenginesequence"
)

var (
	// ErrReservedDatabase is returned when a context is requested on the sequence database.
	ErrReservedDatabase = errors.New("database is reserved for the sequence generator")
	// ErrUnregisteredMapping is returned when a repository is requested for an unmapped type.
	ErrUnregisteredMapping = errors.New("no mapping registered for entity type")
	// ErrDuplicateMapping is returned when a type is registered twice.
	ErrDuplicateMapping = errors.New("mapping already registered for entity type")
)

// Config holds engine settings.
type Config struct {
	ResultsLimit     int
	SequenceDatabase string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSequenceStore replaces the MongoDB counter store, for instance with a sequence.RedisStore
// when several processes mint identities for the same collections.
func WithSequenceStore(store sequence.Store) Option {
	return func(e *Engine) {
		e.sequenceStore = store
	}
}

// Engine creates contexts on databases of one MongoDB deployment and owns the mapping
// registry and the sequence generator shared by them.
type Engine struct {
	adapter       *mongostore.MongoDBAdapter
	config        Config
	logger        logger.Logger
	sequenceStore sequence.Store
	generator     *sequence.Generator

	mu       sync.RWMutex
	mappings map[reflect.Type]interface{}
}

// New creates an engine over a connected adapter. The engine owns the adapter from then on.
func New(adapter *mongostore.MongoDBAdapter, cfg Config, log logger.Logger, opts ...Option) (*Engine, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.ResultsLimit <= 0 {
		cfg.ResultsLimit = DefaultResultsLimit
	}
	if cfg.SequenceDatabase == "" {
		cfg.SequenceDatabase = DefaultSequenceDatabase
	}

	e := &Engine{
		adapter:  adapter,
		config:   cfg,
		logger:   log,
		mappings: make(map[reflect.Type]interface{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.sequenceStore == nil {
		coll, err := document.NewMongoDBExecutor[sequence.Sequence](adapter.ForDatabase(cfg.SequenceDatabase), sequence.CollectionName)
		if err != nil {
			return nil, err
		}
		store, err := sequence.NewMongoStore(coll, log)
		if err != nil {
			return nil, err
		}
		e.sequenceStore = store
	}
	e.generator = sequence.NewGenerator(e.sequenceStore, log)
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// SequenceGenerator returns the generator behind auto-increment identities.
func (e *Engine) SequenceGenerator() *sequence.Generator { return e.generator }

// ResetSequence restarts the named sequence at 1.
func (e *Engine) ResetSequence(ctx context.Context, name string) error {
	return e.generator.Reset(ctx, name)
}

// CreateContext opens a context on database. The sequence database cannot be opened.
func (e *Engine) CreateContext(database string) (*Context, error) {
	if database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if database == e.config.SequenceDatabase {
		return nil, fmt.Errorf("%w: %s", ErrReservedDatabase, database)
	}
	id := uuid.NewString()
	c := &Context{
		id:      id,
		engine:  e,
		adapter: e.adapter.ForDatabase(database),
		logger:  e.logger.With("context_id", id, "database", database),
		open:    make(map[*Transaction]struct{}),
	}
	c.logger.Debug("context created")
	return c, nil
}

// HealthCheck pings the deployment.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.adapter.HealthCheck(ctx)
}

// Close disconnects the client.
func (e *Engine) Close() error {
	return e.adapter.Close()
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register adds the mapping of T. Each type is registered once per engine.
func Register[T any](e *Engine, m entity.Mapping[T]) error {
	if err := m.Validate(); err != nil {
		return err
	}
	key := typeKey[T]()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.mappings[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMapping, key)
	}
	e.mappings[key] = m
	e.logger.Debug("mapping registered", "type", key.String(), "collection", m.Collection)
	return nil
}

// MappingOf returns the registered mapping of T.
func MappingOf[T any](e *Engine) (entity.Mapping[T], error) {
	key := typeKey[T]()
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.mappings[key]
	if !ok {
		return entity.Mapping[T]{}, fmt.Errorf("%w: %s", ErrUnregisteredMapping, key)
	}
	return m.(entity.Mapping[T]), nil
}
