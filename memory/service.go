package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/carebridge/memorycore/config"
	"github.com/carebridge/memorycore/errors"
	"github.com/carebridge/memorycore/graph"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/semantic"
	"github.com/carebridge/memorycore/txn"
)

type (
	// Service is the façade every other subsystem talks to. Callers load a
	// working-memory context, mutate its cached entries, and consolidate
	// them back into durable storage; the pass-throughs cover direct store
	// access, each behind its permission check.
	Service interface {
		LoadWorkingMemory(ctx context.Context, contextID, query string, sc scope.Scope) (*WorkingMemory, error)
		ConsolidateWorkingMemory(ctx context.Context, contextID string, wm *WorkingMemory) error
		CleanupExpiredContexts() int

		QueryStructured(ctx context.Context, q graph.Query, sc scope.Scope) ([]graph.Result, error)
		QueryAssociative(ctx context.Context, q semantic.Query, sc scope.Scope) ([]semantic.Result, error)
		StoreStructured(ctx context.Context, data graph.Data, sc scope.Scope) (graph.TransactionResult, error)
		StoreAssociative(ctx context.Context, in semantic.StoreInput, affect *semantic.AffectState, sc scope.Scope) (semantic.StorageResult, error)

		Close() error
	}

	coordinator struct {
		graph    *graph.Store
		semantic semantic.Store
		txm      *txn.Manager
		embedder Embedder
		conf     *config.MemoryConfig
		logger   *slog.Logger
		now      func() time.Time

		mu    sync.Mutex
		cache map[string]*WorkingMemory
	}

	// Option tweaks a coordinator; used mainly by tests.
	Option func(*coordinator)
)

var _ Service = (*coordinator)(nil)

// WithClock overrides the coordinator's time source.
func WithClock(now func() time.Time) Option {
	return func(c *coordinator) {
		c.now = now
	}
}

// NewService opens both sqlite-backed stores at the configured path and
// wires a coordinator over them with the built-in hash embedder.
func NewService(conf *config.MemoryConfig, logger *slog.Logger, opts ...Option) (Service, error) {
	if conf.SqlitePath == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "sqlite path is not configured")
	}

	graphStore, err := graph.Open(conf.SqlitePath, logger)
	if err != nil {
		return nil, err
	}
	semanticStore, err := semantic.NewSqliteStore(conf.SqlitePath, conf.VectorDimension, logger)
	if err != nil {
		return nil, err
	}

	return NewServiceWithStores(conf, logger, graphStore, semanticStore, NewHashEmbedder(conf.VectorDimension), opts...), nil
}

// NewServiceWithStores wires a coordinator over caller-supplied stores and
// embedder. The coordinator owns the stores and closes them with Close.
func NewServiceWithStores(
	conf *config.MemoryConfig,
	logger *slog.Logger,
	graphStore *graph.Store,
	semanticStore semantic.Store,
	embedder Embedder,
	opts ...Option,
) Service {
	c := &coordinator{
		graph:    graphStore,
		semantic: semanticStore,
		txm:      txn.NewManager(graphStore, logger),
		embedder: embedder,
		conf:     conf,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]*WorkingMemory),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases both stores. Cached contexts that were never consolidated
// are discarded.
func (c *coordinator) Close() error {
	c.mu.Lock()
	c.cache = make(map[string]*WorkingMemory)
	c.mu.Unlock()

	err := c.graph.Close()
	if serr := c.semantic.Close(); serr != nil && err == nil {
		err = serr
	}
	return err
}
