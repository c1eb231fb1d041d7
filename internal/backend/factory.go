package backend

import (
	"context"
	"fmt"
	"time"

	"moneymanager/internal/amqp"
	"moneymanager/internal/cache"
	"moneymanager/internal/log"
	"moneymanager/internal/services"
	"moneymanager/internal/storage"
	"moneymanager/internal/storage/memory"
)

const (
	defaultListCacheSize = 100
	defaultListCacheTTL  = time.Minute
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	// dialAMQP is replaced in tests.
	dialAMQP func(url, exchange, queue string, logger *log.Logger) (services.ChangePublisher, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger:   logger.WithComponent(log.ComponentBackend),
		dialAMQP: dialAMQP,
	}
}

func dialAMQP(url, exchange, queue string, logger *log.Logger) (services.ChangePublisher, error) {
	c, err := amqp.NewClient(url, exchange, queue, amqp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo  storage.Repository
		ready Pinger
	)
	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, storage.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo, ready = sqliteRepo, sqliteRepo
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		repo = memory.NewFromDir(config.DataDirectory)
		f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	publisher := f.createPublisher(config)

	size, ttl := config.ListCacheSize, config.ListCacheTTL
	if size <= 0 {
		size = defaultListCacheSize
	}
	if ttl <= 0 {
		ttl = defaultListCacheTTL
	}
	lists := cache.NewLRUCache[[]storage.Record](size, ttl)

	caches := cache.NewManager(f.logger)
	caches.Register(lists)
	caches.StartCleanup(ttl)

	svc := services.NewTransactionService(repo, publisher, lists)

	f.logger.Info("Backend ready",
		"type", config.Type,
		"amqp_enabled", publisher != nil,
		"list_cache_size", size,
		"list_cache_ttl", ttl)

	return &Result{
		Service: svc,
		Ready:   ready,
		Cleanup: func() error {
			caches.Stop()
			return svc.Close()
		},
	}, nil
}

// createPublisher returns nil when AMQP is disabled or unreachable; the
// API keeps serving without change notifications.
func (f *DefaultFactory) createPublisher(config Config) services.ChangePublisher {
	if config.AMQPURL == "" {
		return nil
	}
	publisher, err := f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without change notifications", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return publisher
}
