package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"moneymanager/internal/amqp"
	"moneymanager/internal/cache"
	"moneymanager/internal/core"
	"moneymanager/internal/log"
	"moneymanager/internal/storage"
)

// ChangePublisher announces committed mutations to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, op amqp.ChangeOp, id string) error
	Close() error
}

// TransactionService orchestrates transaction operations across the
// repository, the list cache and AMQP.
type TransactionService struct {
	storage   storage.Repository
	publisher ChangePublisher
	lists     cache.Cache[[]storage.Record]

	// gen counts mutations; a list read before one must not fill the cache.
	mu  sync.Mutex
	gen uint64
}

// NewTransactionService wires the service. publisher and lists may be nil.
func NewTransactionService(repo storage.Repository, publisher ChangePublisher, lists cache.Cache[[]storage.Record]) *TransactionService {
	return &TransactionService{
		storage:   repo,
		publisher: publisher,
		lists:     lists,
	}
}

// ListTransactions returns the records matching q, served from the cache
// when possible.
func (s *TransactionService) ListTransactions(ctx context.Context, q core.Query) ([]storage.Record, error) {
	key := q.Encode()
	if s.lists != nil {
		if cached, ok := s.lists.Get(key); ok {
			return cloneRecords(cached), nil
		}
	}

	gen := s.generation()
	records, err := s.storage.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	s.fill(gen, key, records)
	return records, nil
}

// CreateTransaction stores p and publishes a change message.
func (s *TransactionService) CreateTransaction(ctx context.Context, p core.Payload) (storage.Record, error) {
	rec, err := s.storage.Create(ctx, p)
	if err != nil {
		return storage.Record{}, fmt.Errorf("save transaction: %w", err)
	}
	s.invalidate()

	// the record is saved; a lost notification only delays other clients
	s.publish(ctx, amqp.OpCreated, rec.ID)
	return rec, nil
}

// DeleteTransaction removes the record and publishes a change message.
// Unknown ids yield an error wrapping storage.ErrNotFound.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id core.ID) error {
	if err := s.storage.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	s.invalidate()

	s.publish(ctx, amqp.OpDeleted, id)
	return nil
}

func (s *TransactionService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// fill caches records unless a mutation committed since gen was read.
func (s *TransactionService) fill(gen uint64, key string, records []storage.Record) {
	if s.lists == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.lists.Set(key, cloneRecords(records))
}

func (s *TransactionService) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.lists != nil {
		s.lists.Purge()
	}
}

// publish logs failures through the request logger instead of returning them.
func (s *TransactionService) publish(ctx context.Context, op amqp.ChangeOp, id core.ID) {
	logger := log.FromContext(ctx)
	if s.publisher == nil {
		logger.DebugContext(ctx, "Change notifications disabled, skipping", log.FieldTransactionID, id.String())
		return
	}
	if err := s.publisher.PublishChange(ctx, op, id.String()); err != nil {
		logger.ErrorContext(ctx, "Failed to publish change message",
			log.FieldOperation, log.OpPublish,
			"change", string(op),
			log.FieldTransactionID, id.String(),
			log.FieldError, err)
	}
}

// Close closes both storage and AMQP connections
func (s *TransactionService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %w", errors.Join(errs...))
	}

	return nil
}

func cloneRecords(in []storage.Record) []storage.Record {
	return append([]storage.Record{}, in...)
}
