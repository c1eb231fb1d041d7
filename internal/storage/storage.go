// Package storage persists transactions for the reference backend.
package storage

import (
	"context"
	"errors"
	"time"

	"moneymanager/internal/core"
)

// ErrNotFound is returned when no transaction has the requested id.
var ErrNotFound = errors.New("transaction not found")

// Record is a stored transaction plus the fields only the backend knows.
type Record struct {
	core.Transaction
	CreatedAt time.Time `json:"createdAt"`
}

// Repository is implemented by every transaction store behind the API.
type Repository interface {
	// List returns the records matching q ordered by date, then creation.
	List(ctx context.Context, q core.Query) ([]Record, error)
	// Create validates and stores p under a freshly assigned id.
	Create(ctx context.Context, p core.Payload) (Record, error)
	// Delete removes the record or returns ErrNotFound.
	Delete(ctx context.Context, id core.ID) error
	Close() error
}
