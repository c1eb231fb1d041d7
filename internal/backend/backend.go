// Package backend assembles the reference API's storage stack: a
// repository, the list cache and the optional change publisher, behind one
// TransactionService.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"moneymanager/internal/config"
	"moneymanager/internal/services"
)

// Type selects the repository implementation.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

var types = []Type{MemoryBackend, SQLiteBackend}

func (t Type) String() string {
	return string(t)
}

// ParseType accepts memory or sqlite.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !slices.Contains(types, t) {
		return "", fmt.Errorf("unknown backend type %q (want one of %v)", s, types)
	}
	return t, nil
}

// Pinger reports whether the storage behind a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result is the assembled backend.
type Result struct {
	Service *services.TransactionService
	// Ready is nil when the storage has nothing to probe.
	Ready Pinger
	// Cleanup stops the cache janitor and closes the service.
	Cleanup func() error
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config is the subset of the application config the backend needs.
type Config struct {
	Type          Type
	SQLiteDBPath  string
	DataDirectory string // seed file directory for the memory backend

	ListCacheSize int
	ListCacheTTL  time.Duration

	// AMQPURL empty disables change notifications.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	t, err := ParseType(appConfig.DataBackend)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Type:          t,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DataDirectory: appConfig.DataDirectory,
		ListCacheSize: appConfig.ListCacheSize,
		ListCacheTTL:  appConfig.ListCacheTTL,
		AMQPURL:       appConfig.AMQPURL,
		AMQPExchange:  appConfig.AMQPExchange,
		AMQPQueue:     appConfig.AMQPQueue,
	}, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseType(string(c.Type)); err != nil {
		errs = append(errs, err)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		errs = append(errs, errors.New("sqlite backend needs a database path"))
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		errs = append(errs, errors.New("AMQP exchange and queue are required when an AMQP URL is set"))
	}
	return errors.Join(errs...)
}
