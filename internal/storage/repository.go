package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"moneymanager/internal/core"
	"moneymanager/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	now    func() time.Time
	logger *log.Logger
}

// SQLiteOption configures a SQLiteRepository.
type SQLiteOption func(*SQLiteRepository)

func WithLogger(l *log.Logger) SQLiteOption {
	return func(r *SQLiteRepository) {
		if l != nil {
			r.logger = l.WithComponent(log.ComponentStorage)
		}
	}
}

func NewSQLiteRepository(dbPath string, opts ...SQLiteOption) (*SQLiteRepository, error) {
	r := &SQLiteRepository{now: time.Now, logger: log.Discard()}
	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := NewMigrator(dbPath, r.logger).Up(); err != nil {
		db.Close()
		return nil, err
	}

	r.db = db
	return r, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context, q core.Query) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, q.From.String())
	}
	if !q.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, q.To.String())
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, q.Type.String())
	}

	query := "SELECT id, title, amount, type, date, created_at FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec      Record
			id, typ  string
			date, at string
		)
		if err := rows.Scan(&id, &rec.Title, &rec.Amount, &typ, &date, &at); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.ID = core.ID(id)
		rec.Type = core.TransactionType(typ)
		if rec.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", id, err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("transaction %s created_at: %w", id, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return records, nil
}

// Create implements Repository.
func (r *SQLiteRepository) Create(ctx context.Context, p core.Payload) (Record, error) {
	if err := p.Validate(); err != nil {
		return Record{}, err
	}
	rec := Record{
		Transaction: core.Transaction{
			ID:     core.ID(uuid.NewString()),
			Title:  strings.TrimSpace(p.Title),
			Amount: p.Amount,
			Type:   p.Type,
			Date:   p.Date,
		},
		CreatedAt: r.now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO transactions (id, title, amount, type, date, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID.String(), rec.Title, rec.Amount, rec.Type.String(), rec.Date.String(), rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("create transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "Transaction saved to SQLite",
		log.FieldTransactionID, rec.ID.String(),
		log.FieldType, rec.Type.String(),
		log.FieldDate, rec.Date.String())

	return rec, nil
}

// Delete implements Repository.
func (r *SQLiteRepository) Delete(ctx context.Context, id core.ID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	r.logger.DebugContext(ctx, "Transaction deleted from SQLite", log.FieldTransactionID, id.String())
	return nil
}
