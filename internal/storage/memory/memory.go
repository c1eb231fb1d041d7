// Package memory is an in-process transaction store for development and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"moneymanager/internal/core"
	"moneymanager/internal/storage"
)

// SeedFile is read from the data directory by NewFromDir.
const SeedFile = "seed_transactions.txt"

type Store struct {
	mu    sync.Mutex
	items []storage.Record
	now   func() time.Time
}

func New(seed ...core.Payload) *Store {
	s := &Store{now: time.Now}
	for _, p := range seed {
		if p.Validate() != nil {
			continue
		}
		s.items = append(s.items, s.record(p))
	}
	return s
}

// NewFromDir seeds the store from SeedFile in base, one transaction per line
// as "date|type|amount|title". Blank lines and lines starting with # are
// skipped; a missing file gives an empty store.
func NewFromDir(base string) *Store {
	return New(readSeed(filepath.Join(base, SeedFile))...)
}

// List implements storage.Repository.
func (s *Store) List(_ context.Context, q core.Query) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []storage.Record{}
	for _, r := range s.items {
		if q.Matches(r.Transaction) {
			out = append(out, r)
		}
	}
	// items are kept in creation order
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date.Time)
	})
	return out, nil
}

// Create implements storage.Repository.
func (s *Store) Create(_ context.Context, p core.Payload) (storage.Record, error) {
	if err := p.Validate(); err != nil {
		return storage.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(p)
	s.items = append(s.items, rec)
	return rec, nil
}

// Delete implements storage.Repository.
func (s *Store) Delete(_ context.Context, id core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.items {
		if r.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) Close() error { return nil }

func (s *Store) record(p core.Payload) storage.Record {
	return storage.Record{
		Transaction: core.Transaction{
			ID:     core.ID(uuid.NewString()),
			Title:  strings.TrimSpace(p.Title),
			Amount: p.Amount,
			Type:   p.Type,
			Date:   p.Date,
		},
		CreatedAt: s.now().UTC(),
	}
}

func readSeed(path string) []core.Payload {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Payload
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := parseSeedLine(line)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseSeedLine(line string) (core.Payload, error) {
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return core.Payload{}, fmt.Errorf("want 4 fields, got %d", len(parts))
	}
	date, err := core.ParseDate(parts[0])
	if err != nil {
		return core.Payload{}, err
	}
	typ, err := core.ParseTransactionType(parts[1])
	if err != nil {
		return core.Payload{}, err
	}
	amount, err := core.ParseAmount(parts[2])
	if err != nil {
		return core.Payload{}, err
	}
	p := core.Payload{Title: strings.TrimSpace(parts[3]), Amount: amount, Type: typ, Date: date}
	return p, p.Validate()
}
