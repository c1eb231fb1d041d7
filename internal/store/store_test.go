package store

import (
	"sync"
	"testing"

	"moneymanager/internal/core"
)

func tx(id string, amount int64, typ core.TransactionType) core.Transaction {
	return core.Transaction{ID: core.ID(id), Title: id, Amount: amount, Type: typ, Date: core.NewDate(2025, 1, 1)}
}

func TestCommitReplacesContents(t *testing.T) {
	s := New()
	if s.Len() != 0 || s.Totals() != (core.Totals{}) {
		t.Fatal("new store must be empty")
	}

	if !s.Commit(s.Begin(), []core.Transaction{tx("a", 500, core.Income), tx("b", 200, core.Expenses)}) {
		t.Fatal("first commit rejected")
	}
	if !s.Commit(s.Begin(), []core.Transaction{tx("c", 100, core.Income)}) {
		t.Fatal("second commit rejected")
	}
	got := s.Snapshot()
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("expected only c, got %+v", got)
	}
	if s.UpdatedAt().IsZero() {
		t.Fatal("expected UpdatedAt to be set")
	}
}

func TestStaleGenerationIsDropped(t *testing.T) {
	s := New()
	older := s.Begin()
	newer := s.Begin()

	if !s.Commit(newer, []core.Transaction{tx("new", 1, core.Income)}) {
		t.Fatal("newer commit rejected")
	}
	if s.Commit(older, []core.Transaction{tx("old", 1, core.Income)}) {
		t.Fatal("older commit accepted after newer")
	}
	if got := s.Snapshot(); len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("stale data leaked: %+v", got)
	}
}

func TestSupersededGenerationIsDroppedEvenIfFirst(t *testing.T) {
	s := New()
	older := s.Begin()
	_ = s.Begin()

	if s.Commit(older, []core.Transaction{tx("old", 1, core.Income)}) {
		t.Fatal("superseded generation must not commit")
	}
	if s.Len() != 0 {
		t.Fatal("store changed by superseded fetch")
	}
}

func TestDuplicateCommitIgnored(t *testing.T) {
	s := New()
	gen := s.Begin()
	s.Commit(gen, []core.Transaction{tx("a", 1, core.Income)})
	if s.Commit(gen, nil) {
		t.Fatal("same generation committed twice")
	}
	if s.Len() != 1 {
		t.Fatal("store changed by duplicate commit")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	in := []core.Transaction{tx("a", 1, core.Income)}
	s.Commit(s.Begin(), in)
	in[0].Title = "mutated"

	snap := s.Snapshot()
	snap[0].Title = "also mutated"
	if got := s.Snapshot()[0].Title; got != "a" {
		t.Fatalf("store aliased caller slices, title=%q", got)
	}
}

func TestConcurrentCommitsKeepLatest(t *testing.T) {
	s := New()
	gens := make([]uint64, 50)
	for i := range gens {
		gens[i] = s.Begin()
	}
	var wg sync.WaitGroup
	for i, g := range gens {
		wg.Add(1)
		go func(i int, g uint64) {
			defer wg.Done()
			s.Commit(g, []core.Transaction{tx(string(rune('A'+i%26)), int64(i), core.Income)})
		}(i, g)
	}
	wg.Wait()
	got := s.Snapshot()
	if len(got) != 1 || got[0].Amount != 49 {
		t.Fatalf("expected latest generation only, got %+v", got)
	}
}
