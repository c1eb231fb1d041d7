package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"moneymanager/internal/core"
	"moneymanager/internal/gateway"
	"moneymanager/internal/store"
)

var testNow = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu         sync.Mutex
	records    []core.Transaction
	nextID     int
	lists      []core.Query
	creates    int
	deletes    int
	listErr    error
	failCreate error
}

func (f *fakeGateway) List(_ context.Context, q core.Query) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, q)
	if f.listErr != nil {
		return nil, &gateway.TransportError{Op: gateway.OpList, Err: f.listErr}
	}
	var out []core.Transaction
	for _, r := range f.records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeGateway) Create(_ context.Context, p core.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failCreate != nil {
		return &gateway.TransportError{Op: gateway.OpCreate, Err: f.failCreate}
	}
	f.nextID++
	f.records = append(f.records, core.Transaction{
		ID:     core.ID(fmt.Sprintf("id-%d", f.nextID)),
		Title:  p.Title,
		Amount: p.Amount,
		Type:   p.Type,
		Date:   p.Date,
	})
	return nil
}

func (f *fakeGateway) Delete(_ context.Context, id core.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return &gateway.TransportError{Op: gateway.OpDelete, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
}

func (f *fakeGateway) listCalls() []core.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Query(nil), f.lists...)
}

func (f *fakeGateway) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = nil
	f.creates = 0
	f.deletes = 0
}

func startSession(t *testing.T, fg *fakeGateway, opts ...Option) (*Session, *store.Store) {
	t.Helper()
	st := store.New()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s := New(fg, st, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitSettled(t, s)
	return s, st
}

func waitSettled(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Settled(ctx); err != nil {
		t.Fatalf("session did not settle: %v", err)
	}
}

func TestInitialFetchUsesDefaultFilter(t *testing.T) {
	fg := &fakeGateway{records: []core.Transaction{
		{ID: "1", Title: "Salary", Amount: 500, Type: core.Income, Date: core.NewDate(2025, 3, 10)},
		{ID: "2", Title: "Old", Amount: 50, Type: core.Expenses, Date: core.NewDate(2024, 1, 1)},
	}}
	s, _ := startSession(t, fg)

	calls := fg.listCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one initial list, got %d", len(calls))
	}
	if got := calls[0].Encode(); got != "fromDate=2025-03-01&toDate=2025-03-31" {
		t.Fatalf("unexpected initial query %s", got)
	}
	v := s.Snapshot()
	if len(v.Records) != 1 || v.Records[0].ID != "1" {
		t.Fatalf("unexpected records %+v", v.Records)
	}
	if v.Totals != (core.Totals{Income: 500, Balance: 500}) {
		t.Fatalf("unexpected totals %+v", v.Totals)
	}
	if v.State.LastFetch.Count != 1 || v.State.LastFetch.Err != nil {
		t.Fatalf("unexpected fetch status %+v", v.State.LastFetch)
	}
}

func TestSettledWaitsForRun(t *testing.T) {
	s := New(&fakeGateway{}, store.New())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Settled(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected pending initial fetch, got %v", err)
	}
}

func TestSettledReturnsAfterRunStops(t *testing.T) {
	s := New(&fakeGateway{}, store.New(), WithClock(func() time.Time { return testNow }), WithSettleDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	waitSettled(t, s)

	// leaves a debounce armed for an hour
	if err := s.SetFilter(context.Background(), core.Filter{Range: core.LastMonths(3), Type: core.AllTypes}); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	cancel()
	<-done

	waitSettled(t, s)
	s.Invalidate()
	waitSettled(t, s)
}

func TestSubmitEmptyAmountMakesNoCall(t *testing.T) {
	fg := &fakeGateway{}
	s, st := startSession(t, fg)
	fg.resetCalls()

	err := s.Submit(context.Background(), core.Form{Title: "Coffee", Amount: "", Date: "2025-03-30", Type: core.Expenses})
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Message != core.MsgFillAllFields {
		t.Fatalf("expected fill-all-fields error, got %v", err)
	}
	waitSettled(t, s)
	fg.mu.Lock()
	creates := fg.creates
	fg.mu.Unlock()
	if creates != 0 || len(fg.listCalls()) != 0 {
		t.Fatalf("expected no network calls, got %d creates %d lists", creates, len(fg.listCalls()))
	}
	if st.Len() != 0 {
		t.Fatal("store changed")
	}
}

func TestSubmitThenRefetchContainsRecord(t *testing.T) {
	fg := &fakeGateway{}
	s, _ := startSession(t, fg)

	form := core.Form{Title: "Salary", Amount: "500", Date: "2025-03-15", Type: core.Income}
	if err := s.Submit(context.Background(), form); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.State().Form != core.EmptyForm() {
		t.Fatal("form not reset after submit")
	}
	waitSettled(t, s)

	v := s.Snapshot()
	if len(v.Records) != 1 {
		t.Fatalf("expected created record, got %+v", v.Records)
	}
	want := core.Transaction{ID: "id-1", Title: "Salary", Amount: 500, Type: core.Income, Date: core.NewDate(2025, 3, 15)}
	if v.Records[0] != want {
		t.Fatalf("expected %+v, got %+v", want, v.Records[0])
	}
	if v.State.Notice.Kind != NoticeSuccess {
		t.Fatalf("expected success notice, got %+v", v.State.Notice)
	}
}

func TestSubmitTransportErrorClearsFormKeepsStore(t *testing.T) {
	fg := &fakeGateway{
		records:    []core.Transaction{{ID: "1", Title: "a", Amount: 1, Type: core.Income, Date: core.NewDate(2025, 3, 20)}},
		failCreate: errors.New("connection refused"),
	}
	s, _ := startSession(t, fg)
	fg.resetCalls()

	err := s.Submit(context.Background(), core.Form{Title: "b", Amount: "2", Date: "2025-03-21", Type: core.Expenses})
	var te *gateway.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	waitSettled(t, s)

	if s.State().Form != core.EmptyForm() {
		t.Fatal("form must be cleared once validation passes")
	}
	if len(fg.listCalls()) != 0 {
		t.Fatal("failed create must not refetch")
	}
	v := s.Snapshot()
	if len(v.Records) != 1 || v.State.Notice.Kind != NoticeError {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestRemoveUnknownIDKeepsCycleAlive(t *testing.T) {
	fg := &fakeGateway{records: []core.Transaction{
		{ID: "1", Title: "a", Amount: 10, Type: core.Income, Date: core.NewDate(2025, 3, 20)},
	}}
	s, _ := startSession(t, fg)

	if err := s.Remove(context.Background(), "nope"); !gateway.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	waitSettled(t, s)

	if err := s.Submit(context.Background(), core.Form{Title: "b", Amount: "5", Date: "2025-03-21", Type: core.Expenses}); err != nil {
		t.Fatalf("submit after failed remove: %v", err)
	}
	waitSettled(t, s)
	if got := s.Snapshot().Totals; got != (core.Totals{Income: 10, Expenses: 5, Balance: 5}) {
		t.Fatalf("unexpected totals %+v", got)
	}

	if err := s.Remove(context.Background(), "1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitSettled(t, s)
	v := s.Snapshot()
	if len(v.Records) != 1 || v.Records[0].ID != "id-1" {
		t.Fatalf("unexpected records after remove %+v", v.Records)
	}
}

func TestFilterBurstCausesOneRefetch(t *testing.T) {
	fg := &fakeGateway{}
	s, _ := startSession(t, fg, WithSettleDelay(200*time.Millisecond))
	fg.resetCalls()

	filters := []core.Filter{
		{Range: core.LastMonths(3), Type: core.AllTypes},
		{Range: core.LastMonths(12), Type: core.OnlyIncome},
		{Range: core.LastMonths(1), Type: core.AllTypes},
		{Range: core.LastMonths(6), Type: core.OnlyExpenses},
	}
	for _, f := range filters {
		if err := s.SetFilter(context.Background(), f); err != nil {
			t.Fatalf("set filter: %v", err)
		}
	}
	if len(fg.listCalls()) != 0 {
		t.Fatal("refetch ran before the filter settled")
	}
	waitSettled(t, s)

	calls := fg.listCalls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one refetch, got %d", len(calls))
	}
	if got := calls[0].Encode(); got != "fromDate=2024-10-02&toDate=2025-03-31&type=Expenses" {
		t.Fatalf("refetch did not use the last filter: %s", got)
	}
}

func TestInvalidFilterRejected(t *testing.T) {
	fg := &fakeGateway{}
	s, _ := startSession(t, fg)
	before := s.State().Filter

	err := s.SetFilter(context.Background(), core.Filter{Range: core.LastMonths(5), Type: core.AllTypes})
	if !errors.Is(err, core.ErrUnknownWindow) {
		t.Fatalf("expected ErrUnknownWindow, got %v", err)
	}
	if s.State().Filter != before {
		t.Fatal("filter changed on error")
	}
}

func TestFetchFailureLeavesStore(t *testing.T) {
	fg := &fakeGateway{records: []core.Transaction{
		{ID: "1", Title: "a", Amount: 10, Type: core.Income, Date: core.NewDate(2025, 3, 20)},
	}}
	s, _ := startSession(t, fg)

	fg.mu.Lock()
	fg.listErr = errors.New("backend down")
	fg.mu.Unlock()

	s.Invalidate()
	waitSettled(t, s)

	v := s.Snapshot()
	if len(v.Records) != 1 {
		t.Fatalf("store changed by failed fetch: %+v", v.Records)
	}
	if v.State.LastFetch.Err == nil {
		t.Fatal("fetch error not recorded")
	}
}

func TestInvalidateCoversPendingDebounce(t *testing.T) {
	fg := &fakeGateway{}
	s, _ := startSession(t, fg, WithSettleDelay(time.Hour))
	fg.resetCalls()

	if err := s.SetFilter(context.Background(), core.Filter{Range: core.LastMonths(12), Type: core.AllTypes}); err != nil {
		t.Fatal(err)
	}
	s.Invalidate()
	waitSettled(t, s)

	calls := fg.listCalls()
	if len(calls) != 1 || calls[0].From.String() != "2024-03-31" {
		t.Fatalf("expected one refetch with the new filter, got %+v", calls)
	}
}
