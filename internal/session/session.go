// Package session owns the client-side state of the single user: the add
// form, the history filter and the fetched transactions.
//
// Every input is an Event passed through Reduce. The effects Reduce returns
// are run here: creates and deletes go straight to the Gateway, refetches are
// handed to the one subscriber goroutine started by Run. Filter changes are
// debounced there, so a burst of changes costs a single list call.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"moneymanager/internal/core"
	"moneymanager/internal/gateway"
	"moneymanager/internal/log"
	"moneymanager/internal/store"
)

// DefaultSettleDelay is the debounce window for filter changes.
const DefaultSettleDelay = 100 * time.Millisecond

// Gateway is the backend surface the session needs.
type Gateway interface {
	List(ctx context.Context, q core.Query) ([]core.Transaction, error)
	Create(ctx context.Context, p core.Payload) error
	Delete(ctx context.Context, id core.ID) error
}

// View is a consistent read of the session for rendering.
type View struct {
	State   State
	Records []core.Transaction
	Totals  core.Totals
}

// Session serialises state changes and refetches for one user.
type Session struct {
	gw     Gateway
	store  *store.Store
	now    func() time.Time
	loc    *time.Location
	settle time.Duration
	logger *log.Logger

	invalidated   chan struct{}
	filterChanged chan struct{}

	mu    sync.Mutex
	state State
	armed bool
	busy    bool
	stopped bool
	idle    chan struct{} // closed while nothing is queued, armed or running
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now as the source of today's date.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone in which "today" is evaluated. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithSettleDelay sets the filter debounce window.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.settle = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentSession)
		}
	}
}

// New creates a session over gw and st. The initial fetch is queued
// immediately and performed once Run starts.
func New(gw Gateway, st *store.Store, opts ...Option) *Session {
	idle := make(chan struct{})
	close(idle)
	s := &Session{
		gw:            gw,
		store:         st,
		now:           time.Now,
		loc:           time.UTC,
		settle:        DefaultSettleDelay,
		logger:        log.New(log.DefaultConfig()).WithComponent(log.ComponentSession),
		invalidated:   make(chan struct{}, 1),
		filterChanged: make(chan struct{}, 1),
		state:         InitialState(),
		idle:          idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.signal(s.invalidated)
	return s
}

// Dispatch reduces ev and runs the resulting effects. Creates and deletes
// complete before Dispatch returns; refetches are only queued.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	effects, err := s.apply(ev)
	if err != nil {
		return err
	}
	for _, eff := range effects {
		if err := s.run(ctx, eff); err != nil {
			return err
		}
	}
	return nil
}

// Submit validates form and creates the transaction. A *core.ValidationError
// means nothing was sent; a *gateway.TransportError means the call failed.
func (s *Session) Submit(ctx context.Context, form core.Form) error {
	return s.Dispatch(ctx, FormSubmitted{Form: form})
}

// Edit stores the raw form inputs without submitting them.
func (s *Session) Edit(form core.Form) {
	_ = s.Dispatch(context.Background(), FormEdited{Form: form})
}

// Remove deletes the transaction with the given id.
func (s *Session) Remove(ctx context.Context, id core.ID) error {
	return s.Dispatch(ctx, RemoveRequested{ID: id})
}

// SetFilter selects a new filter; the refetch happens after the settle delay.
func (s *Session) SetFilter(ctx context.Context, f core.Filter) error {
	return s.Dispatch(ctx, FilterChanged{Filter: f})
}

// Invalidate queues an immediate refetch.
func (s *Session) Invalidate() {
	_ = s.Dispatch(context.Background(), Invalidated{})
}

// DismissNotice clears the current notice.
func (s *Session) DismissNotice() {
	_ = s.Dispatch(context.Background(), NoticeDismissed{})
}

// State returns the current state value.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the state together with the stored records and totals.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	records := s.store.Snapshot()
	return View{State: st, Records: records, Totals: core.Aggregate(records)}
}

// Settled blocks until no refetch is queued, armed or in flight.
func (s *Session) Settled(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the refetch subscriber. It returns when ctx is done.
func (s *Session) Run(ctx context.Context) error {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
		s.setArmed(false)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		s.stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.invalidated:
			// the refetch reads the current filter, so it also covers a pending debounce
			disarm()
			s.refetch(ctx)
		case <-s.filterChanged:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(s.settle)
			timerC = timer.C
			s.setArmed(true)
		case <-timerC:
			timer, timerC = nil, nil
			s.setArmed(false)
			s.refetch(ctx)
		}
		s.settleIfIdle()
	}
}

func (s *Session) refetch(ctx context.Context) {
	s.mu.Lock()
	filter := s.state.Filter
	s.mu.Unlock()

	q, err := core.BuildQuery(filter, s.now().In(s.loc))
	if err != nil {
		s.logger.ErrorContext(ctx, "Invalid filter", log.FieldError, err)
		_, _ = s.apply(FetchCompleted{At: s.now(), Err: err})
		return
	}

	gen := s.store.Begin()
	records, err := s.gw.List(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.ErrorContext(ctx, "Failed to fetch transactions",
			log.FieldOperation, log.OpFetch,
			log.FieldFromDate, q.From.String(),
			log.FieldToDate, q.To.String(),
			log.FieldError, err)
		_, _ = s.apply(FetchCompleted{At: s.now(), Err: err})
		return
	}
	if !s.store.Commit(gen, records) {
		s.logger.DebugContext(ctx, "Discarded stale fetch", log.FieldGeneration, gen)
		return
	}
	s.logger.DebugContext(ctx, "Transactions refreshed",
		log.FieldOperation, log.OpFetch,
		log.FieldFromDate, q.From.String(),
		log.FieldToDate, q.To.String(),
		log.FieldType, q.Type.String(),
		log.FieldCount, len(records))
	_, _ = s.apply(FetchCompleted{At: s.now(), Count: len(records)})
}

func (s *Session) run(ctx context.Context, eff Effect) error {
	switch e := eff.(type) {
	case CreateEffect:
		if err := s.gw.Create(ctx, e.Payload); err != nil {
			s.logger.ErrorContext(ctx, "Failed to create transaction",
				log.FieldOperation, log.OpCreate,
				log.FieldTitle, e.Payload.Title,
				log.FieldError, err)
			_ = s.Dispatch(ctx, MutationFailed{Op: OpCreate, Err: err})
			return err
		}
		s.logger.InfoContext(ctx, "Transaction created",
			log.FieldTitle, e.Payload.Title,
			log.FieldAmount, e.Payload.Amount,
			log.FieldType, e.Payload.Type.String(),
			log.FieldDate, e.Payload.Date.String())
		return s.Dispatch(ctx, MutationSucceeded{Op: OpCreate})

	case DeleteEffect:
		if err := s.gw.Delete(ctx, e.ID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to delete transaction",
				log.FieldOperation, log.OpDelete,
				log.FieldTransactionID, e.ID.String(),
				log.FieldError, err)
			_ = s.Dispatch(ctx, MutationFailed{Op: OpDelete, Err: err, Refresh: gateway.IsNotFound(err)})
			return err
		}
		s.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, e.ID.String())
		return s.Dispatch(ctx, MutationSucceeded{Op: OpDelete})

	case InvalidateEffect:
		s.signal(s.invalidated)
		return nil

	case DebounceEffect:
		s.signal(s.filterChanged)
		return nil
	}
	return errors.New("session: unknown effect")
}

func (s *Session) apply(ev Event) ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, effects, err := Reduce(s.state, ev)
	if err != nil {
		return nil, err
	}
	s.state = next
	return effects, nil
}

// signal queues a wake-up for Run. A pending signal already covers this one.
func (s *Session) signal(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markBusy()
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Session) setArmed(armed bool) {
	s.mu.Lock()
	s.armed = armed
	s.mu.Unlock()
}

// stop releases Settled waiters once Run has returned; nothing is pending
// any more.
func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.armed = false
	if s.busy {
		s.busy = false
		close(s.idle)
	}
}

func (s *Session) markBusy() {
	if !s.busy && !s.stopped {
		s.busy = true
		s.idle = make(chan struct{})
	}
}

func (s *Session) settleIfIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy || s.armed || len(s.invalidated) > 0 || len(s.filterChanged) > 0 {
		return
	}
	s.busy = false
	close(s.idle)
}
