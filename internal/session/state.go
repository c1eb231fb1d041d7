package session

import (
	"fmt"
	"time"

	"moneymanager/internal/core"
)

// NoticeKind tells the presentation how to show a notice.
type NoticeKind string

const (
	NoticeNone    NoticeKind = ""
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Mutation names used in events and notices.
const (
	OpCreate = "create"
	OpDelete = "delete"
)

// Notice is a non-blocking message for the user.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// FetchStatus describes the last completed list call.
type FetchStatus struct {
	At    time.Time
	Count int
	Err   error
}

// State is the client-side view state. It is treated as a value: Reduce
// returns a new State and never mutates the one it was given.
type State struct {
	Form      core.Form
	Filter    core.Filter
	Notice    Notice
	LastFetch FetchStatus
}

// InitialState is an empty form and the default filter.
func InitialState() State {
	return State{
		Form:   core.EmptyForm(),
		Filter: core.DefaultFilter(),
	}
}

// Event is an input to Reduce.
type Event interface {
	event()
}

type (
	// FormEdited replaces the raw form inputs.
	FormEdited struct{ Form core.Form }

	// FormSubmitted asks for a create from the given inputs.
	FormSubmitted struct{ Form core.Form }

	// RemoveRequested asks for the record with ID to be deleted.
	RemoveRequested struct{ ID core.ID }

	// FilterChanged selects a new history filter.
	FilterChanged struct{ Filter core.Filter }

	// Invalidated reports that the backend data changed elsewhere.
	Invalidated struct{}

	// MutationSucceeded reports a completed create or delete.
	MutationSucceeded struct{ Op string }

	// MutationFailed reports a failed create or delete. Refresh asks for a
	// refetch anyway, e.g. when the record was already gone.
	MutationFailed struct {
		Op      string
		Err     error
		Refresh bool
	}

	// FetchCompleted carries the outcome of a list call.
	FetchCompleted struct {
		At    time.Time
		Count int
		Err   error
	}

	// NoticeDismissed clears the current notice.
	NoticeDismissed struct{}
)

func (FormEdited) event()        {}
func (FormSubmitted) event()     {}
func (RemoveRequested) event()   {}
func (FilterChanged) event()     {}
func (Invalidated) event()       {}
func (MutationSucceeded) event() {}
func (MutationFailed) event()    {}
func (FetchCompleted) event()    {}
func (NoticeDismissed) event()   {}

// Effect is work requested by Reduce and carried out by the Session.
type Effect interface {
	effect()
}

type (
	// CreateEffect posts a validated payload.
	CreateEffect struct{ Payload core.Payload }

	// DeleteEffect deletes a record.
	DeleteEffect struct{ ID core.ID }

	// InvalidateEffect refetches immediately.
	InvalidateEffect struct{}

	// DebounceEffect refetches once the filter has settled.
	DebounceEffect struct{}
)

func (CreateEffect) effect()     {}
func (DeleteEffect) effect()     {}
func (InvalidateEffect) effect() {}
func (DebounceEffect) effect()   {}

// Reduce applies ev to s. On error the returned state equals s and no
// effects are produced.
func Reduce(s State, ev Event) (State, []Effect, error) {
	switch e := ev.(type) {
	case FormEdited:
		s.Form = e.Form
		return s, nil, nil

	case FormSubmitted:
		p, err := e.Form.Payload()
		if err != nil {
			return s, nil, err
		}
		// cleared on validation, whatever the network outcome
		s.Form = core.EmptyForm()
		return s, []Effect{CreateEffect{Payload: p}}, nil

	case RemoveRequested:
		if e.ID == "" {
			return s, nil, fmt.Errorf("remove: empty id")
		}
		return s, []Effect{DeleteEffect{ID: e.ID}}, nil

	case FilterChanged:
		if _, err := core.BuildQuery(e.Filter, time.Time{}); err != nil {
			return s, nil, err
		}
		s.Filter = e.Filter
		return s, []Effect{DebounceEffect{}}, nil

	case Invalidated:
		return s, []Effect{InvalidateEffect{}}, nil

	case MutationSucceeded:
		s.Notice = Notice{Kind: NoticeSuccess, Message: successMessage(e.Op)}
		return s, []Effect{InvalidateEffect{}}, nil

	case MutationFailed:
		s.Notice = Notice{Kind: NoticeError, Message: failureMessage(e.Op, e.Err)}
		if e.Refresh {
			return s, []Effect{InvalidateEffect{}}, nil
		}
		return s, nil, nil

	case FetchCompleted:
		s.LastFetch = FetchStatus{At: e.At, Count: e.Count, Err: e.Err}
		if e.Err != nil {
			s.Notice = Notice{Kind: NoticeError, Message: "Could not load transactions"}
		}
		return s, nil, nil

	case NoticeDismissed:
		s.Notice = Notice{}
		return s, nil, nil
	}
	return s, nil, fmt.Errorf("unknown event %T", ev)
}

func successMessage(op string) string {
	switch op {
	case OpCreate:
		return "Transaction added"
	case OpDelete:
		return "Transaction deleted"
	}
	return "Done"
}

func failureMessage(op string, err error) string {
	var what string
	switch op {
	case OpCreate:
		what = "Could not add transaction"
	case OpDelete:
		what = "Could not delete transaction"
	default:
		what = "Request failed"
	}
	if err == nil {
		return what
	}
	return what + ": " + err.Error()
}
