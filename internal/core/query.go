package core

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameter names understood by the backend.
const (
	ParamFromDate = "fromDate"
	ParamToDate   = "toDate"
	ParamType     = "type"
)

const (
	AllTypes      TypeFilter = "All"
	OnlyIncome    TypeFilter = TypeFilter(Income)
	OnlyExpenses  TypeFilter = TypeFilter(Expenses)
	DefaultWindow Window     = 1
)

// windowDays maps a trailing window in months to its fixed day count.
var windowDays = map[Window]int{
	1:  30,
	3:  90,
	6:  180,
	12: 365,
}

var (
	ErrUnknownWindow     = errors.New("unknown date window")
	ErrInvalidTypeFilter = errors.New("invalid type filter")
)

type (
	// Window is a symbolic trailing range expressed in months.
	Window int

	// TypeFilter selects All, Income or Expenses.
	TypeFilter string

	// DateRange is either a symbolic window or an explicit start/end pair.
	// A zero Window means the range is explicit.
	DateRange struct {
		Window Window
		Start  time.Time
		End    time.Time
	}

	// Filter is the history selection driving a fetch.
	Filter struct {
		Range DateRange
		Type  TypeFilter
	}

	// Query is the resolved backend query.
	Query struct {
		From Date
		To   Date
		// Type is empty when every type is requested.
		Type TransactionType
	}
)

// Windows lists the supported symbolic windows in display order.
func Windows() []Window {
	return []Window{1, 3, 6, 12}
}

// Days returns the fixed day count of the window.
func (w Window) Days() (int, bool) {
	d, ok := windowDays[w]
	return d, ok
}

// Label is the human text for the window, e.g. "Last 3 months".
func (w Window) Label() string {
	if w == 1 {
		return "Last 1 month"
	}
	return fmt.Sprintf("Last %d months", int(w))
}

// ParseWindow parses the window code used by the filter control.
func ParseWindow(s string) (Window, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
	w := Window(n)
	if _, ok := w.Days(); !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
	return w, nil
}

// TypeFilters lists the filter options in display order.
func TypeFilters() []TypeFilter {
	return []TypeFilter{AllTypes, OnlyIncome, OnlyExpenses}
}

// ParseTypeFilter accepts All, Income or Expenses. An empty string means All.
func ParseTypeFilter(s string) (TypeFilter, error) {
	s = strings.TrimSpace(s)
	switch TypeFilter(s) {
	case "", AllTypes:
		return AllTypes, nil
	case OnlyIncome, OnlyExpenses:
		return TypeFilter(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTypeFilter, s)
}

// LastMonths builds a symbolic trailing range.
func LastMonths(w Window) DateRange {
	return DateRange{Window: w}
}

// Between builds an explicit range. No ordering check is made.
func Between(start, end time.Time) DateRange {
	return DateRange{Start: start, End: end}
}

// IsExplicit reports whether the range carries its own start and end.
func (r DateRange) IsExplicit() bool {
	return r.Window == 0
}

// DefaultFilter is the initial selection: last month, all types.
func DefaultFilter() Filter {
	return Filter{Range: LastMonths(DefaultWindow), Type: AllTypes}
}

// BuildQuery resolves a filter against the current instant.
//
// For a symbolic window toDate is the day of now and fromDate lies the
// window's day count earlier. Explicit ranges are passed through, each bound
// truncated to its calendar day; a start after the end is not rejected.
func BuildQuery(f Filter, now time.Time) (Query, error) {
	var q Query
	if f.Range.IsExplicit() {
		q.From = DateOf(f.Range.Start)
		q.To = DateOf(f.Range.End)
	} else {
		days, ok := f.Range.Window.Days()
		if !ok {
			return Query{}, fmt.Errorf("%w: %d", ErrUnknownWindow, int(f.Range.Window))
		}
		q.From = DateOf(now.AddDate(0, 0, -days))
		q.To = DateOf(now)
	}

	switch f.Type {
	case "", AllTypes:
	case OnlyIncome, OnlyExpenses:
		q.Type = TransactionType(f.Type)
	default:
		return Query{}, fmt.Errorf("%w: %q", ErrInvalidTypeFilter, string(f.Type))
	}
	return q, nil
}

// Values returns the query as URL values.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set(ParamFromDate, q.From.String())
	v.Set(ParamToDate, q.To.String())
	if q.Type != "" {
		v.Set(ParamType, q.Type.String())
	}
	return v
}

// Encode renders fromDate, toDate and the optional type as a query string.
func (q Query) Encode() string {
	// url.Values sorts keys, which happens to give fromDate, toDate, type.
	return q.Values().Encode()
}

// Matches reports whether t falls inside the query. Bounds are inclusive and
// a zero bound is open.
func (q Query) Matches(t Transaction) bool {
	if !q.From.IsZero() && t.Date.Before(q.From.Time) {
		return false
	}
	if !q.To.IsZero() && t.Date.After(q.To.Time) {
		return false
	}
	if q.Type != "" && t.Type != q.Type {
		return false
	}
	return true
}

// ParseQuery reads the backend query parameters. Missing dates are left open.
func ParseQuery(v url.Values) (Query, error) {
	var q Query
	if s := strings.TrimSpace(v.Get(ParamFromDate)); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return Query{}, fmt.Errorf("%s: %w", ParamFromDate, err)
		}
		q.From = d
	}
	if s := strings.TrimSpace(v.Get(ParamToDate)); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return Query{}, fmt.Errorf("%s: %w", ParamToDate, err)
		}
		q.To = d
	}
	if s := strings.TrimSpace(v.Get(ParamType)); s != "" {
		t, err := ParseTransactionType(s)
		if err != nil {
			return Query{}, err
		}
		q.Type = t
	}
	return q, nil
}
