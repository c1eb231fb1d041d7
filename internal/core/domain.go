package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day wire format used by the backend and the query string.
const DateLayout = "2006-01-02"

const (
	Income   TransactionType = "Income"
	Expenses TransactionType = "Expenses"
)

type (
	// TransactionType is the closed income/expense enumeration. The display
	// text of a type equals its tag.
	TransactionType string

	// ID is the opaque identifier the backend assigns on creation.
	ID string

	// Date is a calendar day with no time-of-day component.
	Date struct {
		time.Time
	}

	// Transaction is the client-side projection of a backend record.
	Transaction struct {
		ID     ID              `json:"id"`
		Title  string          `json:"title"`
		Amount int64           `json:"amount"`
		Type   TransactionType `json:"type"`
		Date   Date            `json:"date"`
	}

	// Payload is the create request body.
	Payload struct {
		Title  string          `json:"title"`
		Amount int64           `json:"amount"`
		Type   TransactionType `json:"type"`
		Date   Date            `json:"date"`
	}
)

var (
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyTitle    = errors.New("empty title")
)

// TransactionTypes lists the enumeration in display order.
func TransactionTypes() []TransactionType {
	return []TransactionType{Income, Expenses}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expenses
}

func (t TransactionType) String() string {
	return string(t)
}

// ParseTransactionType accepts the exact enumeration tag.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, keeping the day as seen in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp; the time of day is discarded.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	if p.Amount < 0 {
		return ErrInvalidAmount
	}
	if !p.Type.Valid() {
		return ErrInvalidType
	}
	if p.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}
