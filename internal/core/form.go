package core

import (
	"errors"
	"strings"
)

// MsgFillAllFields is shown when a required form field is empty.
const MsgFillAllFields = "Please fill all the fields"

// Form holds the raw add-transaction inputs as typed by the user.
type Form struct {
	Title  string
	Amount string
	Date   string
	Type   TransactionType
}

// EmptyForm is the reset state: blank inputs, first type option selected.
func EmptyForm() Form {
	return Form{Type: Income}
}

// ValidationError reports form input rejected before any network call.
type ValidationError struct {
	Fields  []string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(e.Fields, ", ") + ")"
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Payload validates the form and converts it into a create payload.
// Title, amount and date must all be non-empty.
func (f Form) Payload() (Payload, error) {
	var missing []string
	if strings.TrimSpace(f.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(f.Amount) == "" {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(f.Date) == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return Payload{}, &ValidationError{Fields: missing, Message: MsgFillAllFields}
	}

	amount, err := ParseAmount(f.Amount)
	if err != nil {
		return Payload{}, &ValidationError{Fields: []string{"amount"}, Message: "Amount must be a non-negative number", Err: err}
	}
	date, err := ParseDate(f.Date)
	if err != nil {
		return Payload{}, &ValidationError{Fields: []string{"date"}, Message: "Date must be a valid calendar date", Err: err}
	}
	typ := f.Type
	if typ == "" {
		typ = Income
	}
	if !typ.Valid() {
		return Payload{}, &ValidationError{Fields: []string{"type"}, Message: "Unknown transaction type", Err: ErrInvalidType}
	}

	return Payload{
		Title:  strings.TrimSpace(f.Title),
		Amount: amount,
		Type:   typ,
		Date:   date,
	}, nil
}
