// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept both form-encoded bodies (the default for htmx) and JSON.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moneymanager/internal/core"
)

const maxFormBytes = 1 << 16

// Form field names used by the templates.
const (
	fieldTitle  = "title"
	fieldAmount = "amount"
	fieldDate   = "date"
	fieldType   = "type"
	fieldWindow = "window"
	fieldFrom   = "from"
	fieldTo     = "to"
)

var errIncompleteRange = errors.New("both from and to are required for a custom range")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxFormBytes of the request body once
// and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// transactionForm reads the add-transaction inputs verbatim. Validation
// belongs to the session.
func transactionForm(p *RequestBodyParser) core.Form {
	return core.Form{
		Title:  p.Get(fieldTitle),
		Amount: p.Get(fieldAmount),
		Date:   p.Get(fieldDate),
		Type:   core.TransactionType(p.Get(fieldType)),
	}
}

// filterForm builds a filter from either a custom from/to pair or a window
// code, plus the type selector. An empty window means the default one.
func filterForm(p *RequestBodyParser) (core.Filter, error) {
	typ, err := core.ParseTypeFilter(p.Get(fieldType))
	if err != nil {
		return core.Filter{}, err
	}

	from, to := p.Get(fieldFrom), p.Get(fieldTo)
	if from != "" || to != "" {
		if from == "" || to == "" {
			return core.Filter{}, errIncompleteRange
		}
		start, err := core.ParseDate(from)
		if err != nil {
			return core.Filter{}, fmt.Errorf("from: %w", err)
		}
		end, err := core.ParseDate(to)
		if err != nil {
			return core.Filter{}, fmt.Errorf("to: %w", err)
		}
		return core.Filter{Range: core.Between(start.Time, end.Time), Type: typ}, nil
	}

	window := core.DefaultWindow
	if v := p.Get(fieldWindow); v != "" {
		window, err = core.ParseWindow(v)
		if err != nil {
			return core.Filter{}, err
		}
	}
	return core.Filter{Range: core.LastMonths(window), Type: typ}, nil
}

// todayString is the default value of the date input.
func todayString(now time.Time) string {
	return core.DateOf(now).String()
}
