// Package gateway talks to the transaction REST backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moneymanager/internal/core"
	"moneymanager/internal/log"
)

// APIPath is the collection path of the backend, relative to its base URL.
const APIPath = "/api/manager/"

// maxResponseBytes bounds how much of a list response is read.
const maxResponseBytes = 8 << 20

// Operation names carried by TransportError.
const (
	OpList   = "list"
	OpCreate = "create"
	OpDelete = "delete"
)

// TransportError is returned for any network failure or non-2xx response.
type TransportError struct {
	Op         string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a transport error carrying a 404.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// Client issues list, create and delete calls against the backend.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	logger   *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its own Timeout applies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentGateway)
		}
	}
}

// New creates a client for the backend at baseURL. Every call, including
// reading the response body, is bounded by timeout on top of the caller's
// context. A zero timeout means no limit.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must be http or https, got %q", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("backend base URL has no host: %q", baseURL)
	}
	endpoint := base.JoinPath(APIPath)
	if !strings.HasSuffix(endpoint.Path, "/") {
		endpoint.Path += "/"
	}

	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   log.New(log.DefaultConfig()).WithComponent(log.ComponentGateway),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the collection URL, e.g. http://localhost:8080/api/manager/.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// List fetches the records matching q. Only the canonical fields of each
// record are kept.
func (c *Client) List(ctx context.Context, q core.Query) ([]core.Transaction, error) {
	u := *c.endpoint
	u.RawQuery = q.Encode()

	resp, err := c.do(ctx, OpList, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var records []core.Transaction
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&records); err != nil {
		return nil, c.fail(ctx, &TransportError{Op: OpList, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)})
	}
	if records == nil {
		records = []core.Transaction{}
	}
	return records, nil
}

// Create posts p to the backend. The created record is not returned; it is
// read back by the next list.
func (c *Client) Create(ctx context.Context, p core.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return &TransportError{Op: OpCreate, Err: fmt.Errorf("encode payload: %w", err)}
	}
	resp, err := c.do(ctx, OpCreate, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Delete removes the record with the given id.
func (c *Client) Delete(ctx context.Context, id core.ID) error {
	u := c.endpoint.JoinPath(url.PathEscape(id.String()))
	resp, err := c.do(ctx, OpDelete, http.MethodDelete, u.String(), nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, c.fail(ctx, &TransportError{Op: op, Err: err})
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(ctx, &TransportError{Op: op, Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return nil, c.fail(ctx, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(text)})
	}
	return resp, nil
}

func (c *Client) fail(ctx context.Context, err *TransportError) error {
	c.logger.WarnContext(ctx, "Backend call failed",
		log.FieldOperation, err.Op,
		log.FieldStatusCode, err.StatusCode,
		log.FieldError, err.Err)
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
}
