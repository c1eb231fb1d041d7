package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"moneymanager/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	routingKey   string
	// queueName is the declared queue; server-named when exclusive.
	queueName string
	exclusive bool

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time

	logger *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentAMQP)
		}
	}
}

// WithExclusiveQueue makes the client consume from its own server-named,
// exclusive, auto-delete queue bound with the routing key, so every
// subscriber sees every change. Without it, consumers sharing the named
// durable queue split the messages between them.
func WithExclusiveQueue() ClientOption {
	return func(c *Client) {
		c.exclusive = true
	}
}

// NewClient dials url and declares the exchange, the queue and their binding.
// queueName is also the routing key changes are published with.
func NewClient(url, exchangeName, queueName string, opts ...ClientOption) (*Client, error) {
	client := newClient(url, exchangeName, queueName, opts...)
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func newClient(url, exchangeName, queueName string, opts ...ClientOption) *Client {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   queueName,
		queueName:    queueName,
		logger:       log.Discard(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type queueDeclaration struct {
	name       string
	durable    bool
	autoDelete bool
	exclusive  bool
}

func (c *Client) queueDeclaration() queueDeclaration {
	if c.exclusive {
		return queueDeclaration{autoDelete: true, exclusive: true}
	}
	return queueDeclaration{name: c.routingKey, durable: true}
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp091.Dial(c.url)
		if err != nil {
			return fmt.Errorf("dial AMQP: %w", err)
		}
		c.conn = conn
	}

	channel, err := c.conn.Channel()
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("open channel: %w", err)
	}
	c.channel = channel

	if err := c.setup(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	// Declare exchange
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	decl := c.queueDeclaration()
	q, err := c.channel.QueueDeclare(
		decl.name,       // name
		decl.durable,    // durable
		decl.autoDelete, // delete when unused
		decl.exclusive,  // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	c.queueName = q.Name

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.routingKey,   // routing key
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishChange publishes a transaction-changed notification.
func (c *Client) PublishChange(ctx context.Context, op ChangeOp, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s %s: %w", op, id, ErrCircuitOpen)
	}

	msg := NewTransactionChangedMessage(op, id)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	if err := c.connectLocked(); err != nil {
		c.mu.Unlock()
		c.recordFailure()
		return err
	}
	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil && isConnectionError(err) {
		c.closeLocked()
	}
	c.mu.Unlock()

	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published transaction change",
		log.FieldOperation, log.OpPublish,
		"change", string(op),
		log.FieldTransactionID, id,
		"exchange", c.exchangeName)

	return nil
}

// ConsumeChanges delivers change messages to handler until ctx is done,
// reconnecting with exponential backoff when the broker goes away.
func (c *Client) ConsumeChanges(ctx context.Context, handler func(context.Context, *TransactionChangedMessage) error) error {
	attempt := 0
	for {
		msgs, err := c.consume()
		if err != nil {
			wait := exponentialBackoff(attempt)
			c.logger.WarnContext(ctx, "Failed to start consuming, retrying",
				log.FieldError, err,
				"attempt", attempt,
				"backoff", wait.String())
			attempt++
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		attempt = 0

		c.logger.InfoContext(ctx, "Started consuming transaction changes",
			log.FieldOperation, log.OpConsume,
			"queue", c.queueName)
		if err := c.drain(ctx, msgs, handler); err != nil {
			return err
		}
		c.logger.WarnContext(ctx, "Delivery channel closed, reconnecting", "queue", c.queueName)
	}
}

func (c *Client) consume() (<-chan amqp091.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		c.exclusive, // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return msgs, nil
}

// drain returns nil when msgs is closed and ctx.Err() when ctx is done.
func (c *Client) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler func(context.Context, *TransactionChangedMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return nil
			}
			processDelivery(ctx, c.logger, delivery, handler)
		}
	}
}

type deliveryOutcome int

const (
	outcomeAcked deliveryOutcome = iota
	outcomeDropped
	outcomeRequeued
)

// processDelivery acks handled messages, drops undecodable ones and
// requeues the rest.
func processDelivery(ctx context.Context, logger *log.Logger, delivery amqp091.Delivery, handler func(context.Context, *TransactionChangedMessage) error) deliveryOutcome {
	msg, err := TransactionChangedMessageFromJSON(delivery.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Dropping undecodable message", log.FieldError, err)
		_ = delivery.Nack(false, false)
		return outcomeDropped
	}

	if err := handler(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to handle message, requeueing",
			log.FieldError, err,
			"change", string(msg.Op),
			log.FieldTransactionID, msg.ID)
		_ = delivery.Nack(false, true)
		return outcomeRequeued
	}

	_ = delivery.Ack(false)
	logger.DebugContext(ctx, "Processed transaction change",
		"change", string(msg.Op),
		log.FieldTransactionID, msg.ID)
	return outcomeAcked
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}
