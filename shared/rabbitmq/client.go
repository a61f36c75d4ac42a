package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned by every operation once the connection is gone
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string
	// DeadLetterQueue receives messages rejected without requeue. Empty
	// disables dead-lettering.
	DeadLetterQueue    string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// URL builds the AMQP connection URL, escaping credentials and vhost
func (c *Config) URL() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Vhost:    vhost,
	}.String()
}

// deadLetterExchange is the fanout exchange feeding DeadLetterQueue
func (c *Config) deadLetterExchange() string {
	if c.DeadLetterQueue == "" {
		return ""
	}
	return c.DeadLetterQueue + ".dlx"
}

// queueArgs are the arguments of the work queue declaration
func (c *Config) queueArgs() amqp.Table {
	dlx := c.deadLetterExchange()
	if dlx == "" {
		return nil
	}
	return amqp.Table{"x-dead-letter-exchange": dlx}
}

// backoff returns the delay before publish retry number attempt (0 based)
func (c *Config) backoff(attempt int) time.Duration {
	baseDelay := c.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	mult := c.PublishBackoffMult
	if mult <= 0 {
		mult = 2.0
	}

	return time.Duration(float64(baseDelay) * math.Pow(mult, float64(attempt)))
}

// PublishOption sets message properties on a publish
type PublishOption func(*amqp.Publishing)

// WithMessageID tags the message, usually with the generation request id
func WithMessageID(id string) PublishOption {
	return func(p *amqp.Publishing) { p.MessageId = id }
}

// WithType tags the message with its kind
func WithType(kind string) PublishOption {
	return func(p *amqp.Publishing) { p.Type = kind }
}

func newPublishing(body []byte, contentType string, opts []PublishOption) amqp.Publishing {
	msg := amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}

// Client publishes generation requests and consumes them on the worker side
type Client struct {
	config    *Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *slog.Logger
	connected atomic.Bool
}

// NewClient connects, declares the topology and starts watching the channel
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.connected.Store(true)
	go c.watch(channel.NotifyClose(make(chan *amqp.Error, 1)))

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.String("dead_letter_queue", c.config.DeadLetterQueue),
	)

	return nil
}

// dial opens the connection, retrying RetryAttempts times
func (c *Client) dial() (*amqp.Connection, error) {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := max(c.config.RetryAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.String("host", c.config.Host),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		var conn *amqp.Connection
		conn, err = amqp.DialConfig(c.config.URL(), amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			return conn, nil
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
}

// watch marks the client disconnected when the broker closes the channel
func (c *Client) watch(closed <-chan *amqp.Error) {
	err, ok := <-closed
	c.connected.Store(false)
	if ok && err != nil {
		c.logger.Error("RabbitMQ channel closed by broker",
			slog.Int("code", err.Code),
			slog.String("reason", err.Reason),
		)
	}
}

// declareTopology declares the dead-letter pair first so the work queue
// can point at it, then the exchange, queue and binding
func (c *Client) declareTopology(ch *amqp.Channel) error {
	if dlx := c.config.deadLetterExchange(); dlx != "" {
		if err := ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
		}
		if _, err := ch.QueueDeclare(c.config.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue: %w", err)
		}
		if err := ch.QueueBind(c.config.DeadLetterQueue, "", dlx, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead-letter queue: %w", err)
		}
	}

	err := ch.ExchangeDeclare(
		c.config.ExchangeName,       // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.config.QueueName,
		c.config.QueueDurable,
		c.config.QueueAutoDelete,
		c.config.QueueExclusive,
		false,
		c.config.queueArgs(),
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(c.config.QueueName, c.config.RoutingKey, c.config.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// PublishJSON marshals v and publishes it with retries
func (c *Client) PublishJSON(ctx context.Context, v any, opts ...PublishOption) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.PublishWithRetry(ctx, newPublishing(body, "application/json", opts))
}

// Qos limits the number of unacknowledged deliveries per consumer
func (c *Client) Qos(prefetchCount int) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.channel.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

// Consume starts consuming the work queue with manual acknowledgement
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	messages, err := c.channel.Consume(c.config.QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
	)

	return messages, nil
}

// Close closes the channel and the connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")
	c.connected.Store(false)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.conn != nil && !c.conn.IsClosed()
}

// PublishWithRetry publishes msg to the exchange, retrying with exponential backoff
func (c *Client) PublishWithRetry(ctx context.Context, msg amqp.Publishing) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.channel.PublishWithContext(ctx, c.config.ExchangeName, c.config.RoutingKey, false, false, msg)
		if err == nil {
			c.logger.Debug("Message published to RabbitMQ",
				slog.String("message_id", msg.MessageId),
				slog.String("type", msg.Type),
				slog.Int("attempt", attempt+1),
			)
			return nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}

		backoffDelay := c.config.backoff(attempt)
		c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
			slog.String("message_id", msg.MessageId),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_after", backoffDelay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(backoffDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("publish canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.String("message_id", msg.MessageId),
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}
