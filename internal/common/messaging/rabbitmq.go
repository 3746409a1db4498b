// Package messaging wraps a RabbitMQ connection for JSON publishing and
// consuming over durable queues.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"submission-workflow/internal/common/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Connection holds the RabbitMQ connection and channel.
type Connection struct {
	conn    *amqp.Connection
	Channel Channel
}

// Dial establishes a connection to RabbitMQ and opens one channel.
func Dial(url string, log logger.Logger) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	log.Info("connected to RabbitMQ", nil)
	return &Connection{conn: conn, Channel: ch}, nil
}

// IsClosed reports whether the underlying connection is gone.
func (c *Connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

func (c *Connection) Close() error {
	if ch, ok := c.Channel.(*amqp.Channel); ok && ch != nil {
		_ = ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Publisher publishes JSON bodies to durable queues, declaring each queue
// the first time it is used.
type Publisher struct {
	ch       Channel
	mu       sync.Mutex
	declared map[string]bool
}

func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch, declared: make(map[string]bool)}
}

func (p *Publisher) declare(queue string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared[queue] {
		return nil
	}
	if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	p.declared[queue] = true
	return nil
}

// PublishJSON marshals v and publishes it persistently to queue. messageID
// becomes the AMQP message id so consumers can drop redeliveries.
func (p *Publisher) PublishJSON(ctx context.Context, queue, messageID string, v interface{}) error {
	if err := p.declare(queue); err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    messageID,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// ErrDiscard tells the consumer to drop a message without requeueing it.
var ErrDiscard = errors.New("messaging: discard message")

// HandlerFunc processes one message body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer delivers queue messages to a handler with manual acks: success
// acks, ErrDiscard rejects, any other error requeues.
type Consumer struct {
	ch      Channel
	queue   string
	handler HandlerFunc
	logger  logger.Logger
}

func NewConsumer(ch Channel, queue string, handler HandlerFunc, log logger.Logger) *Consumer {
	return &Consumer{ch: ch, queue: queue, handler: handler, logger: log}
}

// Start declares the queue and consumes until ctx is done or the delivery
// channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started", map[string]interface{}{"queue": c.queue})

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("consumer stopped", map[string]interface{}{"queue": c.queue})
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("consumer channel closed", map[string]interface{}{"queue": c.queue})
					return
				}
				c.process(ctx, msg)
			}
		}
	}()
	return nil
}

func (c *Consumer) process(ctx context.Context, msg amqp.Delivery) {
	err := c.handler(ctx, msg.Body)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, ErrDiscard):
		c.logger.Warn("message discarded", map[string]interface{}{
			"queue":     c.queue,
			"messageId": msg.MessageId,
			"error":     err.Error(),
		})
		_ = msg.Nack(false, false)
	default:
		c.logger.Error("message handling failed", map[string]interface{}{
			"queue":     c.queue,
			"messageId": msg.MessageId,
			"error":     err.Error(),
		})
		_ = msg.Nack(false, !msg.Redelivered)
	}
}
