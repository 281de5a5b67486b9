package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
)

// RabbitMQConsumer pulls payment events from durable queues bound to the ledger exchange.
// Each subscribed topic is a queue of the same name.
type RabbitMQConsumer struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	queues  []string
	next    int
	closed  bool
}

// NewRabbitMQConsumer connects to RabbitMQ and declares the ledger exchange
func NewRabbitMQConsumer(cfg config.RabbitMQConfig) (*RabbitMQConsumer, error) {
	conn, channel, err := dialRabbitMQ(cfg)
	if err != nil {
		return nil, err
	}

	log.Printf("RabbitMQ consumer initialized: exchange=%s, routing_key=%s", cfg.Exchange, cfg.RoutingKey)

	return &RabbitMQConsumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
	}, nil
}

func dialRabbitMQ(cfg config.RabbitMQConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Topic exchange shared by the publisher and every consumer queue
	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return conn, channel, nil
}

// Subscribe declares the topic queue and binds it to the exchange
func (c *RabbitMQConsumer) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConsumerClosed
	}

	queue, err := c.channel.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}

	err = c.channel.QueueBind(
		queue.Name,          // queue name
		c.config.RoutingKey, // routing key
		c.config.Exchange,   // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", topic, err)
	}

	for _, q := range c.queues {
		if q == queue.Name {
			return nil
		}
	}
	c.queues = append(c.queues, queue.Name)

	log.Printf("RabbitMQ consumer subscribed: queue=%s", queue.Name)
	return nil
}

// PollOnce fetches one message, visiting subscribed queues round-robin
func (c *RabbitMQConsumer) PollOnce(ctx context.Context) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, domain.ErrConsumerClosed
	}

	for i := 0; i < len(c.queues); i++ {
		queue := c.queues[(c.next+i)%len(c.queues)]

		delivery, ok, err := c.channel.Get(queue, false)
		if err != nil {
			return nil, fmt.Errorf("failed to get from queue %s: %w", queue, err)
		}
		if !ok {
			continue
		}

		c.next = (c.next + i + 1) % len(c.queues)
		return NewMessage(queue, delivery.MessageId, delivery.Body,
			func(context.Context) error { return delivery.Ack(false) },
			func(context.Context) error { return delivery.Reject(false) },
		), nil
	}

	return nil, nil
}

// Unsubscribe unbinds every subscribed queue
func (c *RabbitMQConsumer) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, queue := range c.queues {
		if err := c.channel.QueueUnbind(queue, c.config.RoutingKey, c.config.Exchange, nil); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to unbind queue %s: %w", queue, err)
		}
	}
	c.queues = nil
	c.next = 0
	return firstErr
}

// Alive reports whether both the connection and the channel are open
func (c *RabbitMQConsumer) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed && !c.conn.IsClosed() && !c.channel.IsClosed()
}

// Subscriptions returns the subscribed queue names
func (c *RabbitMQConsumer) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.queues...)
}

// Close closes the RabbitMQ connection and channel
func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			log.Printf("Error closing channel: %v", err)
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}

// RabbitMQPublisher publishes outbox payloads to the ledger exchange
type RabbitMQPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the ledger exchange
func NewRabbitMQPublisher(cfg config.RabbitMQConfig) (*RabbitMQPublisher, error) {
	conn, channel, err := dialRabbitMQ(cfg)
	if err != nil {
		return nil, err
	}

	log.Printf("RabbitMQ publisher initialized: exchange=%s, routing_key=%s", cfg.Exchange, cfg.PublishKey)

	return &RabbitMQPublisher{
		conn:    conn,
		channel: channel,
		config:  cfg,
	}, nil
}

// Publish sends a persistent JSON message keyed by key
func (p *RabbitMQPublisher) Publish(ctx context.Context, key string, body []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	err := p.channel.PublishWithContext(ctx,
		p.config.Exchange,   // exchange
		p.config.PublishKey, // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    key,
			Headers:      table,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message %s: %w", key, err)
	}
	return nil
}

// Close closes the RabbitMQ connection and channel
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("Error closing channel: %v", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
