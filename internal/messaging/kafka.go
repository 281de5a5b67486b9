package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
)

// KafkaConsumer reads payment events with one group reader per subscribed topic.
// Offsets are committed when a message is settled.
type KafkaConsumer struct {
	mu      sync.Mutex
	config  config.KafkaConfig
	groupID string
	readers []*kafka.Reader
	topics  []string
	next    int
	closed  bool
}

// NewKafkaConsumer creates a consumer in groupID; an empty groupID uses the configured one.
// No connection is made until Subscribe.
func NewKafkaConsumer(cfg config.KafkaConfig, groupID string) *KafkaConsumer {
	if groupID == "" {
		groupID = cfg.GroupID
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return &KafkaConsumer{
		config:  cfg,
		groupID: groupID,
	}
}

// Subscribe starts a group reader for topic
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConsumerClosed
	}
	if len(c.config.Brokers) == 0 {
		return fmt.Errorf("failed to subscribe to %s: no Kafka brokers configured", topic)
	}
	for _, t := range c.topics {
		if t == topic {
			return nil
		}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.config.Brokers,
		GroupID:  c.groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c.readers = append(c.readers, reader)
	c.topics = append(c.topics, topic)

	log.Printf("Kafka consumer subscribed: topic=%s, group=%s", topic, c.groupID)
	return nil
}

// PollOnce fetches one message, waiting at most the configured poll timeout per reader
func (c *KafkaConsumer) PollOnce(ctx context.Context) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, domain.ErrConsumerClosed
	}
	if len(c.readers) == 0 {
		return nil, nil
	}

	idx := c.next
	c.next = (c.next + 1) % len(c.readers)
	reader := c.readers[idx]

	pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
	defer cancel()

	msg, err := reader.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch from topic %s: %w", c.topics[idx], err)
	}

	commit := func(ctx context.Context) error {
		return reader.CommitMessages(ctx, msg)
	}
	// A rejected message is committed too; Kafka has no per-message drop.
	return NewMessage(msg.Topic, string(msg.Key), msg.Value, commit, commit), nil
}

// Unsubscribe closes every group reader
func (c *KafkaConsumer) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeReaders()
}

func (c *KafkaConsumer) closeReaders() error {
	var firstErr error
	for i, reader := range c.readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close reader for %s: %w", c.topics[i], err)
		}
	}
	c.readers = nil
	c.topics = nil
	c.next = 0
	return firstErr
}

// Alive reports whether the consumer has not been closed.
// Group readers reconnect to brokers on their own.
func (c *KafkaConsumer) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed
}

// Subscriptions returns the subscribed topics
func (c *KafkaConsumer) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.topics...)
}

// Close closes every reader
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.closeReaders()
}

// KafkaPublisher writes outbox payloads to every configured topic, partitioned by key
type KafkaPublisher struct {
	writer *kafka.Writer
	topics []string
}

// NewKafkaPublisher creates a publisher for cfg.Topics
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka publisher needs brokers and topics")
	}

	log.Printf("Kafka publisher initialized: brokers=%v, topics=%v", cfg.Brokers, cfg.Topics)

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		topics: cfg.Topics,
	}, nil
}

// Publish writes body to each topic in a single request
func (p *KafkaPublisher) Publish(ctx context.Context, key string, body []byte, headers map[string]string) error {
	kafkaHeaders := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}

	messages := make([]kafka.Message, 0, len(p.topics))
	for _, topic := range p.topics {
		messages = append(messages, kafka.Message{
			Topic:   topic,
			Key:     []byte(key),
			Value:   body,
			Headers: kafkaHeaders,
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish message %s: %w", key, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
