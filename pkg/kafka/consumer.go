// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer hands each message to a pluggable MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// HeaderRequestID carries the originating request ID across the broker.
const HeaderRequestID = "X-Request-ID"

// Message is a consumed record with its headers flattened to strings.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
}

// MessageHandler is a callback invoked for each Kafka message. Returning an
// error makes the consumer hand the same message over again after a pause;
// nothing later on the partition is processed until it succeeds.
type MessageHandler func(ctx context.Context, msg Message) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

const (
	redeliverInitial = 500 * time.Millisecond
	redeliverMax     = 30 * time.Second
)

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	handler MessageHandler

	redeliverInitial time.Duration
	redeliverMax     time.Duration
}

// NewConsumer creates a Consumer for the given topic and handler. A new
// consumer group starts from the earliest retained offset so that queued
// parse requests are not skipped.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})

	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:           r,
		logger:           slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler:          handler,
		redeliverInitial: redeliverInitial,
		redeliverMax:     redeliverMax,
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		m := fromKafka(msg)
		msgCtx := ctx
		if id := m.Headers[HeaderRequestID]; id != "" {
			msgCtx = logger.WithRequestID(ctx, id)
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if !c.process(msgCtx, m) {
			c.logger.Info("consumer stopping", "reason", ctx.Err(), "uncommitted_offset", msg.Offset)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler on m until it succeeds, pausing between attempts
// with a doubling delay. It reports false when ctx ends first, in which case
// m must not be committed.
func (c *Consumer) process(ctx context.Context, m Message) bool {
	delay := c.redeliverInitial
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, m)
		if err == nil {
			return true
		}
		c.logger.Error("failed to process message",
			"partition", m.Partition,
			"offset", m.Offset,
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		delay = min(delay*2, c.redeliverMax)
	}
}

// Lag returns the reader's most recent consumer lag.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func fromKafka(msg kafka.Message) Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
