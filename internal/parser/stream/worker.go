// Package stream parses queries arriving on a Kafka topic and publishes the
// resulting conditions to a results topic.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/resilience"
	"github.com/google/uuid"
)

// Message statuses, used as the "status" label of StreamMessagesTotal.
const (
	StatusParsed        = "parsed"
	StatusMalformed     = "malformed"
	StatusPublishFailed = "publish_failed"
)

// ParseRequest is the JSON payload consumed from the requests topic.
type ParseRequest struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// ParseResult is the JSON payload published to the results topic. Exactly
// one of Condition and Error is set.
type ParseResult struct {
	ID        string               `json:"id"`
	Query     string               `json:"query"`
	Condition *query.JSONCondition `json:"condition,omitempty"`
	Stats     *query.Summary       `json:"stats,omitempty"`
	CacheHit  bool                 `json:"cache_hit"`
	Error     string               `json:"error,omitempty"`
	ParsedAt  time.Time            `json:"parsed_at"`
}

// Parser parses a single query. *parser.Service implements it.
type Parser interface {
	Parse(ctx context.Context, source, q string) (parser.Outcome, error)
}

// Publisher sends an event to the results topic. *kafka.Producer implements
// it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Worker turns parse requests into parse results.
type Worker struct {
	parser    Parser
	publisher Publisher
	retry     resilience.RetryConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewWorker creates a Worker. Publishing is retried according to retry; m
// may be nil.
func NewWorker(p Parser, pub Publisher, retry resilience.RetryConfig, m *metrics.Metrics) *Worker {
	return &Worker{
		parser:    p,
		publisher: pub,
		retry:     retry,
		metrics:   m,
		logger:    slog.Default().With("component", "parse-worker"),
	}
}

// Handler returns the kafka.MessageHandler that drives the worker.
// Malformed messages are logged and committed. A result that cannot be
// published leaves the message uncommitted.
func (w *Worker) Handler() kafka.MessageHandler {
	return w.handle
}

func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	log := logger.FromContext(ctx).With("component", "parse-worker")
	req, err := kafka.DecodeJSON[ParseRequest](msg.Value)
	if err != nil {
		log.Error("failed to decode parse request",
			"error", err,
			"key", string(msg.Key),
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		w.count(StatusMalformed)
		return nil
	}
	if req.ID == "" {
		req.ID = string(msg.Key)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	result := ParseResult{ID: req.ID, Query: req.Query}
	out, err := w.parser.Parse(ctx, metrics.SourceStream, req.Query)
	if err != nil {
		result.Error = err.Error()
	} else {
		stats := out.Summary
		result.Condition = &query.JSONCondition{Condition: out.Condition}
		result.Stats = &stats
		result.CacheHit = out.CacheHit
	}
	result.ParsedAt = time.Now().UTC()

	event := kafka.Event{Key: req.ID, Value: result}
	if id := logger.RequestID(ctx); id != "" {
		event.Headers = map[string]string{kafka.HeaderRequestID: id}
	}
	err = resilience.Retry(ctx, "publish parse result", w.retry, func() error {
		return w.publisher.Publish(ctx, event)
	})
	if err != nil {
		w.count(StatusPublishFailed)
		return fmt.Errorf("publishing result %s: %w", req.ID, err)
	}

	w.count(StatusParsed)
	log.Debug("parse request handled", "id", req.ID, "failed", result.Error != "")
	return nil
}

func (w *Worker) count(status string) {
	if w.metrics != nil {
		w.metrics.StreamMessagesTotal.WithLabelValues(status).Inc()
	}
}
