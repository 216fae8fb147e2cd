// Package parser is the application layer shared by the HTTP API, the batch
// endpoint and the Kafka worker. It enforces input limits, consults the
// condition cache, records metrics and writes the query log.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/querylog"
	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/tracing"
	"github.com/google/uuid"
)

// Cache resolves a query through a cache. *cache.ConditionCache implements
// it.
type Cache interface {
	GetOrParse(ctx context.Context, q string) (query.Condition, bool, error)
}

// Recorder accepts query log entries. *querylog.Recorder implements it.
type Recorder interface {
	Record(e querylog.Entry)
}

// Outcome is the result of parsing one query.
type Outcome struct {
	Query     string
	Condition query.Condition
	Summary   query.Summary
	CacheHit  bool
	Duration  time.Duration
}

type Service struct {
	parser         *query.Parser
	maxQueryLength int
	cache          Cache
	recorder       Recorder
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService creates a Service. maxQueryLength counts characters; zero or
// negative disables the limit.
func NewService(p *query.Parser, maxQueryLength int, opts ...Option) *Service {
	s := &Service{
		parser:         p,
		maxQueryLength: maxQueryLength,
		logger:         slog.Default().With("component", "parse-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parser returns the underlying query parser.
func (s *Service) Parser() *query.Parser {
	return s.parser
}

// Parse parses q on behalf of source, one of the metrics.Source constants.
// Queries over the length limit fail with errors.ErrQueryTooLong.
func (s *Service) Parse(ctx context.Context, source, q string) (Outcome, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "parse")
	defer span.End()
	span.SetAttr("source", source)
	if n := utf8.RuneCountInString(q); s.maxQueryLength > 0 && n > s.maxQueryLength {
		s.observe(source, metrics.ResultRejected)
		return Outcome{}, apperrors.Newf(apperrors.ErrQueryTooLong, http.StatusBadRequest,
			"query has %d characters, limit is %d", n, s.maxQueryLength)
	}

	var (
		cond query.Condition
		hit  bool
		err  error
	)
	if s.cache != nil {
		cond, hit, err = s.cache.GetOrParse(ctx, q)
	} else {
		cond, err = s.parser.Parse(q)
		if err == nil && s.metrics != nil {
			s.metrics.ParseDuration.Observe(time.Since(start).Seconds())
		}
	}
	elapsed := time.Since(start)
	span.SetAttr("cache_hit", hit)
	if err != nil {
		s.observe(source, metrics.ResultError)
		logger.FromContext(ctx).Error("parse failed", "source", source, "query", q, "error", err)
		s.record(ctx, source, q, nil, query.Summary{}, false, elapsed, err)
		return Outcome{}, fmt.Errorf("parsing query: %w", err)
	}

	summary := query.Summarize(cond)
	result := metrics.ResultOK
	if summary.Nodes == 0 {
		result = metrics.ResultEmpty
	}
	s.observe(source, result)
	span.SetAttr("nodes", summary.Nodes)
	if s.metrics != nil {
		s.metrics.ConditionNodes.Observe(float64(summary.Nodes))
	}
	s.record(ctx, source, q, cond, summary, hit, elapsed, nil)

	return Outcome{
		Query:     q,
		Condition: cond,
		Summary:   summary,
		CacheHit:  hit,
		Duration:  elapsed,
	}, nil
}

func (s *Service) observe(source, result string) {
	if s.metrics != nil {
		s.metrics.ParseRequestsTotal.WithLabelValues(source, result).Inc()
	}
}

func (s *Service) record(ctx context.Context, source, q string, cond query.Condition, summary query.Summary, hit bool, elapsed time.Duration, parseErr error) {
	if s.recorder == nil {
		return
	}
	e := querylog.Entry{
		ID:         uuid.NewString(),
		RequestID:  logger.RequestID(ctx),
		Source:     source,
		Query:      q,
		Nodes:      summary.Nodes,
		Depth:      summary.Depth,
		CacheHit:   hit,
		DurationUS: elapsed.Microseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if parseErr != nil {
		e.Error = parseErr.Error()
	}
	if cond != nil {
		data, err := json.Marshal(query.JSONCondition{Condition: cond})
		if err != nil {
			s.logger.Error("encoding condition for query log", "error", err)
		} else {
			e.Condition = data
		}
	}
	s.recorder.Record(e)
}

// selfTestQuery exercises phrases, groups, negation and both operators.
const selfTestQuery = `golang (検索 or "type parameters") -java -"old syntax"`

var selfTestWant = query.And(
	query.Keyword("golang"),
	query.Or(query.Keyword("検索"), query.PhraseKeyword("type parameters")),
	query.Negate(query.Keyword("java")),
	query.Negate(query.PhraseKeyword("old syntax")),
)

// SelfTest returns a health check that parses a fixed query and compares
// the result with the known answer.
func (s *Service) SelfTest() health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		cond, err := s.parser.Parse(selfTestQuery)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		if got, want := cond.String(), selfTestWant.String(); got != want {
			return health.ComponentHealth{
				Status:  health.StatusDown,
				Message: fmt.Sprintf("self-test parsed %q, want %q", got, want),
			}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
