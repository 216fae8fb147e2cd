package parser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/querylog"
	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

type memoryRecorder struct {
	mu      sync.Mutex
	entries []querylog.Entry
}

func (m *memoryRecorder) Record(e querylog.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

type stubCache struct {
	cond query.Condition
	hit  bool
	err  error
}

func (s stubCache) GetOrParse(context.Context, string) (query.Condition, bool, error) {
	return s.cond, s.hit, s.err
}

func TestServiceParse(t *testing.T) {
	rec := &memoryRecorder{}
	svc := NewService(query.New(query.Options{}), 100,
		WithRecorder(rec),
		WithMetrics(metrics.NewWithRegistry(prometheus.NewRegistry())),
	)
	ctx := logger.WithRequestID(context.Background(), "req-7")

	out, err := svc.Parse(ctx, metrics.SourceHTTP, `go -"java 8"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := query.And(query.Keyword("go"), query.Negate(query.PhraseKeyword("java 8")))
	if out.Condition.String() != want.String() {
		t.Errorf("condition = %s, want %s", out.Condition, want)
	}
	if out.Summary.Nodes != 4 || out.CacheHit {
		t.Errorf("outcome = %+v", out)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.RequestID != "req-7" || e.Source != metrics.SourceHTTP || e.Nodes != 4 || e.Error != "" {
		t.Errorf("entry = %+v", e)
	}
	if !strings.Contains(string(e.Condition), `"phrase"`) {
		t.Errorf("entry condition = %s", e.Condition)
	}
}

func TestServiceParseSpan(t *testing.T) {
	svc := NewService(query.New(query.Options{}), 100)
	ctx, root := tracing.Start(context.Background(), "test")

	if _, err := svc.Parse(ctx, metrics.SourceHTTP, "a or b"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	kids := root.Children()
	if len(kids) != 1 || kids[0].Name != "parse" {
		t.Fatalf("children = %v", kids)
	}
	if v, _ := kids[0].Attr("nodes"); v != 3 {
		t.Errorf("nodes attr = %v, want 3", v)
	}
	if v, _ := kids[0].Attr("source"); v != metrics.SourceHTTP {
		t.Errorf("source attr = %v", v)
	}
}

func TestServiceParseEmpty(t *testing.T) {
	svc := NewService(query.New(query.Options{}), 100)
	out, err := svc.Parse(context.Background(), metrics.SourceBatch, " 　 ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := out.Condition.(query.None); !ok || out.Summary.Nodes != 0 {
		t.Errorf("outcome = %+v, want an empty condition", out)
	}
}

func TestServiceQueryTooLong(t *testing.T) {
	rec := &memoryRecorder{}
	svc := NewService(query.New(query.Options{}), 5, WithRecorder(rec))

	if _, err := svc.Parse(context.Background(), metrics.SourceHTTP, "検索検索検索"); !errors.Is(err, apperrors.ErrQueryTooLong) {
		t.Errorf("err = %v, want ErrQueryTooLong", err)
	} else if apperrors.HTTPStatusCode(err) != 400 {
		t.Errorf("status = %d, want 400", apperrors.HTTPStatusCode(err))
	}
	if _, err := svc.Parse(context.Background(), metrics.SourceHTTP, "検索検索検"); err != nil {
		t.Errorf("five characters rejected: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Errorf("recorded %d entries, want 1", len(rec.entries))
	}
}

func TestServiceNoLimit(t *testing.T) {
	svc := NewService(query.New(query.Options{}), 0)
	if _, err := svc.Parse(context.Background(), metrics.SourceHTTP, strings.Repeat("a ", 10000)); err != nil {
		t.Errorf("Parse: %v", err)
	}
}

func TestServiceUsesCache(t *testing.T) {
	svc := NewService(query.New(query.Options{}), 100, WithCache(stubCache{cond: query.Keyword("cached"), hit: true}))
	out, err := svc.Parse(context.Background(), metrics.SourceHTTP, "anything")
	if err != nil {
		t.Fatal(err)
	}
	if out.Condition != query.Keyword("cached") || !out.CacheHit {
		t.Errorf("outcome = %+v", out)
	}
}

func TestServiceCacheError(t *testing.T) {
	rec := &memoryRecorder{}
	svc := NewService(query.New(query.Options{}), 100,
		WithCache(stubCache{err: apperrors.ErrInternal}),
		WithRecorder(rec),
	)
	_, err := svc.Parse(context.Background(), metrics.SourceStream, "a")
	if !errors.Is(err, apperrors.ErrInternal) {
		t.Fatalf("err = %v, want ErrInternal", err)
	}
	if len(rec.entries) != 1 || rec.entries[0].Error == "" || rec.entries[0].Condition != nil {
		t.Errorf("entries = %+v", rec.entries)
	}
}

func TestSelfTest(t *testing.T) {
	for _, opts := range []query.Options{{}, {StrayBrackets: query.StrayBracketsDrop}} {
		svc := NewService(query.New(opts), 0)
		if got := svc.SelfTest()(context.Background()); got.Status != health.StatusUp {
			t.Errorf("SelfTest with %+v = %+v", opts, got)
		}
	}
}
