// Package batch parses many queries concurrently with a bounded worker
// count, keeping results in request order.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Parser parses a single query. *parser.Service implements it.
type Parser interface {
	Parse(ctx context.Context, source, q string) (parser.Outcome, error)
}

// Result is the outcome for the query at Index. Err is set when that query
// alone failed.
type Result struct {
	Index   int
	Outcome parser.Outcome
	Err     error
}

type Runner struct {
	parser      Parser
	maxSize     int
	concurrency int
	logger      *slog.Logger
}

// NewRunner creates a Runner that accepts up to maxSize queries and parses at
// most concurrency of them at once.
func NewRunner(p Parser, maxSize, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		parser:      p,
		maxSize:     maxSize,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "batch-runner"),
	}
}

// Run parses queries and returns one Result per query in the same order.
// Per-query failures are reported in the results; the returned error is
// reserved for oversized batches and cancellation.
func (r *Runner) Run(ctx context.Context, queries []string) ([]Result, error) {
	if r.maxSize > 0 && len(queries) > r.maxSize {
		return nil, apperrors.Newf(apperrors.ErrBatchTooLarge, http.StatusBadRequest,
			"batch has %d queries, limit is %d", len(queries), r.maxSize)
	}
	results := make([]Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := r.parser.Parse(gctx, metrics.SourceBatch, q)
			results[i] = Result{Index: i, Outcome: out, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parsing batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parsing batch: %w", err)
	}
	r.logger.Debug("batch parsed", "queries", len(queries))
	return results, nil
}
