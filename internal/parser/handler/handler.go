package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser/batch"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/querylog"
	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/tracing"
)

const (
	maxBatchBody       = 1 << 20
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

type Parser interface {
	Parse(ctx context.Context, source, q string) (parser.Outcome, error)
}

type CacheAdmin interface {
	Stats() (hits, misses int64)
	Size(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context) (int64, error)
}

type QueryLog interface {
	Recent(ctx context.Context, limit int) ([]querylog.Entry, error)
}

// Handler serves the parse API. cache and queryLog are nil when the
// corresponding backend is disabled.
type Handler struct {
	parser   Parser
	batch    *batch.Runner
	cache    CacheAdmin
	queryLog QueryLog
	logger   *slog.Logger
}

func New(p Parser, runner *batch.Runner, cache CacheAdmin, queryLog QueryLog) *Handler {
	return &Handler{
		parser:   p,
		batch:    runner,
		cache:    cache,
		queryLog: queryLog,
		logger:   slog.Default().With("component", "parse-handler"),
	}
}

type parseResponse struct {
	Query     string              `json:"query"`
	Condition query.JSONCondition `json:"condition"`
	Canonical string              `json:"canonical"`
	Stats     query.Summary       `json:"stats"`
	CacheHit  bool                `json:"cache_hit"`
	LatencyMs float64             `json:"latency_ms"`
	Tree      string              `json:"tree,omitempty"`
}

// Parse handles GET /api/v1/parse?q=...&format=tree.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "http.parse")
	defer func() {
		span.End()
		span.Log(ctx, h.logger)
	}()
	values := r.URL.Query()

	if !values.Has("q") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	format := values.Get("format")
	if format != "" && format != "json" && format != "tree" {
		h.writeError(w, http.StatusBadRequest, "format must be json or tree")
		return
	}
	q := values.Get("q")

	out, err := h.parser.Parse(ctx, metrics.SourceHTTP, q)
	if err != nil {
		h.writeFailure(ctx, w, err)
		return
	}

	resp := parseResponse{
		Query:     q,
		Condition: query.JSONCondition{Condition: out.Condition},
		Canonical: out.Condition.String(),
		Stats:     out.Summary,
		CacheHit:  out.CacheHit,
		LatencyMs: millis(time.Since(start)),
	}
	if format == "tree" {
		resp.Tree = query.Dump(out.Condition)
	}
	logger.FromContext(ctx).Info("query parsed",
		"query", q,
		"nodes", out.Summary.Nodes,
		"cache_hit", out.CacheHit,
		"latency_ms", resp.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Queries []string `json:"queries"`
}

type batchItem struct {
	Index     int                  `json:"index"`
	Query     string               `json:"query"`
	Condition *query.JSONCondition `json:"condition,omitempty"`
	Stats     *query.Summary       `json:"stats,omitempty"`
	CacheHit  bool                 `json:"cache_hit"`
	Error     string               `json:"error,omitempty"`
}

type batchResponse struct {
	Results   []batchItem `json:"results"`
	Count     int         `json:"count"`
	Failed    int         `json:"failed"`
	LatencyMs float64     `json:"latency_ms"`
}

// Batch handles POST /api/v1/parse/batch.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "http.batch")
	defer func() {
		span.End()
		span.Log(ctx, h.logger)
	}()

	var req batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			h.writeError(w, http.StatusBadRequest, "request body is required")
		default:
			h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return
	}

	results, err := h.batch.Run(ctx, req.Queries)
	if err != nil {
		h.writeFailure(ctx, w, err)
		return
	}

	resp := batchResponse{Results: make([]batchItem, len(results)), Count: len(results)}
	for i, res := range results {
		item := batchItem{Index: res.Index, Query: req.Queries[i]}
		if res.Err != nil {
			item.Error = clientMessage(res.Err)
			resp.Failed++
		} else {
			stats := res.Outcome.Summary
			item.Condition = &query.JSONCondition{Condition: res.Outcome.Condition}
			item.Stats = &stats
			item.CacheHit = res.Outcome.CacheHit
		}
		resp.Results[i] = item
	}
	resp.LatencyMs = millis(time.Since(start))
	logger.FromContext(ctx).Info("batch parsed",
		"count", resp.Count,
		"failed", resp.Failed,
		"latency_ms", resp.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	resp := map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	}
	if keys, err := h.cache.Size(r.Context()); err != nil {
		h.logger.Warn("counting cache keys failed", "error", err)
	} else {
		resp["keys"] = keys
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// RecentQueries handles GET /api/v1/queries/recent?limit=n.
func (h *Handler) RecentQueries(w http.ResponseWriter, r *http.Request) {
	if h.queryLog == nil {
		h.writeError(w, http.StatusServiceUnavailable, "query log is disabled")
		return
	}

	limit := defaultRecentLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxRecentLimit)
	}

	entries, err := h.queryLog.Recent(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing recent queries failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing recent queries failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"queries": entries, "count": len(entries)})
}

// writeFailure maps err to its HTTP status. Server-side failures are logged
// and reported without detail.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("request failed", "status", status, "error", err)
	}
	h.writeError(w, status, clientMessage(err))
}

func clientMessage(err error) string {
	if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
		return "parse failed"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
