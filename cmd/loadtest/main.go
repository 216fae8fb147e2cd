// Command loadtest drives a running parserd with a fixed mix of advanced
// queries and reports throughput, latency percentiles and the cache hit rate.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	`golang generics`,
	`"type parameters" -java`,
	`(rust or go) systems programming`,
	`kubernetes and (helm or kustomize) -"docker swarm"`,
	`-deprecated api (v2 or v3)`,
	`"distributed tracing" or opentelemetry`,
	`((a or b) (c or -d)) e`,
	`検索１ -検索２ or "検索３"`,
	`（全角 OR 半角） －除外`,
	`postgres "connection pool" -(mysql or sqlite)`,
	`unbalanced (bracket`,
	`redis or memcached or "in memory" cache`,
	`"unterminated phrase`,
	`kafka consumer -group`,
	`   `,
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	batchSize   int
	queries     []string
}

type sample struct {
	latency  time.Duration
	status   int
	cacheHit bool
}

// recorder collects one sample per completed request. Transport failures
// carry no latency and are only counted.
type recorder struct {
	mu       sync.Mutex
	samples  []sample
	failures int
}

func (r *recorder) add(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recorder) fail() {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
}

type summary struct {
	total, ok, failed, hits int
	rps                     float64
	latencies               []time.Duration // sorted
	statuses                map[int]int
}

func (r *recorder) summarize(elapsed time.Duration) summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := summary{
		total:     len(r.samples) + r.failures,
		failed:    r.failures,
		latencies: make([]time.Duration, 0, len(r.samples)),
		statuses:  make(map[int]int),
	}
	for _, smp := range r.samples {
		s.latencies = append(s.latencies, smp.latency)
		s.statuses[smp.status]++
		if smp.status >= 200 && smp.status < 300 {
			s.ok++
		} else {
			s.failed++
		}
		if smp.cacheHit {
			s.hits++
		}
	}
	slices.Sort(s.latencies)
	if elapsed > 0 {
		s.rps = float64(s.total) / elapsed.Seconds()
	}
	return s
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of parserd")
	fs.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	fs.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	fs.IntVar(&opts.batchSize, "batch", 0, "queries per request to /api/v1/parse/batch; 0 sends single parses")
	queryFile := fs.String("queries", "", "file with one query per line, replacing the built-in mix")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts.queries = defaultQueries
	if *queryFile != "" {
		qs, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		opts.queries = qs
	}
	if opts.concurrency <= 0 || len(opts.queries) == 0 {
		fmt.Fprintln(os.Stderr, "concurrency and the query list must be non-empty")
		return 2
	}

	fmt.Fprintf(stdout, "target %s, %d workers for %s, %d queries", opts.baseURL, opts.concurrency, opts.duration, len(opts.queries))
	if opts.batchSize > 0 {
		fmt.Fprintf(stdout, ", batches of %d", opts.batchSize)
	}
	fmt.Fprintln(stdout)

	start := time.Now()
	rec := load(context.Background(), opts)
	s := rec.summarize(time.Since(start))
	printSummary(stdout, s)
	if s.total == 0 {
		fmt.Fprintln(stdout, "no requests completed; is parserd running?")
		return 1
	}
	return 0
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query file: %w", err)
	}
	defer f.Close()

	var qs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		qs = append(qs, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	return qs, nil
}

func load(parent context.Context, opts options) *recorder {
	ctx, cancel := context.WithTimeout(parent, opts.duration)
	defer cancel()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	rec := &recorder{}

	var g errgroup.Group
	for w := range opts.concurrency {
		g.Go(func() error {
			next := w
			for ctx.Err() == nil {
				req, err := buildRequest(ctx, opts, &next)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						rec.fail()
					}
					continue
				}
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				rec.add(sample{latency: time.Since(start), status: resp.StatusCode, cacheHit: cacheHit(body)})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return rec
}

// buildRequest returns the next single or batch request, advancing *next
// through the query list.
func buildRequest(ctx context.Context, opts options, next *int) (*http.Request, error) {
	pick := func() string {
		q := opts.queries[*next%len(opts.queries)]
		*next++
		return q
	}
	if opts.batchSize <= 0 {
		u := opts.baseURL + "/api/v1/parse?q=" + url.QueryEscape(pick())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	batch := make([]string, opts.batchSize)
	for i := range batch {
		batch[i] = pick()
	}
	body, err := json.Marshal(map[string][]string{"queries": batch})
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+"/api/v1/parse/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// cacheHit reports whether a single-parse response came from the condition
// cache. Batch responses never count.
func cacheHit(body []byte) bool {
	var resp struct {
		CacheHit bool `json:"cache_hit"`
	}
	return json.Unmarshal(body, &resp) == nil && resp.CacheHit
}

func printSummary(w io.Writer, s summary) {
	fmt.Fprintf(w, "\nrequests %d  ok %d  failed %d\n", s.total, s.ok, s.failed)
	if s.total > 0 {
		fmt.Fprintf(w, "throughput %.1f req/s  error rate %.2f%%  cache hits %.2f%%\n",
			s.rps, pct(s.failed, s.total), pct(s.hits, s.total))
	}

	if n := len(s.latencies); n > 0 {
		mean := meanOf(s.latencies)
		fmt.Fprintf(w, "\nlatency min %s  mean %s  max %s  stddev %s\n",
			s.latencies[0], mean, s.latencies[n-1], stddev(s.latencies, mean))
		var line strings.Builder
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(&line, "  p%.0f %s", p, percentile(s.latencies, p))
		}
		fmt.Fprintln(w, strings.TrimSpace(line.String()))
	}

	if len(s.statuses) > 0 {
		codes := make([]int, 0, len(s.statuses))
		for code := range s.statuses {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		fmt.Fprintln(w, "\nstatus codes")
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, s.statuses[code])
		}
	}
}

func pct(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

func meanOf(ds []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

func stddev(ds []time.Duration, mean time.Duration) time.Duration {
	var sq float64
	for _, d := range ds {
		diff := float64(d - mean)
		sq += diff * diff
	}
	return time.Duration(math.Sqrt(sq / float64(len(ds))))
}

// percentile uses the nearest-rank method on sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
