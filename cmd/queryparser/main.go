// Command queryparser parses search queries from its arguments, or from
// standard input one per line, and prints the resulting conditions.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/query"
)

const maxLineSize = 1 << 20

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type jsonLine struct {
	Query     string              `json:"query"`
	Condition query.JSONCondition `json:"condition"`
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("queryparser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "json", "output format: json, text or tree")
	stray := fs.String("stray", "keep", "unmatched brackets: keep or drop")
	maxDepth := fs.Int("max-depth", query.DefaultMaxDepth, "deepest bracket nesting turned into groups")
	logLevel := fs.String("log-level", "warn", "log level for diagnostics on stderr")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	log := logger.New(stderr, *logLevel, "text")
	policy, err := query.ParseStrayBracketPolicy(*stray)
	if err != nil {
		fmt.Fprintf(stderr, "queryparser: %v\n", err)
		return 2
	}
	switch *format {
	case "json", "text", "tree":
	default:
		fmt.Fprintf(stderr, "queryparser: unknown format %q\n", *format)
		return 2
	}

	p := query.New(query.Options{MaxDepth: *maxDepth, StrayBrackets: policy})
	out := bufio.NewWriter(stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	status := 0
	emit := func(q string) {
		cond, err := p.Parse(q)
		if err != nil {
			log.Error("parse failed", "query", q, "error", err)
			status = 1
			return
		}
		switch *format {
		case "json":
			if err := enc.Encode(jsonLine{Query: q, Condition: query.JSONCondition{Condition: cond}}); err != nil {
				log.Error("writing output", "error", err)
				status = 1
			}
		case "text":
			fmt.Fprintln(out, cond.String())
		case "tree":
			fmt.Fprint(out, query.Dump(cond))
		}
	}

	if fs.NArg() > 0 {
		for _, q := range fs.Args() {
			emit(q)
		}
		return status
	}

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lines := 0
	for scanner.Scan() {
		lines++
		emit(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Error("reading stdin", "line", lines+1, "error", err)
		return 1
	}
	log.Debug("input parsed", "lines", lines)
	return status
}
