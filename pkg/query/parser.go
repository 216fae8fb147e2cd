package query

import (
	"fmt"
	"strings"
)

// DefaultMaxDepth bounds bracket nesting when Options.MaxDepth is unset.
const DefaultMaxDepth = 128

// StrayBracketPolicy decides what happens to brackets that never form a
// matched pair.
type StrayBracketPolicy int

const (
	// StrayBracketsKeep leaves unmatched brackets in place as literal text,
	// so they end up inside neighbouring keywords.
	StrayBracketsKeep StrayBracketPolicy = iota
	// StrayBracketsDrop deletes unmatched brackets before tokenization.
	StrayBracketsDrop
)

func (p StrayBracketPolicy) String() string {
	switch p {
	case StrayBracketsKeep:
		return "keep"
	case StrayBracketsDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParseStrayBracketPolicy maps "keep" (or "") and "drop" to a policy.
func ParseStrayBracketPolicy(s string) (StrayBracketPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return StrayBracketsKeep, nil
	case "drop":
		return StrayBracketsDrop, nil
	default:
		return StrayBracketsKeep, fmt.Errorf("unknown stray bracket policy %q", s)
	}
}

// Options tunes the parser. The zero value is ready to use.
type Options struct {
	// MaxDepth is the deepest bracket nesting turned into groups. Deeper
	// brackets are treated as unmatched. Zero or negative means
	// DefaultMaxDepth.
	MaxDepth      int
	StrayBrackets StrayBracketPolicy
}

// Fingerprint identifies the options in cache keys.
func (o Options) Fingerprint() string {
	return fmt.Sprintf("depth=%d;stray=%s", o.MaxDepth, o.StrayBrackets)
}

// Parser parses queries with a fixed set of options. It holds no mutable
// state and is safe for concurrent use.
type Parser struct {
	opts Options
}

// New returns a Parser using opts, with defaults filled in.
func New(opts Options) *Parser {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Parser{opts: opts}
}

// Options returns the effective options of p.
func (p *Parser) Options() Options {
	return p.opts
}

// Parse converts q into a simplified condition tree. Parse accepts any
// input; a non-nil error means an internal invariant broke and wraps
// errors.ErrInternal.
func (p *Parser) Parse(q string) (Condition, error) {
	s := normalizeQuotes(sanitize(q))
	s, phrases := extractPhrases(s)
	s = normalizeSymbols(s)

	tree, err := layerBrackets(s, phrases, p.opts)
	if err != nil {
		return nil, fmt.Errorf("layering query: %w", err)
	}
	c, err := tree.toCondition()
	if err != nil {
		return nil, fmt.Errorf("building condition: %w", err)
	}
	return Simplify(c), nil
}

var defaultParser = New(Options{})

// Parse parses q with default options.
func Parse(q string) (Condition, error) {
	return defaultParser.Parse(q)
}

// MustParse is like Parse but panics on an internal error.
func MustParse(q string) Condition {
	c, err := Parse(q)
	if err != nil {
		panic(fmt.Sprintf("query: Parse(%q): %v", q, err))
	}
	return c
}
