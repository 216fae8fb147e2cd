// Package query parses free-text advanced search queries into a canonical
// boolean condition tree.
//
// The accepted syntax is the familiar web search one: whitespace joins terms
// with AND, the keywords AND and OR may be written explicitly (ASCII or
// full-width letters, any case), double quotes mark an exact phrase, a
// leading "-" negates a term, phrase, or parenthesized group, and
// parentheses nest arbitrarily. Malformed input never produces an error;
// every irregularity resolves to a documented fallback and the worst case
// result is None.
//
//	c, err := query.Parse(`golang (generics or "type parameters") -java`)
//	// And[Keyword(golang), Or[Keyword(generics), PhraseKeyword(type parameters)], Not(Keyword(java))]
package query

import (
	"strings"
)

// Op is the boolean connective of an Operator node.
type Op int

const (
	OpAnd Op = iota
	OpOr
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return "unknown"
	}
}

// Condition is a node of the parsed query tree. The set of implementations
// is closed: None, Keyword, PhraseKeyword, Not and Operator.
type Condition interface {
	// String renders the condition back into query syntax.
	String() string
	isCondition()
}

// None is the blank condition. Simplify removes it wherever it is not the
// whole tree.
type None struct{}

// Keyword is a bare search term.
type Keyword string

// PhraseKeyword is an exact phrase that was quoted in the query.
type PhraseKeyword string

// Not negates its inner condition.
type Not struct {
	Condition Condition
}

// Operator joins two or more conditions with the same connective.
type Operator struct {
	Op         Op
	Conditions []Condition
}

func (None) isCondition()          {}
func (Keyword) isCondition()       {}
func (PhraseKeyword) isCondition() {}
func (Not) isCondition()           {}
func (Operator) isCondition()      {}

// And builds an AND operator over conds.
func And(conds ...Condition) Operator {
	return Operator{Op: OpAnd, Conditions: conds}
}

// Or builds an OR operator over conds.
func Or(conds ...Condition) Operator {
	return Operator{Op: OpOr, Conditions: conds}
}

// Negate wraps c in Not.
func Negate(c Condition) Not {
	return Not{Condition: c}
}

func (None) String() string { return "" }

func (k Keyword) String() string { return string(k) }

func (p PhraseKeyword) String() string { return `"` + string(p) + `"` }

func (n Not) String() string {
	if n.Condition == nil {
		return ""
	}
	return "-" + groupString(n.Condition)
}

func (o Operator) String() string {
	sep := " "
	if o.Op == OpOr {
		sep = " OR "
	}
	parts := make([]string, 0, len(o.Conditions))
	for _, c := range o.Conditions {
		if c == nil {
			continue
		}
		s := groupString(c)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep)
}

// groupString renders c, parenthesizing operators so that precedence
// survives a round trip through Parse.
func groupString(c Condition) string {
	if op, ok := c.(Operator); ok && len(op.Conditions) > 1 {
		return "(" + op.String() + ")"
	}
	return c.String()
}
