package query

import (
	"fmt"
	"strings"
)

// Walk visits c and its descendants in depth-first pre-order. Returning
// false from fn skips the children of the node just visited.
func Walk(c Condition, fn func(Condition) bool) {
	if c == nil || !fn(c) {
		return
	}
	switch c := c.(type) {
	case Not:
		Walk(c.Condition, fn)
	case Operator:
		for _, child := range c.Conditions {
			Walk(child, fn)
		}
	}
}

// Summary counts the nodes of a condition tree.
type Summary struct {
	Nodes     int `json:"nodes"`
	Depth     int `json:"depth"`
	Keywords  int `json:"keywords"`
	Phrases   int `json:"phrases"`
	Negations int `json:"negations"`
	Operators int `json:"operators"`
}

// Summarize returns node counts and the depth of c. None counts as an
// empty tree.
func Summarize(c Condition) Summary {
	var s Summary
	Walk(c, func(n Condition) bool {
		switch n.(type) {
		case None:
			return false
		case Keyword:
			s.Keywords++
		case PhraseKeyword:
			s.Phrases++
		case Not:
			s.Negations++
		case Operator:
			s.Operators++
		}
		s.Nodes++
		return true
	})
	s.Depth = depth(c)
	return s
}

func depth(c Condition) int {
	switch c := c.(type) {
	case nil, None:
		return 0
	case Not:
		return 1 + depth(c.Condition)
	case Operator:
		deepest := 0
		for _, child := range c.Conditions {
			deepest = max(deepest, depth(child))
		}
		return 1 + deepest
	default:
		return 1
	}
}

// Dump renders c as an indented tree, one node per line.
func Dump(c Condition) string {
	var b strings.Builder
	dump(&b, c, 0)
	return b.String()
}

func dump(b *strings.Builder, c Condition, level int) {
	indent := strings.Repeat("  ", level)
	switch c := c.(type) {
	case nil, None:
		fmt.Fprintf(b, "%sNone\n", indent)
	case Keyword:
		fmt.Fprintf(b, "%sKeyword(%q)\n", indent, string(c))
	case PhraseKeyword:
		fmt.Fprintf(b, "%sPhraseKeyword(%q)\n", indent, string(c))
	case Not:
		fmt.Fprintf(b, "%sNot\n", indent)
		dump(b, c.Condition, level+1)
	case Operator:
		fmt.Fprintf(b, "%s%s\n", indent, strings.ToUpper(c.Op.String()))
		for _, child := range c.Conditions {
			dump(b, child, level+1)
		}
	}
}
