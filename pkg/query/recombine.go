package query

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
)

// toCondition converts a layered tree into a condition.
//
// Every node is converted on its own and recorded by position. The
// positions are then written into a skeleton string, for example
// " and 0 or  1  and 2 and ", which goes back through the same tokenizer so
// that a group binds to its neighbours exactly as a plain term would. A
// group contributes only its index; the connective comes from the OR flags
// of the adjacent text segments and defaults to AND.
func (t layeredTree) toCondition() (Condition, error) {
	var skeleton strings.Builder
	parts := make([]Condition, 0, len(t))

	for _, node := range t {
		idx := strconv.Itoa(len(parts))
		switch node.kind {
		case nodeText:
			seg, err := tokenize(node.text)
			if err != nil {
				return nil, err
			}
			skeleton.WriteString(" " + connective(seg.startsWithOr) + " " + idx + " " + connective(seg.endsWithOr) + " ")
			parts = append(parts, seg.condition)
		case nodeGroup, nodeNegatedGroup:
			c, err := node.children.toCondition()
			if err != nil {
				return nil, err
			}
			if node.kind == nodeNegatedGroup {
				c = Not{Condition: c}
			}
			skeleton.WriteString(" " + idx + " ")
			parts = append(parts, c)
		}
	}

	shape, err := tokenize(skeleton.String())
	if err != nil {
		return nil, err
	}
	c, err := substitute(shape.condition, parts)
	if err != nil {
		return nil, err
	}
	return Simplify(c), nil
}

func connective(or bool) string {
	if or {
		return "or"
	}
	return "and"
}

// substitute replaces every index keyword of a skeleton condition with the
// recorded part.
func substitute(c Condition, parts []Condition) (Condition, error) {
	switch c := c.(type) {
	case None:
		return c, nil
	case Keyword:
		i, err := strconv.Atoi(string(c))
		if err != nil || i < 0 || i >= len(parts) {
			return nil, apperrors.Newf(apperrors.ErrInternal, http.StatusInternalServerError,
				"skeleton index %q does not resolve (%d parts)", string(c), len(parts))
		}
		return parts[i], nil
	case Operator:
		conds := make([]Condition, 0, len(c.Conditions))
		for _, child := range c.Conditions {
			sub, err := substitute(child, parts)
			if err != nil {
				return nil, err
			}
			conds = append(conds, sub)
		}
		return Operator{Op: c.Op, Conditions: conds}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInternal, http.StatusInternalServerError,
			"unexpected %T in skeleton condition", c)
	}
}
