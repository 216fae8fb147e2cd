package query

// Simplify rewrites c into canonical form, bottom-up:
//
//   - blank keywords and phrases become None
//   - Not(None) becomes None and Not(Not(x)) becomes x
//   - operators drop None children, collapse to their only child, and splice
//     in children that carry the same connective
//
// Simplify is idempotent. A nil condition is treated as None.
func Simplify(c Condition) Condition {
	switch c := c.(type) {
	case nil, None:
		return None{}
	case Keyword:
		if isBlank(string(c)) {
			return None{}
		}
		return c
	case PhraseKeyword:
		if isBlank(string(c)) {
			return None{}
		}
		return c
	case Not:
		switch inner := Simplify(c.Condition).(type) {
		case None:
			return None{}
		case Not:
			return inner.Condition
		default:
			return Not{Condition: inner}
		}
	case Operator:
		return simplifyOperator(c)
	default:
		return None{}
	}
}

func simplifyOperator(o Operator) Condition {
	kept := make([]Condition, 0, len(o.Conditions))
	for _, child := range o.Conditions {
		if s := Simplify(child); !isNone(s) {
			kept = append(kept, s)
		}
	}
	switch len(kept) {
	case 0:
		return None{}
	case 1:
		return kept[0]
	}
	flat := make([]Condition, 0, len(kept))
	for _, child := range kept {
		if inner, ok := child.(Operator); ok && inner.Op == o.Op {
			flat = append(flat, inner.Conditions...)
			continue
		}
		flat = append(flat, child)
	}
	return Operator{Op: o.Op, Conditions: flat}
}

func isNone(c Condition) bool {
	_, ok := c.(None)
	return ok || c == nil
}
