package query

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Each letter of an operator keyword may be ASCII or full-width, in either
// case.
const (
	letterA = `[AaＡａ]`
	letterN = `[NnＮｎ]`
	letterD = `[DdＤｄ]`
	letterO = `[OoＯｏ]`
	letterR = `[RrＲｒ]`

	andKeyword = letterA + letterN + letterD
	orKeyword  = letterO + letterR
)

var (
	andSeparator = regexp.MustCompile(` +` + andKeyword + ` +`)
	orOnly       = regexp.MustCompile(`^ *` + orKeyword + ` *$`)
	orPrefix     = regexp.MustCompile(`^ *` + orKeyword + ` +`)
	orSuffix     = regexp.MustCompile(` +` + orKeyword + ` *$`)
	orSeparator  = regexp.MustCompile(` +` + orKeyword + ` +`)
)

// segment is the result of tokenizing one literal text run. The flags
// report whether the run began or ended with a standalone OR, which decides
// how it binds to a neighbouring group.
type segment struct {
	startsWithOr bool
	condition    Condition
	endsWithOr   bool
}

// tokenize converts one text segment into a condition. Whitespace and AND
// both join terms; OR binds loosest.
func tokenize(s string) (segment, error) {
	s, phrases := extractPhrases(s)
	s = andSeparator.ReplaceAllString(s, " ")

	if orOnly.MatchString(s) {
		return segment{startsWithOr: true, condition: None{}, endsWithOr: true}, nil
	}

	var seg segment
	start, end := 0, len(s)
	if loc := orPrefix.FindStringIndex(s); loc != nil {
		seg.startsWithOr = true
		start = loc[1]
	}
	if loc := orSuffix.FindStringIndex(s); loc != nil {
		seg.endsWithOr = true
		end = loc[0]
	}
	body := ""
	if start < end {
		body = s[start:end]
	}

	chunks := orSeparator.Split(body, -1)
	alternatives := make([]Condition, 0, len(chunks))
	for _, chunk := range chunks {
		if isBlank(chunk) {
			continue
		}
		tokens := fields(chunk)
		terms := make([]Condition, 0, len(tokens))
		for _, token := range tokens {
			c, err := classify(token, phrases)
			if err != nil {
				return segment{}, err
			}
			if c != nil {
				terms = append(terms, c)
			}
		}
		alternatives = append(alternatives, And(terms...))
	}
	seg.condition = Simplify(Or(alternatives...))
	return seg, nil
}

// classify maps a single token to its condition. A nil condition means the
// token is a stray operator and carries nothing.
func classify(token string, phrases *phraseTables) (Condition, error) {
	if c, ok, err := phrases.condition(token); ok || err != nil {
		return c, err
	}
	switch {
	case utf8.RuneCountInString(token) == 1:
		return Keyword(token), nil
	case strings.HasPrefix(token, "-"):
		return Not{Condition: Keyword(token[1:])}, nil
	case isOperatorKeyword(token):
		return nil, nil
	default:
		return Keyword(token), nil
	}
}

// isOperatorKeyword reports whether token is AND or OR on its own, with
// full-width letters folded to ASCII.
func isOperatorKeyword(token string) bool {
	folded := width.Fold.String(token)
	return strings.EqualFold(folded, "and") || strings.EqualFold(folded, "or")
}
