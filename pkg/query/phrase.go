package query

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
)

const (
	tagPhrase        = 'P'
	tagNegatedPhrase = 'N'
)

var (
	negatedPhrasePattern = regexp.MustCompile(`-"([^"]*)"`)
	phrasePattern        = regexp.MustCompile(`"([^"]*)"`)
	placeholderPattern   = regexp.MustCompile(`\x{E000}([NP])(\d+)\x{E001}`)
	placeholderToken     = regexp.MustCompile(`^\x{E000}([NP])(\d+)\x{E001}$`)
)

// phraseTables holds the quoted spans cut out of a query, in the order they
// were found. Placeholders refer to entries by 1-based index.
type phraseTables struct {
	negated []string
	plain   []string
}

// extractPhrases replaces every quoted span in s with a placeholder. Negated
// spans are swept first over the whole string so that -"x" is never also
// captured as a plain phrase. Blank spans are removed outright.
func extractPhrases(s string) (string, *phraseTables) {
	tables := &phraseTables{}
	s = replaceSubmatches(negatedPhrasePattern, s, func(content string) string {
		if isBlank(content) {
			return ""
		}
		tables.negated = append(tables.negated, content)
		return " " + placeholder(tagNegatedPhrase, len(tables.negated)) + " "
	})
	s = replaceSubmatches(phrasePattern, s, func(content string) string {
		if isBlank(content) {
			return ""
		}
		tables.plain = append(tables.plain, content)
		return " " + placeholder(tagPhrase, len(tables.plain)) + " "
	})
	return s, tables
}

// reinsert restores the literal quoted text behind every placeholder in s.
func (t *phraseTables) reinsert(s string) (string, error) {
	if !strings.ContainsRune(s, markOpen) {
		return s, nil
	}
	var lookupErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholderPattern.FindStringSubmatch(m)
		content, err := t.lookup(sub[1][0], sub[2])
		if err != nil {
			lookupErr = err
			return ""
		}
		if sub[1][0] == tagNegatedPhrase {
			return `-"` + content + `"`
		}
		return `"` + content + `"`
	})
	if lookupErr != nil {
		return "", lookupErr
	}
	return out, nil
}

// condition resolves a placeholder token to its phrase condition. ok is
// false when token is not a placeholder.
func (t *phraseTables) condition(token string) (c Condition, ok bool, err error) {
	sub := placeholderToken.FindStringSubmatch(token)
	if sub == nil {
		return nil, false, nil
	}
	content, err := t.lookup(sub[1][0], sub[2])
	if err != nil {
		return nil, true, err
	}
	if sub[1][0] == tagNegatedPhrase {
		return Not{Condition: PhraseKeyword(content)}, true, nil
	}
	return PhraseKeyword(content), true, nil
}

func (t *phraseTables) lookup(tag byte, index string) (string, error) {
	table := t.plain
	if tag == tagNegatedPhrase {
		table = t.negated
	}
	i, err := strconv.Atoi(index)
	if err != nil || i < 1 || i > len(table) {
		return "", apperrors.Newf(apperrors.ErrInternal, http.StatusInternalServerError,
			"phrase placeholder %c%s does not resolve (table size %d)", tag, index, len(table))
	}
	return table[i-1], nil
}

func placeholder(tag rune, index int) string {
	return string(markOpen) + string(tag) + strconv.Itoa(index) + string(markClose)
}

// replaceSubmatches calls repl with the first capture group of every match
// of re in s and substitutes the whole match with the result.
func replaceSubmatches(re *regexp.Regexp, s string, repl func(group string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteString(repl(s[m[2]:m[3]]))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
