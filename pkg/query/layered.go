package query

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
)

var (
	innermostBracket    = regexp.MustCompile(`\(([^()]*)\)`)
	bracketPlaceholder  = regexp.MustCompile(`（(\d+)）`)
	strayBracketRemover = strings.NewReplacer("(", "", ")", "")
)

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeGroup
	nodeNegatedGroup
)

// layeredNode is either a literal text segment or a parenthesized group,
// possibly negated, holding its own layered tree.
type layeredNode struct {
	kind     nodeKind
	text     string
	children layeredTree
}

// layeredTree is a sequence of nodes in left-to-right textual order.
type layeredTree []layeredNode

// layerBrackets turns phrase-protected, symbol-normalized text into a
// layered tree. Phrase placeholders are reinserted into every text segment.
func layerBrackets(s string, phrases *phraseTables, opts Options) (layeredTree, error) {
	s, brackets := collapseBrackets(s, opts.MaxDepth)
	if opts.StrayBrackets == StrayBracketsDrop {
		s = strayBracketRemover.Replace(s)
	}
	return buildTree(s, brackets, phrases)
}

// collapseBrackets replaces the innermost non-empty bracket pairs with
// numbered placeholders, one nesting level per pass, until nothing changes
// or maxDepth passes have run. Empty pairs are deleted. Brackets that never
// pair stay in the returned text.
func collapseBrackets(s string, maxDepth int) (string, []string) {
	var table []string
	for pass := 0; maxDepth <= 0 || pass < maxDepth; pass++ {
		next := replaceSubmatches(innermostBracket, s, func(content string) string {
			if isBlank(content) {
				return ""
			}
			table = append(table, content)
			return "（" + strconv.Itoa(len(table)) + "）"
		})
		if next == s {
			break
		}
		s = next
	}
	return s, table
}

// buildTree walks s, splitting it on bracket placeholders. A "-" directly
// in front of a placeholder negates that group.
func buildTree(s string, brackets []string, phrases *phraseTables) (layeredTree, error) {
	var tree layeredTree
	last := 0
	for _, m := range bracketPlaceholder.FindAllStringSubmatchIndex(s, -1) {
		segment := s[last:m[0]]
		kind := nodeGroup
		if strings.HasSuffix(segment, "-") {
			kind = nodeNegatedGroup
			segment = segment[:len(segment)-1]
		}
		var err error
		if tree, err = tree.appendText(segment, phrases); err != nil {
			return nil, err
		}

		i, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil || i < 1 || i > len(brackets) {
			return nil, apperrors.Newf(apperrors.ErrInternal, http.StatusInternalServerError,
				"bracket placeholder %q does not resolve (table size %d)", s[m[0]:m[1]], len(brackets))
		}
		children, err := buildTree(brackets[i-1], brackets, phrases)
		if err != nil {
			return nil, err
		}
		tree = append(tree, layeredNode{kind: kind, children: children})
		last = m[1]
	}
	return tree.appendText(s[last:], phrases)
}

func (t layeredTree) appendText(segment string, phrases *phraseTables) (layeredTree, error) {
	if isBlank(segment) {
		return t, nil
	}
	segment, err := phrases.reinsert(segment)
	if err != nil {
		return nil, err
	}
	if isBlank(segment) {
		return t, nil
	}
	return append(t, layeredNode{kind: nodeText, text: segment}), nil
}
