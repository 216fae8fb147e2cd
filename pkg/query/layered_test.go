package query

import (
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
)

func TestCollapseBrackets(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		maxDepth  int
		wantText  string
		wantTable []string
	}{
		{"no brackets", "a b", 0, "a b", nil},
		{"single", "a (b) c", 0, "a （1） c", []string{"b"}},
		{"siblings then parent", "((a) (b))", 0, "（3）", []string{"a", "b", "（1） （2）"}},
		{"empty pair deleted", "a () b", 0, "a  b", nil},
		{"blank pair deleted", "a ( ) b", 0, "a  b", nil},
		{"reversed", ")(", 0, ")(", nil},
		{"unclosed outer", "(a (b)", 0, "(a （1）", []string{"b"}},
		{"depth limit", "((a))", 1, "(（1）)", []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, table := collapseBrackets(tt.in, tt.maxDepth)
			if got != tt.wantText {
				t.Errorf("text = %q, want %q", got, tt.wantText)
			}
			if !reflect.DeepEqual(table, tt.wantTable) {
				t.Errorf("table = %q, want %q", table, tt.wantTable)
			}
		})
	}
}

func textNode(s string) layeredNode { return layeredNode{kind: nodeText, text: s} }

func groupNode(children ...layeredNode) layeredNode {
	return layeredNode{kind: nodeGroup, children: children}
}

func negatedNode(children ...layeredNode) layeredNode {
	return layeredNode{kind: nodeNegatedGroup, children: children}
}

func TestLayerBrackets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		opts Options
		want layeredTree
	}{
		{"plain text", "a b", Options{}, layeredTree{textNode("a b")}},
		{"blank", "  ", Options{}, nil},
		{"negated group", "x -(y) z", Options{}, layeredTree{textNode("x "), negatedNode(textNode("y")), textNode(" z")}},
		{"adjacent groups", "(a)(b)", Options{}, layeredTree{groupNode(textNode("a")), groupNode(textNode("b"))}},
		{"nested", "(a (b))", Options{}, layeredTree{groupNode(textNode("a "), groupNode(textNode("b")))}},
		{"phrase reinserted", `("a b") c`, Options{}, layeredTree{groupNode(textNode(` "a b" `)), textNode(" c")}},
		{"phrase keeps full-width", `"（x）"`, Options{}, layeredTree{textNode(` "（x）" `)}},
		{"stray kept", "a (b", Options{}, layeredTree{textNode("a (b")}},
		{"stray dropped", "a (b", Options{StrayBrackets: StrayBracketsDrop}, layeredTree{textNode("a b")}},
		{"full-width normalized", "（a）", Options{}, layeredTree{groupNode(textNode("a"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, phrases := extractPhrases(normalizeQuotes(tt.in))
			got, err := layerBrackets(normalizeSymbols(s), phrases, tt.opts)
			if err != nil {
				t.Fatalf("layerBrackets: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tree = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildTreeUnresolvedBracket(t *testing.T) {
	_, err := buildTree("a （5）", []string{"b"}, &phraseTables{})
	if !errors.Is(err, apperrors.ErrInternal) {
		t.Errorf("buildTree error = %v, want ErrInternal", err)
	}
}
