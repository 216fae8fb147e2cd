package query

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

type parseCase struct {
	name  string
	query string
	want  Condition
}

func runParseCases(t *testing.T, p *Parser, tests []parseCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.query)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.query, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) =\n%s\nwant\n%s", tt.query, Dump(got), Dump(tt.want))
			}
			assertCanonical(t, got)
		})
	}
}

func TestParseBasics(t *testing.T) {
	runParseCases(t, New(Options{}), []parseCase{
		{"empty", "", None{}},
		{"blank", "  　 ", None{}},
		{"single keyword", "golang", Keyword("golang")},
		{"implicit and", "a b c", And(Keyword("a"), Keyword("b"), Keyword("c"))},
		{"explicit and", "a and b AND c", And(Keyword("a"), Keyword("b"), Keyword("c"))},
		{"or", "a or b OR c", Or(Keyword("a"), Keyword("b"), Keyword("c"))},
		{"or binds loosest", "a b or c", Or(And(Keyword("a"), Keyword("b")), Keyword("c"))},
		{"full-width or", "a ｏｒ b", Or(Keyword("a"), Keyword("b"))},
		{"mixed width and case", "a Ｏr b ａNｄ c", Or(Keyword("a"), And(Keyword("b"), Keyword("c")))},
		{"ideographic spaces", "a　b　or　c", Or(And(Keyword("a"), Keyword("b")), Keyword("c"))},
		{"negated keyword", "a -b", And(Keyword("a"), Negate(Keyword("b")))},
		{"double dash keeps one", "--a", Negate(Keyword("-a"))},
		{"lone dash is a keyword", "a - b", And(Keyword("a"), Keyword("-"), Keyword("b"))},
		{"single rune operator letters", "a o b", And(Keyword("a"), Keyword("o"), Keyword("b"))},
		{"phrase", `"exact match"`, PhraseKeyword("exact match")},
		{"negated phrase", `a -"not this"`, And(Keyword("a"), Negate(PhraseKeyword("not this")))},
		{"phrase keeps operators", `"a or b"`, PhraseKeyword("a or b")},
		{"phrase glued to text", `abc"x y"def`, And(Keyword("abc"), PhraseKeyword("x y"), Keyword("def"))},
		{"empty phrase removed", `a "" b`, And(Keyword("a"), Keyword("b"))},
		{"blank phrase removed", `a "　 " b`, And(Keyword("a"), Keyword("b"))},
		{"full-width closing quote", "”a b”", PhraseKeyword("a b")},
		{"unterminated quote", `a "b c`, And(Keyword("a"), Keyword(`"b`), Keyword("c"))},
		{"placeholder runes stripped", "a \uE000P1\uE001 \uE000N1", And(Keyword("a"), Keyword("P1"), Keyword("N1"))},
	})
}

func TestParseOperators(t *testing.T) {
	runParseCases(t, New(Options{}), []parseCase{
		{"and only", "and", None{}},
		{"and alone among spaces", "  AND  ", None{}},
		{"or only", "or", None{}},
		{"leading or", "or a", Keyword("a")},
		{"trailing or", "a or", Keyword("a")},
		{"trailing and", "a AND", Keyword("a")},
		{"leading and", "and a", Keyword("a")},
		{"repeated or", "a or or b", Or(Keyword("a"), Keyword("b"))},
		{"repeated and", "a and and b", And(Keyword("a"), Keyword("b"))},
		{"or then and", "a or and b", Or(Keyword("a"), Keyword("b"))},
		{"operator words inside keywords", "band order", And(Keyword("band"), Keyword("order"))},
	})
}

func TestParseGroups(t *testing.T) {
	runParseCases(t, New(Options{}), []parseCase{
		{"group and keyword", "(A or B) and C", And(Or(Keyword("A"), Keyword("B")), Keyword("C"))},
		{"group implicit and", "(A or B) C", And(Or(Keyword("A"), Keyword("B")), Keyword("C"))},
		{"keyword then group", "A (B or C)", And(Keyword("A"), Or(Keyword("B"), Keyword("C")))},
		{"or between groups", "(A) or (B)", Or(Keyword("A"), Keyword("B"))},
		{"group binds like a term", "A (B) or C", Or(And(Keyword("A"), Keyword("B")), Keyword("C"))},
		{"two groups", "(A or B) (C or D)", And(Or(Keyword("A"), Keyword("B")), Or(Keyword("C"), Keyword("D")))},
		{"empty group", "A AND () AND B", And(Keyword("A"), Keyword("B"))},
		{"blank group", "A ( 　) B", And(Keyword("A"), Keyword("B"))},
		{"only empty groups", "() (( ))", None{}},
		{"nested or flattens", "(A or (B or C)) and D", And(Or(Keyword("A"), Keyword("B"), Keyword("C")), Keyword("D"))},
		{"redundant brackets", "((((A))))", Keyword("A")},
		{"redundant brackets around and", "((A and B))", And(Keyword("A"), Keyword("B"))},
		{"negated group", "-(A or B)", Negate(Or(Keyword("A"), Keyword("B")))},
		{"negated single", "-(A)", Negate(Keyword("A"))},
		{"double negated group", "-(-A)", Keyword("A")},
		{"negated nested group", "-(-(A B))", And(Keyword("A"), Keyword("B"))},
		{"full-width brackets", "（A or B）C", And(Or(Keyword("A"), Keyword("B")), Keyword("C"))},
		{"phrase inside group", `("x y" or z) w`, And(Or(PhraseKeyword("x y"), Keyword("z")), Keyword("w"))},
		{"bracket inside phrase", `"a (b" c)`, And(PhraseKeyword("a (b"), Keyword("c)"))},
		{"or before negated group", "A or -(B C)", Or(Keyword("A"), Negate(And(Keyword("B"), Keyword("C"))))},
	})

	if got, want := MustParse("((A and B))"), MustParse("A and B"); !reflect.DeepEqual(got, want) {
		t.Errorf("Parse(((A and B))) = %#v, want Parse(A and B) = %#v", got, want)
	}
}

func TestParseInvalidUTF8SurvivesEncoding(t *testing.T) {
	for _, q := range []string{")\xff\" ）", "a\xc3 b", "-\"\xfe\""} {
		got := MustParse(q)
		if !utf8.ValidString(got.String()) {
			t.Errorf("Parse(%q) kept invalid UTF-8: %q", q, got.String())
		}
		data, err := json.Marshal(JSONCondition{Condition: got})
		if err != nil {
			t.Fatalf("marshal %q: %v", q, err)
		}
		back, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %q: %v", q, err)
		}
		if !reflect.DeepEqual(back, got) {
			t.Errorf("round trip of %q: %#v, want %#v", q, back, got)
		}
	}
}

func TestParseStrayBrackets(t *testing.T) {
	t.Run("keep", func(t *testing.T) {
		runParseCases(t, New(Options{StrayBrackets: StrayBracketsKeep}), []parseCase{
			{"unclosed", "a (b", And(Keyword("a"), Keyword("(b"))},
			{"unopened", "a) b", And(Keyword("a)"), Keyword("b"))},
			{"reversed", ")a(", Keyword(")a(")},
			{"extra closing after group", "(a) b)", And(Keyword("a"), Keyword("b)"))},
			{"lone brackets", "( a", And(Keyword("("), Keyword("a"))},
		})
	})
	t.Run("drop", func(t *testing.T) {
		runParseCases(t, New(Options{StrayBrackets: StrayBracketsDrop}), []parseCase{
			{"unclosed", "a (b", And(Keyword("a"), Keyword("b"))},
			{"unopened", "a) b", And(Keyword("a"), Keyword("b"))},
			{"reversed", ")a(", Keyword("a")},
			{"extra closing after group", "(a) b)", And(Keyword("a"), Keyword("b"))},
			{"lone brackets", "( a", Keyword("a")},
			{"phrase brackets untouched", `"(x" (y`, And(PhraseKeyword("(x"), Keyword("y"))},
		})
	})
}

func TestParseMaxDepth(t *testing.T) {
	runParseCases(t, New(Options{MaxDepth: 1}), []parseCase{
		{"within limit", "(a b)", And(Keyword("a"), Keyword("b"))},
		{"outer pair left as text", "((a))", And(Keyword("("), Keyword("a"), Keyword(")"))},
	})
	runParseCases(t, New(Options{MaxDepth: 1, StrayBrackets: StrayBracketsDrop}), []parseCase{
		{"outer pair dropped", "((a))", Keyword("a")},
	})

	deep := strings.Repeat("(", 500) + "x" + strings.Repeat(")", 500)
	got, err := New(Options{MaxDepth: 1000}).Parse(deep)
	if err != nil {
		t.Fatalf("Parse deep: %v", err)
	}
	if !reflect.DeepEqual(got, Keyword("x")) {
		t.Errorf("Parse deep = %s, want x", got)
	}
}

func TestParseCJK(t *testing.T) {
	runParseCases(t, New(Options{}), []parseCase{
		{
			"keywords and phrases",
			` 検索１ -検索２ or "検索３" and -"検索４" `,
			Or(
				And(Keyword("検索１"), Negate(Keyword("検索２"))),
				And(PhraseKeyword("検索３"), Negate(PhraseKeyword("検索４"))),
			),
		},
		{
			"group in the middle",
			` 検索１ and (-検索２ or "検索３") or -"検索４" `,
			Or(
				And(Keyword("検索１"), Or(Negate(Keyword("検索２")), PhraseKeyword("検索３"))),
				Negate(PhraseKeyword("検索４")),
			),
		},
		{
			"adjacent groups",
			` (検索１ or -検索２)and("検索３" or -"検索４")(" 検索５ 検索６ " or 検索７) `,
			And(
				Or(Keyword("検索１"), Negate(Keyword("検索２"))),
				Or(PhraseKeyword("検索３"), Negate(PhraseKeyword("検索４"))),
				Or(PhraseKeyword(" 検索５ 検索６ "), Keyword("検索７")),
			),
		},
		{
			"brackets inside phrases",
			` (検索１ and -検索２) or ((" Ｐ１ and Ｐ２ -(Ｐ３ or Ｐ４) " or -" ＮＰ１ and ＮＰ２ -(ＮＰ３ or ＮＰ４) ") and (" 検索５ 検索６ " or 検索７)) `,
			Or(
				And(Keyword("検索１"), Negate(Keyword("検索２"))),
				And(
					Or(
						PhraseKeyword(" Ｐ１ and Ｐ２ -(Ｐ３ or Ｐ４) "),
						Negate(PhraseKeyword(" ＮＰ１ and ＮＰ２ -(ＮＰ３ or ＮＰ４) ")),
					),
					Or(PhraseKeyword(" 検索５ 検索６ "), Keyword("検索７")),
				),
			),
		},
		{
			"full-width brackets inside phrases",
			"-（Ａ１　or　”　Ｐ１　ａｎｄ　Ｐ２　−（Ｐ３　ｏｒ　Ｐ４）　”）　and　（-”　ＮＰ１　ａｎｄ　ＮＰ２　−（ＮＰ３　ｏｒ　ＮＰ４）　”　or　Ａ２）",
			And(
				Negate(Or(Keyword("Ａ１"), PhraseKeyword("　Ｐ１　ａｎｄ　Ｐ２　−（Ｐ３　ｏｒ　Ｐ４）　"))),
				Or(Negate(PhraseKeyword("　ＮＰ１　ａｎｄ　ＮＰ２　−（ＮＰ３　ｏｒ　ＮＰ４）　")), Keyword("Ａ２")),
			),
		},
		{
			"everything at once",
			"　ＡＡＡ　（”１１１　ＣＣＣ”　or（-（　ＤＤＤ　or　エエエ　）and　ＦＦＦ）or　ＧＧＧ　（ＨＨＨ　or　-”あああ　いいい”　ううう））　”　ＪＪＪ　”　or　-（ＫＫＫ　and　（　）　or　ＬＬＬ）　　（ＭＭＭ）or　２２２　",
			Or(
				And(
					Keyword("ＡＡＡ"),
					Or(
						PhraseKeyword("１１１　ＣＣＣ"),
						And(Negate(Or(Keyword("ＤＤＤ"), Keyword("エエエ"))), Keyword("ＦＦＦ")),
						And(
							Keyword("ＧＧＧ"),
							Or(Keyword("ＨＨＨ"), And(Negate(PhraseKeyword("あああ　いいい")), Keyword("ううう"))),
						),
					),
					PhraseKeyword("　ＪＪＪ　"),
				),
				And(Negate(Or(Keyword("ＫＫＫ"), Keyword("ＬＬＬ"))), Keyword("ＭＭＭ")),
				Keyword("２２２"),
			),
		},
	})
}

func TestParseStringRoundTrip(t *testing.T) {
	queries := []string{
		"a b c",
		"a or b c",
		`golang (generics or "type parameters") -java`,
		"-(a or b) (c or -d)",
		`-"x y" or (p (q or r))`,
		"--a",
	}
	for _, q := range queries {
		first := MustParse(q)
		second := MustParse(first.String())
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip of %q via %q changed the tree:\n%s\nvs\n%s", q, first.String(), Dump(first), Dump(second))
		}
	}
}

func TestParseNeverFails(t *testing.T) {
	inputs := []string{
		")(", "((((", "))))", `"""`, `-"`, "-(", "-()", "(-)", "or or or", "and (or) and",
		"\ue000", "\ue001N1\ue001", "\ue000N9\ue001", "（１）", "-（１）", " - - - ",
		strings.Repeat("(a or ", 50) + strings.Repeat(")", 25),
	}
	for _, opts := range []Options{{}, {StrayBrackets: StrayBracketsDrop}, {MaxDepth: 2}} {
		p := New(opts)
		for _, in := range inputs {
			c, err := p.Parse(in)
			if err != nil {
				t.Errorf("Parse(%q) with %s: %v", in, opts.Fingerprint(), err)
				continue
			}
			assertCanonical(t, c)
		}
	}
}

func TestParseBracketPlaceholderLookalike(t *testing.T) {
	// The user may type the same full-width form as a bracket placeholder; it
	// is normalized to ASCII before layering so it becomes a real group.
	got := MustParse("（1） or -（2）")
	want := Or(Keyword("1"), Negate(Keyword("2")))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse = %s, want %s", got, want)
	}
}

func TestNewDefaults(t *testing.T) {
	p := New(Options{MaxDepth: -4})
	if got := p.Options().MaxDepth; got != DefaultMaxDepth {
		t.Errorf("MaxDepth = %d, want %d", got, DefaultMaxDepth)
	}
	if got := p.Options().StrayBrackets; got != StrayBracketsKeep {
		t.Errorf("StrayBrackets = %s, want keep", got)
	}
}

func TestParseStrayBracketPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StrayBracketPolicy
		wantErr bool
	}{
		{"", StrayBracketsKeep, false},
		{"keep", StrayBracketsKeep, false},
		{" DROP ", StrayBracketsDrop, false},
		{"discard", StrayBracketsKeep, true},
	}
	for _, tt := range tests {
		got, err := ParseStrayBracketPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStrayBracketPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseStrayBracketPolicy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestOptionsFingerprint(t *testing.T) {
	a := New(Options{}).Options().Fingerprint()
	b := New(Options{StrayBrackets: StrayBracketsDrop}).Options().Fingerprint()
	c := New(Options{MaxDepth: 4}).Options().Fingerprint()
	if a == b || a == c || b == c {
		t.Errorf("fingerprints collide: %q %q %q", a, b, c)
	}
	if got, want := a, "depth=128;stray=keep"; got != want {
		t.Errorf("Fingerprint() = %q, want %q", got, want)
	}
}
