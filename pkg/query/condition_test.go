package query

import "testing"

func TestConditionString(t *testing.T) {
	tests := []struct {
		name string
		c    Condition
		want string
	}{
		{"none", None{}, ""},
		{"keyword", Keyword("go"), "go"},
		{"phrase", PhraseKeyword("a b"), `"a b"`},
		{"not keyword", Negate(Keyword("go")), "-go"},
		{"not phrase", Negate(PhraseKeyword("a b")), `-"a b"`},
		{"not nil", Not{}, ""},
		{"not operator", Negate(Or(Keyword("a"), Keyword("b"))), "-(a OR b)"},
		{"and", And(Keyword("a"), Keyword("b")), "a b"},
		{"or", Or(Keyword("a"), Keyword("b")), "a OR b"},
		{"or inside and", And(Or(Keyword("a"), Keyword("b")), Keyword("c")), "(a OR b) c"},
		{"and inside or", Or(And(Keyword("a"), Keyword("b")), Keyword("c")), "(a b) OR c"},
		{"single child not wrapped", And(Or(Keyword("a")), Keyword("c")), "a c"},
		{"none children skipped", And(Keyword("a"), None{}, nil, Keyword("b")), "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpString(t *testing.T) {
	if OpAnd.String() != "and" || OpOr.String() != "or" || Op(9).String() != "unknown" {
		t.Errorf("unexpected Op strings: %s %s %s", OpAnd, OpOr, Op(9))
	}
}
