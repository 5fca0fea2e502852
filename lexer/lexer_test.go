package lexer_test

import (
	"testing"

	"github.com/relsql/relsql/lexer"
	"github.com/relsql/relsql/token"
)

func tokens(t *testing.T, src string) []lexer.Item {
	t.Helper()
	l := lexer.New(src)
	var items []lexer.Item
	for {
		it := l.NextToken()
		items = append(items, it)
		if it.Token == token.EOF {
			return items
		}
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	items := tokens(t, "select Foo from_bar")
	want := []token.Token{token.SELECT, token.Identifier, token.Identifier, token.EOF}
	if len(items) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(items), len(want), items)
	}
	for i, tok := range want {
		if items[i].Token != tok {
			t.Errorf("item %d: got %s, want %s", i, items[i].Token, tok)
		}
	}
	if items[1].Value != "Foo" {
		t.Errorf("identifier case not preserved: got %q", items[1].Value)
	}
}

func TestPunctuationLongestMatch(t *testing.T) {
	src := "<< >> <= >= == != <> || ~"
	items := tokens(t, src)
	want := []token.Token{
		token.LShift, token.RShift, token.LTE, token.GTE,
		token.EqEq, token.NEq, token.LTGT, token.Concat, token.Tilde, token.EOF,
	}
	if len(items) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(items), len(want), items)
	}
	for i, tok := range want {
		if items[i].Token != tok {
			t.Errorf("item %d: got %s, want %s", i, items[i].Token, tok)
		}
	}
}

func TestNumericLiteralForms(t *testing.T) {
	for _, src := range []string{"123", "3.14", "1e3", "1.5e-2", "0xff", "0Xff"} {
		items := tokens(t, src)
		if len(items) != 2 || items[0].Token != token.NumericLiteral {
			t.Errorf("src %q: got %+v, want a single NumericLiteral", src, items)
		}
	}
}

func TestInvalidHexLiteral(t *testing.T) {
	items := tokens(t, "0xzzz")
	if items[0].Token != token.Invalid {
		t.Errorf("0xzzz: got %s, want Invalid", items[0].Token)
	}
}

func TestStringLiteralEscapes(t *testing.T) {
	items := tokens(t, "'it''s'")
	if items[0].Token != token.StringLiteral {
		t.Fatalf("got %s, want StringLiteral", items[0].Token)
	}
	if items[0].Value != "it's" {
		t.Errorf("got %q, want %q", items[0].Value, "it's")
	}
}

func TestBlobLiteral(t *testing.T) {
	for _, src := range []string{"x'ABCD'", "X'abcd'"} {
		items := tokens(t, src)
		if items[0].Token != token.BlobLiteral {
			t.Fatalf("src %q: got %s, want BlobLiteral", src, items[0].Token)
		}
		if items[0].Value != src[2:len(src)-1] {
			t.Errorf("src %q: got %q", src, items[0].Value)
		}
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	items := tokens(t, "SELECT -- trailing comment\n1 /* block\ncomment */ FROM t")
	want := []token.Token{token.SELECT, token.NumericLiteral, token.FROM, token.Identifier, token.EOF}
	if len(items) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(items), len(want), items)
	}
	for i, tok := range want {
		if items[i].Token != tok {
			t.Errorf("item %d: got %s, want %s", i, items[i].Token, tok)
		}
	}
}

func TestPositionTracking(t *testing.T) {
	items := tokens(t, "SELECT\n  1")
	if items[0].Pos != (tokenPos(1, 1)) {
		t.Errorf("SELECT pos: got %+v", items[0].Pos)
	}
	if items[1].Pos != (tokenPos(2, 3)) {
		t.Errorf("1 pos: got %+v", items[1].Pos)
	}
}

func tokenPos(line, column int) token.Position {
	return token.Position{Line: line, Column: column}
}

func TestEofIsSticky(t *testing.T) {
	l := lexer.New("")
	first := l.NextToken()
	second := l.NextToken()
	if first.Token != token.EOF || second.Token != token.EOF {
		t.Errorf("expected EOF repeated, got %s then %s", first.Token, second.Token)
	}
}

func TestLexerIsIdempotent(t *testing.T) {
	src := "SELECT * FROM t WHERE a = 1 AND b IS NOT NULL;"
	first := tokens(t, src)
	second := tokens(t, src)
	if len(first) != len(second) {
		t.Fatalf("token count differs across runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("token %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
