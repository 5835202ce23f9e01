package lexer

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"possh/token"
)

func kinds(t *testing.T, src string) []token.Kind {
	t.Helper()
	l := New([]byte(src))
	// These tests care about operator/word boundaries, not keyword
	// recognition, so keep every word a plain LIT rather than LITWORD by
	// clearing atCommandStart the way a parser does after a command's
	// first word.
	l.SetCommandStart(false)
	var out []token.Kind
	for {
		tok, err := l.Next()
		qt.Assert(t, err, qt.IsNil)
		out = append(out, tok.Kind)
		if tok.Kind == token.EOF {
			return out
		}
	}
}

func TestOperatorLongestMatch(t *testing.T) {
	tests := []struct {
		src  string
		want []token.Kind
	}{
		{"a<<-b", []token.Kind{token.LIT, token.DHEREDOC, token.LIT, token.EOF}},
		{"a<<b", []token.Kind{token.LIT, token.SHL, token.LIT, token.EOF}},
		{"a<<<b", []token.Kind{token.LIT, token.WHEREDOC, token.LIT, token.EOF}},
		{"a&&b", []token.Kind{token.LIT, token.LAND, token.LIT, token.EOF}},
		{"a||b", []token.Kind{token.LIT, token.LOR, token.LIT, token.EOF}},
		{"a;;&", []token.Kind{token.LIT, token.DSEMIFALL, token.EOF}},
		{"a;&", []token.Kind{token.LIT, token.SEMIFALL, token.EOF}},
		{"a;;", []token.Kind{token.LIT, token.DSEMICOLON, token.EOF}},
		{"a>>b", []token.Kind{token.LIT, token.SHR, token.LIT, token.EOF}},
		{"a>|b", []token.Kind{token.LIT, token.CLOBBER, token.LIT, token.EOF}},
		{"a&>b", []token.Kind{token.LIT, token.RDRALL, token.LIT, token.EOF}},
		{"a&>>b", []token.Kind{token.LIT, token.APPALL, token.LIT, token.EOF}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := kinds(t, tt.src)
			qt.Assert(t, got, qt.DeepEquals, tt.want)
		})
	}
}

// TestArithNesting checks that under ModeArith each ')' of $((a+(b))) comes
// back as its own RPAREN, so the parser can pair the inner group's ')'
// before the closing pair.
func TestArithNesting(t *testing.T) {
	l := New([]byte(`$((a+(b)))`))
	tok, err := l.Next()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tok.Kind, qt.Equals, token.DOLLDP)
	l.PushMode(ModeArith)
	var sawRParen int
	for {
		tok, err := l.Next()
		qt.Assert(t, err, qt.IsNil)
		if tok.Kind == token.RPAREN {
			sawRParen++
			if sawRParen == 2 {
				// the first ')' closes the inner group and the second is
				// the first of the closing "))"; lexArith has no "))"
				// entry, so each arrives as RPAREN.
				break
			}
			continue
		}
		if tok.Kind == token.EOF {
			t.Fatal("ran out of tokens before seeing the closing '))'")
		}
	}
}

// TestSingleQuoteLiteral drives the lexer the way the parser does: push
// ModeSingleQuote, read the one LIT token holding the quoted body, then pop.
func TestSingleQuoteLiteral(t *testing.T) {
	l := New([]byte(`a'b$c"d'e`))
	tok, err := l.Next() // "a" up to the quote
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tok.Kind, qt.Equals, token.LITWORD)
	qt.Assert(t, tok.Lexeme, qt.Equals, "a")

	tok, err = l.Next() // the opening '
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tok.Kind, qt.Equals, token.SQUOTE)

	l.PushMode(ModeSingleQuote)
	tok, err = l.Next()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tok.Kind, qt.Equals, token.LIT)
	qt.Assert(t, tok.Lexeme, qt.Equals, `b$c"d`)
	l.PopMode()

	tok, err = l.Next() // "e" after the closing quote
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tok.Kind, qt.Equals, token.LITWORD)
	qt.Assert(t, tok.Lexeme, qt.Equals, "e")
}

func TestUnterminatedSingleQuoteIsIncomplete(t *testing.T) {
	l := New([]byte(`a'bcd`))
	_, err := l.Next() // "a"
	qt.Assert(t, err, qt.IsNil)
	_, err = l.Next() // the opening '
	qt.Assert(t, err, qt.IsNil)

	l.PushMode(ModeSingleQuote)
	_, err = l.Next()
	var tokErr *TokenError
	qt.Assert(t, err, qt.ErrorAs, &tokErr)
	qt.Assert(t, tokErr.Incomplete, qt.IsTrue)
	qt.Assert(t, tokErr.Kind, qt.Equals, ErrUnterminatedQuote)
}

// TestLineContinuationIsInvisible checks that a backslash-newline inside a
// word is swallowed into the same word rather than breaking it: lexWord
// steps over any "\x" pair (including "\\\n") without treating the newline
// as a token boundary, so "foo\<newline>bar" comes back as a single LIT
// whose Lexeme still carries the raw backslash and newline bytes (later
// stages, not the lexer, are responsible for rendering the continuation
// invisible to the user).
func TestLineContinuationIsInvisible(t *testing.T) {
	l := New([]byte("foo\\\nbar"))
	l.SetCommandStart(false)
	tok, err := l.Next()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tok.Kind, qt.Equals, token.LIT)
	qt.Assert(t, tok.Lexeme, qt.Equals, "foo\\\nbar")

	tok, err = l.Next()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tok.Kind, qt.Equals, token.EOF)
}

func TestCommentToNewline(t *testing.T) {
	got := kinds(t, "echo hi # a comment\necho bye")
	qt.Assert(t, got, qt.DeepEquals, []token.Kind{
		token.LIT, token.LIT, token.NEWLINE, token.LIT, token.LIT, token.EOF,
	})
}
