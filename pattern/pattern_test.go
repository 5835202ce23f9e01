package pattern

import (
	"regexp"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRegexpPlainStringUnchanged(t *testing.T) {
	got, err := Regexp("hello", 0)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got, qt.Equals, "hello")
}

func TestRegexpStarMatchesAnything(t *testing.T) {
	expr, err := Regexp("*.go", EntireString)
	qt.Assert(t, err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	qt.Assert(t, rx.MatchString("main.go"), qt.IsTrue)
	qt.Assert(t, rx.MatchString("main.py"), qt.IsFalse)
}

func TestRegexpFilenamesModeStarStopsAtSlash(t *testing.T) {
	expr, err := Regexp("*.go", EntireString|Filenames)
	qt.Assert(t, err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	qt.Assert(t, rx.MatchString("main.go"), qt.IsTrue)
	qt.Assert(t, rx.MatchString("sub/main.go"), qt.IsFalse)
}

func TestRegexpQuestionMatchesOneRune(t *testing.T) {
	expr, err := Regexp("fil?.txt", EntireString)
	qt.Assert(t, err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	qt.Assert(t, rx.MatchString("file.txt"), qt.IsTrue)
	qt.Assert(t, rx.MatchString("fi.txt"), qt.IsFalse)
}

func TestRegexpBracketClass(t *testing.T) {
	expr, err := Regexp("[abc].txt", EntireString)
	qt.Assert(t, err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	qt.Assert(t, rx.MatchString("a.txt"), qt.IsTrue)
	qt.Assert(t, rx.MatchString("d.txt"), qt.IsFalse)
}

func TestRegexpNegatedBracketClass(t *testing.T) {
	expr, err := Regexp("[!abc].txt", EntireString)
	qt.Assert(t, err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	qt.Assert(t, rx.MatchString("d.txt"), qt.IsTrue)
	qt.Assert(t, rx.MatchString("a.txt"), qt.IsFalse)
}

func TestRegexpNamedCharClass(t *testing.T) {
	expr, err := Regexp("[[:digit:]][[:digit:]]", EntireString)
	qt.Assert(t, err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	qt.Assert(t, rx.MatchString("42"), qt.IsTrue)
	qt.Assert(t, rx.MatchString("4a"), qt.IsFalse)
}

func TestRegexpEscapedMetacharacter(t *testing.T) {
	expr, err := Regexp(`a\*b`, EntireString)
	qt.Assert(t, err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	qt.Assert(t, rx.MatchString("a*b"), qt.IsTrue)
	qt.Assert(t, rx.MatchString("axb"), qt.IsFalse)
}

func TestRegexpUnterminatedBracketIsError(t *testing.T) {
	_, err := Regexp("[abc", EntireString)
	qt.Assert(t, err, qt.Not(qt.IsNil))
	var se *SyntaxError
	qt.Assert(t, err, qt.ErrorAs, &se)
}

func TestMatchUsesDoublestarSemantics(t *testing.T) {
	ok, err := Match("*.go", "main.go")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsTrue)

	ok, err = Match("*.go", "sub/main.go")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsFalse)
}

func TestHasMeta(t *testing.T) {
	qt.Assert(t, HasMeta("plain"), qt.IsFalse)
	qt.Assert(t, HasMeta("*.go"), qt.IsTrue)
	qt.Assert(t, HasMeta(`\*literal`), qt.IsFalse)
	qt.Assert(t, HasMeta("file?.txt"), qt.IsTrue)
}

func TestQuoteMetaRoundTrips(t *testing.T) {
	quoted := QuoteMeta("*.go")
	ok, err := Match(quoted, "*.go")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsTrue)

	ok, err = Match(quoted, "main.go")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsFalse)
}
