package expand_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"possh/ast"
	"possh/expand"
	"possh/parser"
)

// mapEnviron is a minimal expand.WriteEnviron backed by a plain map, enough
// to drive expansion tests without pulling in the interpreter's scope stack.
type mapEnviron map[string]expand.Variable

func (m mapEnviron) Get(name string) expand.Variable { return m[name] }
func (m mapEnviron) Set(name string, vr expand.Variable) error {
	m[name] = vr
	return nil
}
func (m mapEnviron) Each(fn func(string, expand.Variable) bool) {
	for k, v := range m {
		if !fn(k, v) {
			return
		}
	}
}

func str(s string) expand.Variable {
	return expand.Variable{Set: true, Kind: expand.String, Str: s}
}

// words parses src as a single simple command and returns its word list.
func words(t *testing.T, src string) []ast.Word {
	t.Helper()
	cl, err := parser.ParseProgram([]byte(src+"\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc, ok := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	qt.Assert(t, ok, qt.IsTrue)
	return sc.Words
}

func newCtx(env mapEnviron) *expand.Context {
	return &expand.Context{Env: env}
}

func TestFieldsPlainWords(t *testing.T) {
	env := mapEnviron{}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo hello world")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "hello", "world"})
}

func TestParameterExpansionBasic(t *testing.T) {
	env := mapEnviron{"NAME": str("possh")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo $NAME")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "possh"})
}

func TestParameterExpansionColonMinusUnset(t *testing.T) {
	env := mapEnviron{}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${NAME:-anon}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "anon"})
}

func TestParameterExpansionColonMinusEmptyIsTreatedUnset(t *testing.T) {
	env := mapEnviron{"NAME": str("")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${NAME:-anon}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "anon"})
}

func TestParameterExpansionMinusKeepsEmptyValue(t *testing.T) {
	env := mapEnviron{"NAME": str("")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${NAME-anon}")...)
	// NAME is set (to ""), so the non-colon "-" form leaves it alone; the
	// empty word is dropped entirely since it's unquoted.
	qt.Assert(t, got, qt.DeepEquals, []string{"echo"})
}

func TestParameterExpansionQuestionUnsetReportsError(t *testing.T) {
	env := mapEnviron{}
	var gotErr error
	cfg := &expand.Context{Env: env, OnError: func(e error) {
		if gotErr == nil {
			gotErr = e
		}
	}}
	cfg.ExpandFields(context.Background(), words(t, "echo ${NAME:?required}")...)
	qt.Assert(t, gotErr, qt.Not(qt.IsNil))
	var upe expand.UnsetParameterError
	qt.Assert(t, gotErr, qt.ErrorAs, &upe)
	qt.Assert(t, upe.Message, qt.Equals, "required")
}

func TestParameterExpansionLength(t *testing.T) {
	env := mapEnviron{"NAME": str("possh")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${#NAME}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "5"})
}

func TestParameterExpansionRemoveSuffix(t *testing.T) {
	env := mapEnviron{"FILE": str("archive.tar.gz")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${FILE%.gz}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "archive.tar"})
}

func TestParameterExpansionRemoveLargestSuffix(t *testing.T) {
	env := mapEnviron{"FILE": str("archive.tar.gz")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${FILE%%.*}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "archive"})
}

func TestParameterExpansionRemovePrefix(t *testing.T) {
	env := mapEnviron{"PATHY": str("/usr/local/bin")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${PATHY#*/}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "usr/local/bin"})
}

func TestParameterExpansionUpperFirst(t *testing.T) {
	env := mapEnviron{"NAME": str("possh")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo ${NAME^}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "Possh"})
}

func TestBraceExpansionList(t *testing.T) {
	env := mapEnviron{}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo {a,b,c}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "a", "b", "c"})
}

func TestBraceExpansionSequence(t *testing.T) {
	env := mapEnviron{}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo {1..3}")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "1", "2", "3"})
}

func TestWordSplittingOnIFS(t *testing.T) {
	env := mapEnviron{"LIST": str("a b  c")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo $LIST")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "a", "b", "c"})
}

func TestDoubleQuotedSuppressesSplitting(t *testing.T) {
	env := mapEnviron{"LIST": str("a b  c")}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, `echo "$LIST"`)...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "a b  c"})
}

func TestQuotedAtSplitsByPositionalElement(t *testing.T) {
	env := mapEnviron{"@": {Set: true, Kind: expand.Indexed, List: []string{"one", "two three", ""}}}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, `echo "$@"`)...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "one", "two three", ""})
}

func TestSingleQuotedLiteralNeverGlobs(t *testing.T) {
	env := mapEnviron{}
	cfg := newCtx(env)
	got := cfg.ExpandFields(context.Background(), words(t, "echo '*.go'")...)
	qt.Assert(t, got, qt.DeepEquals, []string{"echo", "*.go"})
}

func TestReadFieldsSplitsOnIFS(t *testing.T) {
	cfg := newCtx(mapEnviron{})
	got := cfg.ReadFields("  a  b c  ", -1, true)
	qt.Assert(t, got, qt.DeepEquals, []string{"a", "b", "c"})
}

func TestReadFieldsCapsAtN(t *testing.T) {
	cfg := newCtx(mapEnviron{})
	got := cfg.ReadFields("a b c d", 2, true)
	qt.Assert(t, got, qt.DeepEquals, []string{"a", "b c d"})
}
