package parser

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"possh/ast"
)

// firstCommand parses src and returns the first pipeline stage of its first
// statement, failing the test if the shape doesn't match.
func firstCommand(t *testing.T, src string) ast.Command {
	t.Helper()
	cl, err := ParseProgram([]byte(src), "<test>")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, len(cl.Stmts) > 0, qt.IsTrue)
	pl := cl.Stmts[0].Pipelines[0]
	qt.Assert(t, len(pl.Stages) > 0, qt.IsTrue)
	return pl.Stages[0]
}

func litWords(t *testing.T, words []ast.Word) []string {
	t.Helper()
	out := make([]string, len(words))
	for i, w := range words {
		qt.Assert(t, len(w.Parts) > 0, qt.IsTrue)
		lit, ok := w.Parts[0].(*ast.Lit)
		qt.Assert(t, ok, qt.IsTrue)
		out[i] = lit.Value
	}
	return out
}

func TestSimpleCommand(t *testing.T) {
	cmd := firstCommand(t, "echo hello world\n")
	sc, ok := cmd.(*ast.SimpleCommand)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, litWords(t, sc.Words), qt.DeepEquals, []string{"echo", "hello", "world"})
}

func TestLeadingAssignment(t *testing.T) {
	cmd := firstCommand(t, "FOO=bar echo $FOO\n")
	sc, ok := cmd.(*ast.SimpleCommand)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(sc.Assigns), qt.Equals, 1)
	qt.Assert(t, sc.Assigns[0].Name.Value, qt.Equals, "FOO")
	qt.Assert(t, sc.Assigns[0].Append, qt.IsFalse)
	qt.Assert(t, len(sc.Words), qt.Equals, 2)
	qt.Assert(t, litWords(t, sc.Words[:1]), qt.DeepEquals, []string{"echo"})
}

func TestBareAssignmentHasNoWords(t *testing.T) {
	cmd := firstCommand(t, "FOO=bar\n")
	sc, ok := cmd.(*ast.SimpleCommand)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(sc.Words), qt.Equals, 0)
	qt.Assert(t, len(sc.Assigns), qt.Equals, 1)
}

func TestRedirection(t *testing.T) {
	cmd := firstCommand(t, "grep foo <in.txt >out.txt 2>&1\n")
	sc, ok := cmd.(*ast.SimpleCommand)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(sc.Redirs), qt.Equals, 3)
	qt.Assert(t, sc.Redirs[0].Op, qt.Equals, ast.RedirIn)
	qt.Assert(t, sc.Redirs[1].Op, qt.Equals, ast.RedirOut)
	qt.Assert(t, sc.Redirs[2].Op, qt.Equals, ast.RedirDupOut)
	qt.Assert(t, *sc.Redirs[2].Fd, qt.Equals, 2)
}

func TestPipeline(t *testing.T) {
	cl, err := ParseProgram([]byte("a | b | c\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	pl := cl.Stmts[0].Pipelines[0]
	qt.Assert(t, len(pl.Stages), qt.Equals, 3)
	qt.Assert(t, pl.Negated, qt.IsFalse)
}

func TestNegatedPipeline(t *testing.T) {
	cl, err := ParseProgram([]byte("! grep foo\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	pl := cl.Stmts[0].Pipelines[0]
	qt.Assert(t, pl.Negated, qt.IsTrue)
}

func TestAndOrChain(t *testing.T) {
	cl, err := ParseProgram([]byte("a && b || c\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	ao := cl.Stmts[0]
	qt.Assert(t, len(ao.Pipelines), qt.Equals, 3)
	qt.Assert(t, ao.Ops, qt.DeepEquals, []ast.AndOrOp{ast.AndOrAnd, ast.AndOrOr})
}

func TestBackgroundPipeline(t *testing.T) {
	cl, err := ParseProgram([]byte("sleep 1 &\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	pl := cl.Stmts[0].Pipelines[0]
	qt.Assert(t, pl.Background, qt.IsTrue)
}

func TestIfElifElse(t *testing.T) {
	cmd := firstCommand(t, "if a; then b; elif c; then d; else e; fi\n")
	ifc, ok := cmd.(*ast.If)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(ifc.Cond.Stmts), qt.Equals, 1)
	qt.Assert(t, len(ifc.Then.Stmts), qt.Equals, 1)
	qt.Assert(t, len(ifc.Elifs), qt.Equals, 1)
	qt.Assert(t, ifc.Else, qt.Not(qt.IsNil))
	qt.Assert(t, len(ifc.Else.Stmts), qt.Equals, 1)
}

func TestWhileLoop(t *testing.T) {
	cmd := firstCommand(t, "while true; do echo x; done\n")
	w, ok := cmd.(*ast.While)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, w.Until, qt.IsFalse)
	qt.Assert(t, len(w.Body.Stmts), qt.Equals, 1)
}

func TestUntilLoop(t *testing.T) {
	cmd := firstCommand(t, "until false; do echo x; done\n")
	w, ok := cmd.(*ast.While)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, w.Until, qt.IsTrue)
}

func TestForWordList(t *testing.T) {
	cmd := firstCommand(t, "for f in a b c; do echo $f; done\n")
	f, ok := cmd.(*ast.For)
	qt.Assert(t, ok, qt.IsTrue)
	wi, ok := f.Loop.(*ast.WordIter)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, wi.Name.Value, qt.Equals, "f")
	qt.Assert(t, wi.HasIn, qt.IsTrue)
	qt.Assert(t, litWords(t, wi.List), qt.DeepEquals, []string{"a", "b", "c"})
}

func TestForWithoutIn(t *testing.T) {
	cmd := firstCommand(t, "for f; do echo $f; done\n")
	f, ok := cmd.(*ast.For)
	qt.Assert(t, ok, qt.IsTrue)
	wi, ok := f.Loop.(*ast.WordIter)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, wi.HasIn, qt.IsFalse)
}

func TestCStyleFor(t *testing.T) {
	cmd := firstCommand(t, "for ((i=0; i<3; i++)); do echo $i; done\n")
	f, ok := cmd.(*ast.For)
	qt.Assert(t, ok, qt.IsTrue)
	cst, ok := f.Loop.(*ast.CStyleFor)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, cst.Init, qt.Not(qt.IsNil))
	qt.Assert(t, cst.Cond, qt.Not(qt.IsNil))
	qt.Assert(t, cst.Post, qt.Not(qt.IsNil))
}

func TestCaseClause(t *testing.T) {
	cmd := firstCommand(t, "case $x in a) echo A;; b|c) echo BC;; *) echo Z;; esac\n")
	c, ok := cmd.(*ast.Case)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(c.Items), qt.Equals, 3)
	qt.Assert(t, len(c.Items[1].Patterns), qt.Equals, 2)
	qt.Assert(t, c.Items[0].Term, qt.Equals, ast.CaseBreak)
}

func TestCaseFallthroughTerminators(t *testing.T) {
	cmd := firstCommand(t, "case $x in a) echo A;& b) echo B;;& c) echo C;; esac\n")
	c, ok := cmd.(*ast.Case)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, c.Items[0].Term, qt.Equals, ast.CaseFallthrough)
	qt.Assert(t, c.Items[1].Term, qt.Equals, ast.CaseContinue)
	qt.Assert(t, c.Items[2].Term, qt.Equals, ast.CaseBreak)
}

func TestSubshell(t *testing.T) {
	cmd := firstCommand(t, "(cd /tmp; ls)\n")
	sub, ok := cmd.(*ast.Subshell)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(sub.Body.Stmts), qt.Equals, 2)
}

func TestBraceGroup(t *testing.T) {
	cmd := firstCommand(t, "{ echo a; echo b; }\n")
	bg, ok := cmd.(*ast.BraceGroup)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(bg.Body.Stmts), qt.Equals, 2)
}

func TestFunctionDefPOSIXStyle(t *testing.T) {
	cmd := firstCommand(t, "greet() { echo hi; }\n")
	fd, ok := cmd.(*ast.FunctionDef)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, fd.Name.Value, qt.Equals, "greet")
	qt.Assert(t, fd.BashStyle, qt.IsFalse)
	_, ok = fd.Body.(*ast.BraceGroup)
	qt.Assert(t, ok, qt.IsTrue)
}

func TestFunctionDefBashStyle(t *testing.T) {
	cmd := firstCommand(t, "function greet { echo hi; }\n")
	fd, ok := cmd.(*ast.FunctionDef)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, fd.Name.Value, qt.Equals, "greet")
	qt.Assert(t, fd.BashStyle, qt.IsTrue)
}

func TestHeredoc(t *testing.T) {
	src := "cat <<EOF\nhello\nworld\nEOF\n"
	cmd := firstCommand(t, src)
	sc, ok := cmd.(*ast.SimpleCommand)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(sc.Redirs), qt.Equals, 1)
	r := sc.Redirs[0]
	qt.Assert(t, r.Op, qt.Equals, ast.RedirHeredoc)
	qt.Assert(t, r.Hdoc.Delim, qt.Equals, "EOF")
	qt.Assert(t, r.Hdoc.StripTabs, qt.IsFalse)
}

func TestHeredocStripTabs(t *testing.T) {
	src := "cat <<-EOF\n\thello\nEOF\n"
	cmd := firstCommand(t, src)
	sc := cmd.(*ast.SimpleCommand)
	qt.Assert(t, sc.Redirs[0].Hdoc.StripTabs, qt.IsTrue)
}

func TestDoubleQuotedWord(t *testing.T) {
	cl, err := ParseProgram([]byte(`echo "hello $name"` + "\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	qt.Assert(t, len(sc.Words), qt.Equals, 2)
	dq, ok := sc.Words[1].Parts[0].(*ast.DblQuoted)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, len(dq.Parts), qt.Equals, 2)
	lit, ok := dq.Parts[0].(*ast.Lit)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, lit.Value, qt.Equals, "hello ")
	qt.Assert(t, lit.Quoted, qt.IsTrue)
	pe, ok := dq.Parts[1].(*ast.ParamExp)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, pe.Short, qt.IsTrue)
	qt.Assert(t, pe.Param.Value, qt.Equals, "name")
}

func TestParamExpansionDefault(t *testing.T) {
	cl, err := ParseProgram([]byte("echo ${name:-anon}\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	pe, ok := sc.Words[1].Parts[0].(*ast.ParamExp)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, pe.Param.Value, qt.Equals, "name")
	qt.Assert(t, pe.Exp.Op, qt.Equals, ast.OpColonMinus)
	qt.Assert(t, litWords(t, []ast.Word{pe.Exp.Word}), qt.DeepEquals, []string{"anon"})
}

func TestParamExpansionLength(t *testing.T) {
	cl, err := ParseProgram([]byte("echo ${#name}\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	pe, ok := sc.Words[1].Parts[0].(*ast.ParamExp)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, pe.Length, qt.IsTrue)
	qt.Assert(t, pe.Param.Value, qt.Equals, "name")
}

func TestCommandSubstitution(t *testing.T) {
	cl, err := ParseProgram([]byte("echo $(ls -la)\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	cs, ok := sc.Words[1].Parts[0].(*ast.CmdSubst)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, cs.Backticks, qt.IsFalse)
	qt.Assert(t, len(cs.Stmts.Stmts), qt.Equals, 1)
}

func TestBacktickSubstitution(t *testing.T) {
	cl, err := ParseProgram([]byte("echo `ls -la`\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	cs, ok := sc.Words[1].Parts[0].(*ast.CmdSubst)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, cs.Backticks, qt.IsTrue)
}

func TestArithmeticExpansion(t *testing.T) {
	cl, err := ParseProgram([]byte("echo $((1 + 2))\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	ax, ok := sc.Words[1].Parts[0].(*ast.ArithExp)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, ax.X, qt.Not(qt.IsNil))
}

func TestEnhancedTest(t *testing.T) {
	cmd := firstCommand(t, `[[ -f foo && "$x" == bar* ]]` + "\n")
	et, ok := cmd.(*ast.EnhancedTest)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, et.X, qt.Not(qt.IsNil))
}

func TestUnexpectedTokenIsSyntaxError(t *testing.T) {
	_, err := ParseProgram([]byte("if true; then\n"), "<test>")
	qt.Assert(t, err, qt.Not(qt.IsNil))
	var se *SyntaxError
	qt.Assert(t, err, qt.ErrorAs, &se)
	qt.Assert(t, se.Incomplete, qt.IsTrue)
}

func TestMismatchedClosingKeywordIsSyntaxError(t *testing.T) {
	_, err := ParseProgram([]byte("while true; do echo x; fi\n"), "<test>")
	qt.Assert(t, err, qt.Not(qt.IsNil))
	var se *SyntaxError
	qt.Assert(t, err, qt.ErrorAs, &se)
}

func TestBraceExpansionParsesAsBraceExp(t *testing.T) {
	cl, err := ParseProgram([]byte("echo {a,b,c}\n"), "<test>")
	qt.Assert(t, err, qt.IsNil)
	sc := cl.Stmts[0].Pipelines[0].Stages[0].(*ast.SimpleCommand)
	_, ok := sc.Words[1].Parts[0].(*ast.BraceExp)
	qt.Assert(t, ok, qt.IsTrue)
}
