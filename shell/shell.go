// Package shell is a small convenience facade tying the lexer, parser,
// expansion engine and executor together, mirroring the teacher's own
// top-level shell package: most callers embedding this module want one of
// "expand this string", "run this script", or "run this command string",
// not direct access to every subsystem.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"possh/ast"
	"possh/expand"
	"possh/interp"
	"possh/parser"
)

// Expand performs shell word expansion on s using env to resolve
// variables, returning the joined result of the first command word it
// parses. Command substitution ($(...)) is not supported here, since this
// path never forks a Runner to execute arbitrary commands; use RunString
// if that needs to work.
func Expand(s string, env func(string) string) (string, error) {
	fields, err := Fields(s, env)
	if err != nil {
		return "", err
	}
	return strings.Join(fields, " "), nil
}

// Fields is like Expand but returns the separate fields produced by word
// splitting and pathname expansion instead of joining them.
func Fields(s string, env func(string) string) ([]string, error) {
	cl, err := parser.ParseProgram([]byte(s), "<expand>")
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = func(string) string { return "" }
	}
	var ferr error
	cfg := &expand.Context{
		Env: funcEnviron(env),
		OnError: func(e error) {
			if ferr == nil {
				ferr = e
			}
		},
	}
	fields := cfg.ExpandFields(context.Background(), firstWords(cl)...)
	return fields, ferr
}

// firstWords returns the word list of the first simple command in cl, or
// nil if cl is empty or its first command isn't a simple command (e.g.
// a bare compound construct has no argv-style word list to expand).
func firstWords(cl *ast.CommandList) []ast.Word {
	if cl == nil || len(cl.Stmts) == 0 {
		return nil
	}
	ao := cl.Stmts[0]
	if len(ao.Pipelines) == 0 || len(ao.Pipelines[0].Stages) == 0 {
		return nil
	}
	sc, ok := ao.Pipelines[0].Stages[0].(*ast.SimpleCommand)
	if !ok {
		return nil
	}
	return sc.Words
}

// funcEnviron adapts a plain os.Getenv-shaped lookup function to
// expand.Environ, treating every name as exported and set whenever env
// returns a non-empty string (empty values read as unset, matching the
// teacher's shell.Expand doc comment).
type funcEnviron func(string) string

func (f funcEnviron) Get(name string) expand.Variable {
	v := f(name)
	if v == "" {
		return expand.Variable{}
	}
	return expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: v}
}

func (f funcEnviron) Each(func(name string, vr expand.Variable) bool) {}

// RunString parses and executes src as a full shell program against a
// fresh Runner, returning the Runner's exit status. stdout/stderr may be
// nil, in which case that stream is discarded.
func RunString(ctx context.Context, src, name string, stdout, stderr io.Writer, args ...string) (int, error) {
	cl, err := parser.ParseProgram([]byte(src), name)
	if err != nil {
		return 2, fmt.Errorf("possh: %s: %w", name, err)
	}
	r := interp.New()
	r.SetStdio(os.Stdin, discardable(stdout), discardable(stderr))
	r.SetParams(name, args)
	runErr := r.Run(ctx, cl)
	return interp.ExitCodeOf(runErr), runErr
}

func discardable(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
