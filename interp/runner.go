// Package interp walks a parsed command list and executes it: variable
// assignment, pipelines, control-flow commands, builtins and external
// processes, wired to the I/O redirection and job-control layers.
package interp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"possh/ast"
	"possh/expand"
	"possh/interp/job"
)

// Opt names an on/off shell option (the "set -o name" table).
type Opt uint

const (
	OptErrExit Opt = iota
	OptNoUnset
	OptPipeFail
	OptXTrace
	OptNoGlob
	OptNoClobber
	OptMonitor
	OptVerbose
	OptAllExport
	OptDotGlob
	OptNullGlob
	optCount
)

var optNames = map[Opt]string{
	OptErrExit:   "errexit",
	OptNoUnset:   "nounset",
	OptPipeFail:  "pipefail",
	OptXTrace:    "xtrace",
	OptNoGlob:    "noglob",
	OptNoClobber: "noclobber",
	OptMonitor:   "monitor",
	OptVerbose:   "verbose",
	OptAllExport: "allexport",
	OptDotGlob:   "dotglob",
	OptNullGlob:  "nullglob",
}

// Runner holds all state for one shell instance: the variable scope
// stack, function and alias tables, positional parameters, options and
// the file descriptor table used by redirection.
type Runner struct {
	topScope *scopeEnviron
	scope    *scopeEnviron

	Funcs   map[string]*ast.FunctionDef
	Aliases map[string]string

	opts [optCount]bool

	params []string // $1, $2, ...
	name   string   // $0

	lastExit   int // $?
	lastBgPid  int // $!
	shellPid   int // $$

	Dir string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	fds *fdTable

	// Exec, when set, replaces the default os/exec process launcher; used
	// by tests to stub external commands.
	Exec func(ctx context.Context, r *Runner, args []string) error

	jobs   *job.Table
	bgJobs []*bgJob

	funcDepth int

	trace *tracer
}

// New creates a Runner seeded from the process environment and standard
// streams; use SetStdio, SetParams and SetOpt to override before the
// first Run call.
func New() *Runner {
	r := &Runner{
		Funcs:    make(map[string]*ast.FunctionDef),
		Aliases:  make(map[string]string),
		topScope: envFromList(os.Environ()),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		shellPid: os.Getpid(),
	}
	r.scope = r.topScope
	r.fds = newFdTable(r.stdin, r.stdout, r.stderr)
	r.jobs = job.NewTable()
	r.trace = newTracer(r.stderr)
	if os.Getenv("POSSH_DEBUG") != "" {
		r.opts[OptXTrace] = true
	}
	if wd, err := os.Getwd(); err == nil {
		r.Dir = wd
	}
	return r
}

// Context derives a context canceled when the shell process receives
// SIGINT or SIGTERM, for cmd/possh's top-level loop to select on.
func (r *Runner) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return r.jobs.Context(parent)
}

func (r *Runner) SetOpt(o Opt, v bool) { r.opts[o] = v }
func (r *Runner) Opt(o Opt) bool       { return r.opts[o] }

// SetOptByName implements the "set -o name" / "set +o name" spelling.
func (r *Runner) SetOptByName(name string, v bool) bool {
	for o, n := range optNames {
		if n == name {
			r.opts[o] = v
			return true
		}
	}
	return false
}

func (r *Runner) SetStdio(in io.Reader, out, err io.Writer) {
	r.stdin, r.stdout, r.stderr = in, out, err
	r.fds = newFdTable(in, out, err)
}

// out, errOut and in resolve the active fd table's stdout/stderr/stdin
// for the command currently running, so builtins observe the same
// per-command redirection external commands get via buildExternalCmd
// instead of writing straight past it to the runner's base streams.
func (r *Runner) out() io.Writer    { return r.fds.writer(1) }
func (r *Runner) errOut() io.Writer { return r.fds.writer(2) }
func (r *Runner) in() io.Reader     { return r.fds.reader(0) }

func (r *Runner) SetParams(name string, args []string) {
	r.name = name
	r.params = args
}

// Env exposes the active scope as an expand.WriteEnviron, including the
// special parameters that expand looks up by name.
func (r *Runner) Env() expand.WriteEnviron { return specialEnv{r} }

// specialEnv layers $?, $$, $!, $#, $0..$N, $@ and $* on top of
// the plain variable scope, without polluting scopeEnviron with
// shell-specific knowledge.
type specialEnv struct{ r *Runner }

func (e specialEnv) Get(name string) expand.Variable {
	r := e.r
	switch name {
	case "?":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(r.lastExit)}
	case "$":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(r.shellPid)}
	case "!":
		if r.lastBgPid == 0 {
			return expand.Variable{}
		}
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(r.lastBgPid)}
	case "#":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(len(r.params))}
	case "0":
		return expand.Variable{Set: true, Kind: expand.String, Str: r.name}
	case "@", "*":
		return expand.Variable{Set: true, Kind: expand.Indexed, List: r.params}
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		if n <= len(r.params) {
			return expand.Variable{Set: true, Kind: expand.String, Str: r.params[n-1]}
		}
		return expand.Variable{}
	}
	return r.scope.Get(name)
}

func (e specialEnv) Set(name string, vr expand.Variable) error {
	switch name {
	case "?", "$", "!", "#", "@", "*":
		return fmt.Errorf("%s: cannot assign", name)
	}
	if _, err := strconv.Atoi(name); err == nil {
		return fmt.Errorf("%s: cannot assign", name)
	}
	return e.r.scope.Set(name, vr)
}

func (e specialEnv) Each(fn func(name string, vr expand.Variable) bool) {
	e.r.scope.Each(fn)
}

func (r *Runner) expandCfg(ctx context.Context) *expand.Context {
	return &expand.Context{
		Env:      r.Env(),
		NoGlob:   r.opts[OptNoGlob],
		GlobStar: false,
		DotGlob:  r.opts[OptDotGlob],
		NullGlob: r.opts[OptNullGlob],
		Subshell: r.cmdSubst,
		OnError:  r.expandErr,
	}
}

func (r *Runner) expandErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(r.errOut(), "possh: %v\n", err)
	if r.opts[OptNoUnset] {
		if _, ok := err.(expand.UnsetParameterError); ok {
			r.lastExit = 1
		}
	}
}

// cmdSubst runs a command list in a copy of the current shell state,
// capturing stdout into buf; it backs $(...) and `...`.
func (r *Runner) cmdSubst(ctx context.Context, buf *strings.Builder, stmts *ast.CommandList) {
	sub := r.subshell()
	sub.stdout = buf
	sub.fds = r.fds.withStdout(buf)
	sub.Run(ctx, stmts)
}

// subshell returns a Runner forked from this one: variables, functions
// and aliases are copied into fresh maps, so writes and new definitions
// made inside the subshell (including a function defined for the first
// time inside `( )`) never propagate back out to the parent.
func (r *Runner) subshell() *Runner {
	sub := *r
	cp := newScope(nil)
	r.scope.Each(func(name string, vr expand.Variable) bool {
		cp.values[name] = vr
		return true
	})
	sub.scope = cp
	sub.topScope = cp

	sub.Funcs = make(map[string]*ast.FunctionDef, len(r.Funcs))
	for name, fn := range r.Funcs {
		sub.Funcs[name] = fn
	}
	sub.Aliases = make(map[string]string, len(r.Aliases))
	for name, alias := range r.Aliases {
		sub.Aliases[name] = alias
	}
	return &sub
}

// Run executes a parsed command list to completion, keeping each
// command's exit status as $?; it returns nil when the list runs to its
// end. A script-ending `exit` surfaces as *ExitError.
func (r *Runner) Run(ctx context.Context, cl *ast.CommandList) error {
	if cl == nil {
		return nil
	}
	for _, ao := range cl.Stmts {
		if err := r.andOr(ctx, ao); err != nil {
			return err
		}
	}
	return nil
}

// ExitError is returned by Run when the script invoked `exit`, so a
// caller (cmd/possh) can distinguish it from an execution error.
type ExitError struct{ Code int }

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCodeOf maps the error Run returns into a process exit code, the
// same translation cmd/possh's main applies after calling Run directly:
// nil is 0, *ExitError carries its own code, anything else is a generic
// failure per spec.md §6's "1 general failure".
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*ExitError); ok {
		return ee.Code
	}
	return 1
}

// returnSignal unwinds a function body back to its call site.
type returnSignal struct{ code int }

func (returnSignal) Error() string { return "return" }

// loopSignal unwinds break/continue through nested loop bodies; N is
// decremented at each loop boundary until it reaches zero.
type loopSignal struct {
	kind loopKind
	n    int
}

type loopKind uint8

const (
	loopBreak loopKind = iota
	loopContinue
)

func (l loopSignal) Error() string { return "loop control" }
