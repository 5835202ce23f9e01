package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"possh/ast"
	"possh/expand"
	"possh/pattern"
)

func (r *Runner) andOr(ctx context.Context, ao *ast.AndOr) error {
	var status int
	lastRun := -1
	for i, p := range ao.Pipelines {
		if i > 0 {
			switch ao.Ops[i-1] {
			case ast.AndOrAnd:
				if status != 0 {
					continue
				}
			case ast.AndOrOr:
				if status == 0 {
					continue
				}
			}
		}
		if p.Background {
			r.background(ctx, p, pipelineLabel(p))
			status = 0
			lastRun = i
			continue
		}
		var err error
		status, err = r.pipeline(ctx, p)
		if err != nil {
			return err
		}
		lastRun = i
	}
	r.lastExit = status
	if status != 0 && r.opts[OptErrExit] && !r.errexitSuppressed(ao, lastRun) {
		return &ExitError{Code: status}
	}
	return nil
}

// errexitSuppressed implements the POSIX carve-out for errexit: a
// pipeline that is any non-final operand of a && / || chain never
// triggers it, even when it is the one whose failure short-circuited
// the rest of the chain. Only a failure in the textually last pipeline
// of the AndOr can trigger errexit here; the if/while/until condition
// carve-out is handled separately by runCond, which suspends errexit
// for the whole condition rather than calling andOr's own check.
func (r *Runner) errexitSuppressed(ao *ast.AndOr, lastRun int) bool {
	return lastRun != len(ao.Pipelines)-1
}

func (r *Runner) pipeline(ctx context.Context, p *ast.Pipeline) (int, error) {
	if r.realPipelineEligible(p) {
		j, err := r.buildRealPipeline(ctx, p, false)
		if err != nil {
			fmt.Fprintf(r.errOut(), "possh: %v\n", err)
			return 127, nil
		}
		last := r.jobs.WaitForeground(j)
		if p.PipeAll {
			for _, proc := range j.Procs {
				if proc.Status != 0 {
					last = proc.Status
				}
			}
		}
		if r.opts[OptPipeFail] {
			for _, proc := range j.Procs {
				if proc.Status != 0 {
					last = proc.Status
					break
				}
			}
		}
		if p.Negated {
			last = negate(last)
		}
		return last, nil
	}

	if len(p.Stages) == 1 {
		status, err := r.command(ctx, p.Stages[0])
		if p.Negated {
			status = negate(status)
		}
		return status, err
	}

	statuses := make([]int, len(p.Stages))
	g, gctx := errgroup.WithContext(ctx)
	var readers []io.ReadCloser
	var writers []io.WriteCloser
	stageRunners := make([]*Runner, len(p.Stages))

	var prevR io.ReadCloser
	for i, stage := range p.Stages {
		sub := r.subshell()
		stageRunners[i] = sub
		if i > 0 {
			sub.fds = sub.fds.clone()
			sub.fds.in = prevR
		}
		if i < len(p.Stages)-1 {
			pr, pw := io.Pipe()
			sub.fds = sub.fds.clone()
			sub.fds.out = pw
			readers = append(readers, pr)
			writers = append(writers, pw)
			prevR = pr
		}
	}
	for i, stage := range p.Stages {
		i, stage := i, stage
		sub := stageRunners[i]
		g.Go(func() error {
			if i > 0 {
				defer readers[i-1].Close()
			}
			status, err := sub.command(gctx, stage)
			if i < len(p.Stages)-1 {
				writers[i].Close()
			}
			statuses[i] = status
			return err
		})
	}
	err := g.Wait()
	last := statuses[len(statuses)-1]
	if p.PipeAll {
		for _, s := range statuses {
			if s != 0 {
				last = s
			}
		}
	}
	if r.opts[OptPipeFail] {
		for _, s := range statuses {
			if s != 0 {
				last = s
				break
			}
		}
	}
	if p.Negated {
		last = negate(last)
	}
	return last, err
}

// pipelineLabel produces a best-effort display string for the jobs
// builtin; it is not a faithful re-serialization of the source.
func pipelineLabel(p *ast.Pipeline) string {
	if len(p.Stages) == 0 {
		return ""
	}
	sc, ok := p.Stages[0].(*ast.SimpleCommand)
	if !ok || len(sc.Words) == 0 {
		return "pipeline"
	}
	name := sc.Words[0].Lit()
	if name == "" {
		name = "command"
	}
	if len(p.Stages) > 1 {
		return name + " | ..."
	}
	return name
}

func negate(status int) int {
	if status == 0 {
		return 1
	}
	return 0
}

func (r *Runner) command(ctx context.Context, cmd ast.Command) (int, error) {
	finish, err := r.applyRedirects(ctx, cmd.Redirects())
	if err != nil {
		fmt.Fprintf(r.errOut(), "possh: %v\n", err)
		return 1, nil
	}
	ok := true
	status, rerr := r.dispatch(ctx, cmd)
	if rerr != nil {
		ok = false
	}
	finish(ok)
	return status, rerr
}

func (r *Runner) dispatch(ctx context.Context, cmd ast.Command) (int, error) {
	switch x := cmd.(type) {
	case *ast.SimpleCommand:
		return r.simpleCommand(ctx, x)
	case *ast.If:
		return r.ifStmt(ctx, x)
	case *ast.While:
		return r.whileStmt(ctx, x)
	case *ast.For:
		return r.forStmt(ctx, x)
	case *ast.Case:
		return r.caseStmt(ctx, x)
	case *ast.Subshell:
		return r.subshellStmt(ctx, x)
	case *ast.BraceGroup:
		return r.runBody(ctx, x.Body)
	case *ast.FunctionDef:
		r.Funcs[x.Name.Value] = x
		return 0, nil
	case *ast.ArithCmd:
		n, err := r.expandCfg(ctx).Arithm(ctx, x.X)
		r.expandErr(err)
		if n == 0 {
			return 1, nil
		}
		return 0, nil
	case *ast.EnhancedTest:
		return r.testExpr(ctx, x.X)
	case *ast.Select:
		return r.selectStmt(ctx, x)
	default:
		return 0, fmt.Errorf("unsupported command: %T", cmd)
	}
}

func (r *Runner) runBody(ctx context.Context, cl *ast.CommandList) (int, error) {
	if err := r.Run(ctx, cl); err != nil {
		if _, ok := err.(*ExitError); ok {
			return err.(*ExitError).Code, err
		}
		return r.lastExit, err
	}
	return r.lastExit, nil
}

// runCond runs a CommandList used as a boolean condition (if/while/until)
// with errexit suppressed, matching the POSIX carve-out for conditions.
func (r *Runner) runCond(ctx context.Context, cl *ast.CommandList) int {
	saved := r.opts[OptErrExit]
	r.opts[OptErrExit] = false
	status, _ := r.runBody(ctx, cl)
	r.opts[OptErrExit] = saved
	return status
}

func (r *Runner) ifStmt(ctx context.Context, s *ast.If) (int, error) {
	if r.runCond(ctx, s.Cond) == 0 {
		return r.runBody(ctx, s.Then)
	}
	for _, elif := range s.Elifs {
		if r.runCond(ctx, elif.Cond) == 0 {
			return r.runBody(ctx, elif.Then)
		}
	}
	if s.Else != nil {
		return r.runBody(ctx, s.Else)
	}
	return 0, nil
}

func (r *Runner) whileStmt(ctx context.Context, s *ast.While) (int, error) {
	status := 0
	for {
		cond := r.runCond(ctx, s.Cond)
		if s.Until {
			if cond == 0 {
				break
			}
		} else if cond != 0 {
			break
		}
		st, err := r.runBody(ctx, s.Body)
		status = st
		if err != nil {
			if ls, ok := err.(loopSignal); ok {
				if ls.kind == loopBreak {
					if ls.n > 1 {
						return status, loopSignal{kind: loopBreak, n: ls.n - 1}
					}
					break
				}
				if ls.n > 1 {
					return status, loopSignal{kind: loopContinue, n: ls.n - 1}
				}
				continue
			}
			return status, err
		}
	}
	return status, nil
}

func (r *Runner) forStmt(ctx context.Context, s *ast.For) (int, error) {
	status := 0
	run := func() (bool, error) {
		st, err := r.runBody(ctx, s.Body)
		status = st
		if err != nil {
			if ls, ok := err.(loopSignal); ok {
				if ls.kind == loopBreak {
					if ls.n > 1 {
						return true, loopSignal{kind: loopBreak, n: ls.n - 1}
					}
					return true, nil
				}
				if ls.n > 1 {
					return false, loopSignal{kind: loopContinue, n: ls.n - 1}
				}
				return false, nil
			}
			return true, err
		}
		return false, nil
	}
	switch loop := s.Loop.(type) {
	case *ast.WordIter:
		items := r.params
		if loop.HasIn {
			items = r.expandCfg(ctx).ExpandFields(ctx, loop.List...)
		}
		for _, item := range items {
			r.scope.Set(loop.Name.Value, expand.Variable{Set: true, Kind: expand.String, Str: item})
			stop, err := run()
			if stop {
				return status, err
			}
		}
	case *ast.CStyleFor:
		cfg := r.expandCfg(ctx)
		if loop.Init != nil {
			cfg.Arithm(ctx, loop.Init)
		}
		for loop.Cond == nil || mustNonZero(cfg.Arithm(ctx, loop.Cond)) {
			stop, err := run()
			if stop {
				return status, err
			}
			if loop.Post != nil {
				cfg.Arithm(ctx, loop.Post)
			}
		}
	}
	return status, nil
}

func mustNonZero(n int64, err error) bool { return err == nil && n != 0 }

func (r *Runner) selectStmt(ctx context.Context, s *ast.Select) (int, error) {
	items := r.expandCfg(ctx).ExpandFields(ctx, s.List...)
	for {
		for i, item := range items {
			fmt.Fprintf(r.errOut(), "%d) %s\n", i+1, item)
		}
		ps3 := r.scope.Get("PS3").String()
		if ps3 == "" {
			ps3 = "#? "
		}
		fmt.Fprint(r.errOut(), ps3)
		var line string
		if _, err := fmt.Fscanln(r.in(), &line); err != nil {
			return 0, nil
		}
		n, _ := strconv.Atoi(line)
		reply := ""
		if n >= 1 && n <= len(items) {
			reply = items[n-1]
		}
		r.scope.Set(s.Name.Value, expand.Variable{Set: true, Kind: expand.String, Str: reply})
		r.scope.Set("REPLY", expand.Variable{Set: true, Kind: expand.String, Str: line})
		status, err := r.runBody(ctx, s.Body)
		if err != nil {
			if ls, ok := err.(loopSignal); ok && ls.kind == loopBreak {
				return status, nil
			}
			return status, err
		}
	}
}

func (r *Runner) caseStmt(ctx context.Context, s *ast.Case) (int, error) {
	cfg := r.expandCfg(ctx)
	word := cfg.ExpandLiteral(ctx, &s.Word)
	status, matched := 0, false
	for _, item := range s.Items {
		for _, pw := range item.Patterns {
			if matched {
				break
			}
			pat := cfg.ExpandPattern(ctx, &pw)
			ok, err := pattern.Match(pat, word)
			matched = err == nil && ok
		}
		if !matched {
			continue
		}
		st, err := r.runBody(ctx, item.Body)
		if err != nil || item.Term == ast.CaseBreak {
			return st, err
		}
		status, matched = st, item.Term == ast.CaseFallthrough
	}
	return status, nil
}

func (r *Runner) subshellStmt(ctx context.Context, s *ast.Subshell) (int, error) {
	sub := r.subshell()
	err := sub.Run(ctx, s.Body)
	r.lastExit = sub.lastExit
	if err != nil {
		if ee, ok := err.(*ExitError); ok {
			return ee.Code, nil
		}
		return sub.lastExit, err
	}
	return sub.lastExit, nil
}

func (r *Runner) simpleCommand(ctx context.Context, sc *ast.SimpleCommand) (int, error) {
	cfg := r.expandCfg(ctx)
	if len(sc.Words) == 0 {
		for _, a := range sc.Assigns {
			r.applyAssign(ctx, a)
		}
		return 0, nil
	}

	args := cfg.ExpandFields(ctx, sc.Words...)
	if len(args) == 0 {
		return 0, nil
	}
	name := args[0]

	if alias, ok := r.Aliases[name]; ok {
		args = append(strings.Fields(alias), args[1:]...)
		name = args[0]
	}

	// prefix assignments on a special builtin stay in effect after it;
	// every other command sees them only for its own duration. For
	// `name=val` with no words they already applied above.
	switch name {
	case "exit", "return", "set", ":", ".", "source", "exec", "eval",
		"export", "readonly", "shift", "trap", "unset", "break", "continue":
		for _, a := range sc.Assigns {
			r.applyAssign(ctx, a)
		}
	default:
		restore := r.pushTempAssigns(ctx, cfg, sc.Assigns)
		defer restore()
	}

	if fn, ok := r.Funcs[name]; ok {
		return r.callFunc(ctx, fn, args[1:])
	}
	if b, ok := builtins[name]; ok {
		r.traceBuiltin(name, args[1:])
		return b(ctx, r, args[1:])
	}
	return r.execExternal(ctx, args)
}

func (r *Runner) applyAssign(ctx context.Context, a *ast.Assign) {
	cfg := r.expandCfg(ctx)
	val := cfg.ExpandLiteral(ctx, &a.Value)
	old := r.scope.Get(a.Name.Value)
	if a.Append {
		val = old.String() + val
	}
	exported := r.exportedFor(old)
	r.scope.Set(a.Name.Value, expand.Variable{Set: true, Exported: exported, Kind: expand.String, Str: val})
	r.traceAssign(a.Name.Value, val)
}

// exportedFor decides whether an assignment's new value should carry the
// Exported bit: either "set -a" (allexport) is on, or the variable was
// already exported, in which case re-assigning it must not silently drop
// it from the child-process environment.
func (r *Runner) exportedFor(old expand.Variable) bool {
	return r.opts[OptAllExport] || old.Exported
}

// pushTempAssigns applies the assignment prefix of a simple command
// (e.g. "FOO=$HOME cmd") for the duration of that one command only,
// returning a func that restores whatever was shadowed. Values are
// expanded the same way a standalone assignment is (spec.md §4.E:
// "expand assignments ... then ... expand argv"), not taken as a raw
// literal, so "$HOME", "$PATH"-style concatenation, and quoted
// multi-word values all expand correctly here too.
func (r *Runner) pushTempAssigns(ctx context.Context, cfg *expand.Context, assigns []*ast.Assign) func() {
	if len(assigns) == 0 {
		return func() {}
	}
	type saved struct {
		name string
		vr   expand.Variable
		had  bool
	}
	var prior []saved
	for _, a := range assigns {
		old := r.scope.Get(a.Name.Value)
		prior = append(prior, saved{name: a.Name.Value, vr: old, had: old.Declared()})
		val := cfg.ExpandLiteral(ctx, &a.Value)
		if a.Append {
			val = old.String() + val
		}
		exported := r.exportedFor(old)
		r.scope.Set(a.Name.Value, expand.Variable{Set: true, Exported: exported, Kind: expand.String, Str: val})
	}
	return func() {
		for _, s := range prior {
			r.scope.Set(s.name, s.vr)
		}
	}
}

func (r *Runner) callFunc(ctx context.Context, fn *ast.FunctionDef, args []string) (int, error) {
	savedParams, savedName := r.params, r.name
	r.params, r.name = args, fn.Name.Value
	savedScope := r.scope
	r.scope = newScope(r.scope)
	r.funcDepth++
	defer func() {
		r.funcDepth--
		r.scope = savedScope
		r.params, r.name = savedParams, savedName
	}()
	status, err := r.command(ctx, fn.Body)
	if rs, ok := err.(returnSignal); ok {
		return rs.code, nil
	}
	return status, err
}

func (r *Runner) execExternal(ctx context.Context, args []string) (int, error) {
	if r.Exec != nil {
		err := r.Exec(ctx, r, args)
		return r.exitCodeOf(err), err
	}
	cmd, err := r.buildExternalCmd(ctx, args)
	if err != nil {
		fmt.Fprintf(r.errOut(), "%s: command not found\n", args[0])
		return 127, nil
	}
	r.traceExec(args)
	j, err := r.jobs.StartPipeline([]*exec.Cmd{cmd}, false, args[0])
	if err != nil {
		fmt.Fprintf(r.errOut(), "possh: %v\n", err)
		return 126, nil
	}
	return r.jobs.WaitForeground(j), nil
}

// buildExternalCmd resolves argv[0] on PATH and wires up an *exec.Cmd
// against the current fd table and environment without starting it, so
// both a foreground execExternal and a backgrounded job.Table pipeline
// can share the exact same process setup.
func (r *Runner) buildExternalCmd(ctx context.Context, args []string) (*exec.Cmd, error) {
	path, err := exec.LookPath(args[0])
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = execEnv(r.Env())
	cmd.Stdin = r.in()
	cmd.Stdout = r.out()
	cmd.Stderr = r.errOut()
	return cmd, nil
}

func (r *Runner) exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return 1
}
