package interp

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"possh/ast"
	"possh/interp/job"
)

// bgJob is a backgrounded pipeline ("cmd &"). Pipelines whose every
// stage is a single external command are also registered with the
// job.Table so fg/bg can send real signals to them; everything else
// (builtins, compound commands, function calls) backgrounds at the Go
// level only, tracked here for wait/jobs/$!.
type bgJob struct {
	id     int
	pid    int
	real   *job.Job
	done   chan struct{}
	status int
	label  string
}

func (r *Runner) background(ctx context.Context, p *ast.Pipeline, label string) {
	bj := &bgJob{id: len(r.bgJobs) + 1, done: make(chan struct{}), label: label}
	r.bgJobs = append(r.bgJobs, bj)

	if r.realPipelineEligible(p) {
		if real, err := r.buildRealPipeline(ctx, p, true); err == nil {
			bj.real = real
			bj.pid = real.Pgid
			r.lastBgPid = real.Pgid
			go func() {
				bj.status = r.jobs.Wait(real)
				close(bj.done)
			}()
			return
		}
	}

	r.lastBgPid = bj.id
	go func() {
		status, _ := r.pipeline(ctx, p)
		bj.status = status
		close(bj.done)
	}()
}

// realPipelineEligible reports whether every stage of p is a plain
// external command — no alias, function, or builtin overriding its
// name, and no compound construct — purely from each stage's literal
// command word, so classifying never itself expands or runs anything.
// Only once every stage passes this check does a pipeline commit to
// buildRealPipeline's real-process path (see its own doc comment for
// why the two are kept as separate steps).
func (r *Runner) realPipelineEligible(p *ast.Pipeline) bool {
	if r.Exec != nil {
		return false
	}
	for _, stage := range p.Stages {
		sc, ok := stage.(*ast.SimpleCommand)
		if !ok || len(sc.Words) == 0 {
			return false
		}
		name := sc.Words[0].Lit()
		if name == "" {
			return false
		}
		if _, ok := r.Aliases[name]; ok {
			return false
		}
		if _, ok := r.Funcs[name]; ok {
			return false
		}
		if _, ok := builtins[name]; ok {
			return false
		}
	}
	return true
}

// buildRealPipeline expands every stage of p and starts it as a real OS
// process under job.Table, wiring one pipe per adjacent stage pair and
// (when background is false) leaving terminal-transfer and PGID
// assignment to StartPipeline. The caller must have already confirmed
// realPipelineEligible: expansion here has real side effects (command
// substitution can run arbitrary commands, redirects can create files),
// so it must only ever run once committed — classification happens
// first, against literal text alone, precisely so this never has to
// unwind a partially-expanded stage and fall back to re-expanding it a
// second time through the in-process path.
func (r *Runner) buildRealPipeline(ctx context.Context, p *ast.Pipeline, background bool) (*job.Job, error) {
	cmds := make([]*exec.Cmd, 0, len(p.Stages))
	var prevR io.ReadCloser
	for i, stage := range p.Stages {
		sc := stage.(*ast.SimpleCommand)
		sub := r.subshell()
		cfg := sub.expandCfg(ctx)
		args := cfg.ExpandFields(ctx, sc.Words...)
		if len(args) == 0 {
			return nil, fmt.Errorf("empty command in pipeline")
		}
		restoreAssigns := sub.pushTempAssigns(ctx, cfg, sc.Assigns)
		defer restoreAssigns()
		finish, err := sub.applyRedirects(ctx, sc.Redirects())
		if err != nil {
			return nil, err
		}
		defer finish(true)
		cmd, err := sub.buildExternalCmd(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("%s: command not found", args[0])
		}
		if i > 0 {
			cmd.Stdin = prevR
		}
		if i < len(p.Stages)-1 {
			pr, pw := io.Pipe()
			cmd.Stdout = pw
			prevR = pr
		}
		cmds = append(cmds, cmd)
	}
	return r.jobs.StartPipeline(cmds, background, pipelineLabel(p))
}

// waitFor blocks until the tracked background job whose job id or pid
// equals id has finished and returns its status (a job that already
// finished keeps its status); the bool is false when no such job exists.
func (r *Runner) waitFor(id int) (int, bool) {
	for _, bj := range r.bgJobs {
		if bj.id != id && bj.pid != id {
			continue
		}
		<-bj.done
		return bj.status, true
	}
	return 0, false
}

func (r *Runner) waitAll() int {
	status := 0
	for _, bj := range r.bgJobs {
		<-bj.done
		status = bj.status
	}
	return status
}

func (r *Runner) printJobs(out func(string)) {
	for i, bj := range r.bgJobs {
		state := "Running"
		select {
		case <-bj.done:
			state = "Done"
		default:
		}
		marker := " "
		if i == len(r.bgJobs)-1 {
			marker = "+"
		}
		out(fmt.Sprintf("[%d]%s  %-8s %s", bj.id, marker, state, bj.label))
	}
}
