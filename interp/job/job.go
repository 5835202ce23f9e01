// Package job tracks background and stopped process groups and drives
// the terminal-transfer and reaping logic a job-control shell needs.
package job

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// State is one process's or one job's run state.
type State uint8

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Running"
	}
}

// Proc is one forked process inside a job.
type Proc struct {
	Cmd    *exec.Cmd
	Pid    int
	State  State
	Status int
}

// Job is a pipeline or single command running (or finished) in its own
// process group, addressable by shell job-control commands.
type Job struct {
	ID      int
	Pgid    int
	Procs   []*Proc
	Command string
	State   State
	Current bool
}

// Table owns the job list and the SIGCHLD-driven reaper. Go's channel
// delivery for os/signal already does the work a self-pipe buys a C
// program: the OS signal handler only enqueues, and this goroutine (not
// a signal context) does the actual waitpid/state work.
type Table struct {
	mu      sync.Mutex
	jobs    []*Job
	nextID  int
	sigchld chan os.Signal
	// changed is pulsed by reapLoop after every state update. Wait
	// listens here instead of on sigchld directly: a Go channel
	// delivers each value to exactly one receiver, so if Wait and
	// reapLoop both read sigchld, reapAll's winning receive can starve
	// Wait forever once no further children exit. A non-blocking,
	// buffered pulse channel lets any number of waiters poll without
	// racing reapLoop for the underlying OS signal.
	changed chan struct{}

	// cancelSig relays SIGINT/SIGTERM for Context's cancellation, kept
	// as this table's own registration (rather than a one-off
	// signal.NotifyContext at the call site) so resetChildSignals can
	// pause and resume exactly this subscription around a fork instead
	// of clobbering it with an unrelated signal.Reset.
	cancelSig chan os.Signal

	ttyFd     int
	shellPgid int
	hasTerm   bool
}

func NewTable() *Table {
	t := &Table{
		nextID:    1,
		sigchld:   make(chan os.Signal, 8),
		changed:   make(chan struct{}, 1),
		cancelSig: make(chan os.Signal, 1),
	}
	signal.Notify(t.sigchld, syscall.SIGCHLD)
	signal.Notify(t.cancelSig, syscall.SIGINT, syscall.SIGTERM)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.ttyFd = int(os.Stdin.Fd())
		t.hasTerm = true
		if pgid, err := unix.IoctlGetInt(t.ttyFd, unix.TIOCGPGRP); err == nil {
			t.shellPgid = pgid
		}
	}
	go t.reapLoop()
	return t
}

// Context derives a context from parent that is canceled when the shell
// process receives SIGINT or SIGTERM, for the top-level read-eval loop
// to select on. Sourcing it from the same channel resetChildSignals
// pauses/resumes means a fork never permanently drops this
// subscription the way an unrelated signal.Reset call would.
func (t *Table) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.cancelSig:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// childResetSignals are the dispositions spec.md's "Fork model" requires
// a child that will exec to start with, regardless of whatever the
// shell process itself currently has them set to.
var childResetSignals = []os.Signal{
	syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM,
	syscall.SIGTSTP, syscall.SIGTTIN, syscall.SIGTTOU, syscall.SIGPIPE,
}

// resetChildSignals is the one place every fork site in this package
// routes through to apply that policy. It stops this table's own
// SIGINT/SIGTERM relay first so the Reset below doesn't silently carry
// off Context's subscription along with it, then hands back a restore
// func that re-arms the relay once the caller's Start calls (the actual
// fork point, synchronous from here) have returned.
func (t *Table) resetChildSignals() func() {
	signal.Stop(t.cancelSig)
	signal.Reset(childResetSignals...)
	return func() {
		signal.Notify(t.cancelSig, syscall.SIGINT, syscall.SIGTERM)
	}
}

func (t *Table) reapLoop() {
	for range t.sigchld {
		t.reapAll()
	}
}

// reapAll drains every pending child status without blocking, matching
// "loop on waitpid(WNOHANG) until no children remain" rather than
// assuming one SIGCHLD means one exited child.
func (t *Table) reapAll() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if pid <= 0 || err != nil {
			return
		}
		t.updateProc(pid, ws)
		t.notifyChanged()
	}
}

func (t *Table) notifyChanged() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

func (t *Table) updateProc(pid int, ws unix.WaitStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		for _, p := range j.Procs {
			if p.Pid != pid {
				continue
			}
			switch {
			case ws.Exited():
				p.State, p.Status = Done, ws.ExitStatus()
			case ws.Signaled():
				p.State, p.Status = Done, 128+int(ws.Signal())
			case ws.Stopped():
				p.State = Stopped
			case ws.Continued():
				p.State = Running
			}
			j.recompute()
			return
		}
	}
}

func (j *Job) recompute() {
	allDone, anyStopped, anyRunning := true, false, false
	for _, p := range j.Procs {
		switch p.State {
		case Done:
		case Stopped:
			allDone, anyStopped = false, true
		case Running:
			allDone, anyRunning = false, true
		}
	}
	switch {
	case allDone:
		j.State = Done
	case anyRunning:
		j.State = Running
	case anyStopped:
		j.State = Stopped
	}
}

// StartPipeline starts one job from an ordered list of not-yet-started
// commands, assigning the first to lead its own process group and every
// subsequent one to join it. Go's exec.Cmd sets a child's pgid inside
// the forked child before it execs (via SysProcAttr.Setpgid/Pgid), which
// is what the sync-pipe rendezvous exists to guarantee in a raw fork/exec
// shell; no extra coordination pipe is needed here.
func (t *Table) StartPipeline(cmds []*exec.Cmd, background bool, label string) (*Job, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("job: empty pipeline")
	}
	restore := t.resetChildSignals()
	defer restore()

	j := &Job{Command: label}
	var leaderPid int
	for i, cmd := range cmds {
		attr := &syscall.SysProcAttr{Setpgid: true}
		if i > 0 {
			attr.Pgid = leaderPid
		}
		cmd.SysProcAttr = attr
		if err := cmd.Start(); err != nil {
			t.killStarted(j)
			return nil, err
		}
		if i == 0 {
			leaderPid = cmd.Process.Pid
			j.Pgid = leaderPid
		}
		j.Procs = append(j.Procs, &Proc{Cmd: cmd, Pid: cmd.Process.Pid, State: Running})
	}
	j.State = Running

	t.mu.Lock()
	j.ID = t.nextID
	t.nextID++
	t.jobs = append(t.jobs, j)
	t.mu.Unlock()

	// Foreground jobs get the terminal now; the caller restores it to
	// the shell (via WaitForeground) once the job is done or stopped,
	// not here — StartPipeline returns as soon as every stage is
	// running, long before that.
	if !background && t.hasTerm {
		t.transferTTY(j.Pgid)
	}
	return j, nil
}

// WaitForeground is Wait plus the terminal hand-back a foreground job
// owes the shell once it finishes; call it after StartPipeline(...,
// background=false, ...) instead of Wait so the shell regains the
// terminal on every exit path.
func (t *Table) WaitForeground(j *Job) int {
	status := t.Wait(j)
	t.transferTTY(t.shellPgid)
	return status
}

func (t *Table) killStarted(j *Job) {
	for _, p := range j.Procs {
		p.Cmd.Process.Kill()
	}
}

func (t *Table) transferTTY(pgid int) {
	if !t.hasTerm || pgid == 0 {
		return
	}
	unix.IoctlSetInt(t.ttyFd, unix.TIOCSPGRP, pgid)
}

// Wait blocks until every process in j has reached Done, returning the
// exit status of the job's last process.
func (t *Table) Wait(j *Job) int {
	for {
		t.mu.Lock()
		done := j.State == Done
		t.mu.Unlock()
		if done {
			break
		}
		<-t.changed
	}
	return j.Procs[len(j.Procs)-1].Status
}

// Fg resumes a stopped or backgrounded job in the foreground: SIGCONT to
// its process group, terminal transfer, then wait.
func (t *Table) Fg(j *Job) int {
	unix.Kill(-j.Pgid, syscall.SIGCONT)
	t.markRunning(j)
	t.transferTTY(j.Pgid)
	status := t.Wait(j)
	t.transferTTY(t.shellPgid)
	return status
}

// Bg resumes a stopped job without transferring the terminal.
func (t *Table) Bg(j *Job) {
	unix.Kill(-j.Pgid, syscall.SIGCONT)
	t.markRunning(j)
}

func (t *Table) markRunning(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range j.Procs {
		if p.State == Stopped {
			p.State = Running
		}
	}
	j.recompute()
}

// Jobs lists the shell's known jobs, most recently created last.
func (t *Table) Jobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// ByID looks up a job by its small shell-assigned id ("%2" style, id==2).
func (t *Table) ByID(id int) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// Reap drops Done jobs from the table; called at prompt boundaries so
// "Done" notifications are deferred the way an interactive shell defers
// them rather than printing mid-pipeline.
func (t *Table) Reap() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var gone []*Job
	var keep []*Job
	for _, j := range t.jobs {
		if j.State == Done {
			gone = append(gone, j)
		} else {
			keep = append(keep, j)
		}
	}
	t.jobs = keep
	return gone
}
