//go:build !windows

package job

import (
	"os"
	"os/exec"
	"testing"

	"github.com/creack/pty"
	qt "github.com/frankban/quicktest"
	"golang.org/x/sys/unix"
)

// withPtyStdin points os.Stdin at a pty slave for the duration of the
// test, the way an interactive shell's stdin would be a tty, so
// NewTable detects a controlling terminal and wires up TIOCGPGRP/
// TIOCSPGRP transfer instead of running in the no-tty (background-only)
// mode exercised by the rest of this package's callers.
func withPtyStdin(t *testing.T) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Fatalf("pty.Open: %v", err)
	}
	t.Cleanup(func() {
		ptmx.Close()
		tty.Close()
	})
	orig := os.Stdin
	os.Stdin = tty
	t.Cleanup(func() { os.Stdin = orig })
}

func TestStartPipelineBackgroundReapsToDone(t *testing.T) {
	withPtyStdin(t)
	tab := NewTable()
	qt.Assert(t, tab.hasTerm, qt.IsTrue)

	cmd := exec.Command("sh", "-c", "exit 3")
	j, err := tab.StartPipeline([]*exec.Cmd{cmd}, true, "sh -c 'exit 3'")
	qt.Assert(t, err, qt.IsNil)

	status := tab.Wait(j)
	qt.Assert(t, status, qt.Equals, 3)
	qt.Assert(t, j.State, qt.Equals, Done)
}

// TestFgTransfersTTYThenRestoresToShell drives Fg on an already-finished
// background job: SIGCONT to a dead process group is a harmless no-op,
// so this isolates the terminal hand-off/hand-back bookkeeping from
// timing-sensitive process-state assertions.
func TestFgTransfersTTYThenRestoresToShell(t *testing.T) {
	withPtyStdin(t)
	tab := NewTable()
	shellPgid := tab.shellPgid

	cmd := exec.Command("true")
	j, err := tab.StartPipeline([]*exec.Cmd{cmd}, true, "true")
	qt.Assert(t, err, qt.IsNil)
	tab.Wait(j)

	status := tab.Fg(j)
	qt.Assert(t, status, qt.Equals, 0)

	pgid, err := unix.IoctlGetInt(tab.ttyFd, unix.TIOCGPGRP)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, pgid, qt.Equals, shellPgid)
}

// TestStartPipelineForegroundTransfersThenRestoresTTY exercises the
// background=false path directly, the one prior callers never reached:
// StartPipeline must hand the tty to the new job's pgid itself, and
// WaitForeground must hand it back to the shell once the job is done.
func TestStartPipelineForegroundTransfersThenRestoresTTY(t *testing.T) {
	withPtyStdin(t)
	tab := NewTable()
	shellPgid := tab.shellPgid

	cmd := exec.Command("true")
	j, err := tab.StartPipeline([]*exec.Cmd{cmd}, false, "true")
	qt.Assert(t, err, qt.IsNil)

	pgid, err := unix.IoctlGetInt(tab.ttyFd, unix.TIOCGPGRP)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, pgid, qt.Equals, j.Pgid)

	status := tab.WaitForeground(j)
	qt.Assert(t, status, qt.Equals, 0)

	pgid, err = unix.IoctlGetInt(tab.ttyFd, unix.TIOCGPGRP)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, pgid, qt.Equals, shellPgid)
}

func TestReapDropsDoneJobsOnly(t *testing.T) {
	withPtyStdin(t)
	tab := NewTable()

	done := exec.Command("true")
	jDone, err := tab.StartPipeline([]*exec.Cmd{done}, true, "true")
	qt.Assert(t, err, qt.IsNil)
	tab.Wait(jDone)

	gone := tab.Reap()
	qt.Assert(t, len(gone), qt.Equals, 1)
	qt.Assert(t, gone[0].ID, qt.Equals, jDone.ID)
	qt.Assert(t, len(tab.Jobs()), qt.Equals, 0)
}
