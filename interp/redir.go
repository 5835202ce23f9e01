package interp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/renameio/v2"

	"possh/ast"
)

// fdEntry is one descriptor's current reader/writer; a plain file opened
// for RDWR (e.g. `<>`) populates both.
type fdEntry struct {
	r      io.Reader
	w      io.Writer
	closer io.Closer
}

// fdTable is the open file descriptor table a command sees: slot 0/1/2
// are stdin/stdout/stderr, higher slots are whatever `exec N<>file` or
// `command 3>&1` has wired up. Redirects apply to a cloned copy so a
// restored parent scope never sees a child's fd churn.
type fdTable struct {
	files   map[int]*fdEntry
	in      io.Reader
	out     io.Writer
	err     io.Writer
	pending []*renameio.PendingFile
}

func newFdTable(in io.Reader, out, err io.Writer) *fdTable {
	return &fdTable{files: make(map[int]*fdEntry), in: in, out: out, err: err}
}

func (t *fdTable) clone() *fdTable {
	cp := &fdTable{files: make(map[int]*fdEntry, len(t.files)), in: t.in, out: t.out, err: t.err}
	for fd, e := range t.files {
		cp.files[fd] = e
	}
	return cp
}

func (t *fdTable) withStdout(w io.Writer) *fdTable {
	cp := t.clone()
	cp.out = w
	return cp
}

func (t *fdTable) reader(fd int) io.Reader {
	if e, ok := t.files[fd]; ok && e.r != nil {
		return e.r
	}
	if fd == 0 {
		return t.in
	}
	return nil
}

func (t *fdTable) writer(fd int) io.Writer {
	if e, ok := t.files[fd]; ok && e.w != nil {
		return e.w
	}
	switch fd {
	case 1:
		return t.out
	case 2:
		return t.err
	}
	return nil
}

// applyRedirects opens every redirect target for one command onto a
// cloned fd table, installs it as the active table, and returns a finish
// function that the caller must call exactly once after the command
// runs: finish(true) commits any atomically-written files, finish(false)
// discards them and always restores the previous table.
func (r *Runner) applyRedirects(ctx context.Context, redirs []*ast.Redirect) (finish func(ok bool), err error) {
	orig := r.fds
	next := orig.clone()
	for _, rd := range redirs {
		fd := defaultFd(rd)
		if rd.Fd != nil {
			fd = *rd.Fd
		}
		if err := r.applyOne(ctx, next, fd, rd); err != nil {
			for _, pf := range next.pending {
				pf.Cleanup()
			}
			return func(bool) {}, err
		}
	}
	r.fds = next
	return func(ok bool) {
		for _, pf := range next.pending {
			if ok {
				pf.CloseAtomicallyReplace()
			} else {
				pf.Cleanup()
			}
		}
		for _, e := range next.files {
			if e.closer != nil {
				e.closer.Close()
			}
		}
		r.fds = orig
	}, nil
}

func defaultFd(rd *ast.Redirect) int {
	switch rd.Op {
	case ast.RedirIn, ast.RedirHeredoc, ast.RedirHerestr, ast.RedirDupIn, ast.RedirReadWrite:
		return 0
	case ast.RedirOutErr, ast.RedirAppErr:
		return 2
	default:
		return 1
	}
}

func (r *Runner) applyOne(ctx context.Context, t *fdTable, fd int, rd *ast.Redirect) error {
	cfg := r.expandCfg(ctx)
	target := cfg.ExpandFields(ctx, rd.Target)
	path := ""
	if len(target) > 0 {
		path = target[0]
	}
	switch rd.Op {
	case ast.RedirIn:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		t.files[fd] = &fdEntry{r: f, closer: f}
	case ast.RedirOut:
		if r.opts[OptNoClobber] {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s: cannot overwrite existing file", path)
			}
		}
		return r.atomicCreate(t, fd, path)
	case ast.RedirOutClob:
		return r.atomicCreate(t, fd, path)
	case ast.RedirAppend:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		t.files[fd] = &fdEntry{w: f, closer: f}
	case ast.RedirAppErr:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		t.files[1] = &fdEntry{w: f}
		t.files[2] = &fdEntry{w: f, closer: f}
	case ast.RedirOutErr:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		t.files[1] = &fdEntry{w: f}
		t.files[2] = &fdEntry{w: f, closer: f}
	case ast.RedirReadWrite:
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		t.files[fd] = &fdEntry{r: f, w: f, closer: f}
	case ast.RedirDupIn, ast.RedirDupOut:
		if path == "-" {
			delete(t.files, fd)
			return nil
		}
		src, err := strconv.Atoi(path)
		if err != nil {
			return fmt.Errorf("%s: invalid fd for dup", path)
		}
		if e, ok := t.files[src]; ok {
			t.files[fd] = &fdEntry{r: e.r, w: e.w}
			return nil
		}
		switch src {
		case 0:
			t.files[fd] = &fdEntry{r: t.in}
		case 1:
			t.files[fd] = &fdEntry{w: t.out}
		case 2:
			t.files[fd] = &fdEntry{w: t.err}
		default:
			return fmt.Errorf("%d: bad file descriptor", src)
		}
	case ast.RedirHeredoc, ast.RedirHerestr:
		src := rd.Target
		if rd.Hdoc != nil {
			src = rd.Hdoc.Body
		}
		body := cfg.ExpandLiteral(ctx, &src)
		f, err := os.CreateTemp("", "possh-heredoc-")
		if err != nil {
			return err
		}
		os.Remove(f.Name())
		io.WriteString(f, body)
		if rd.Op == ast.RedirHerestr {
			io.WriteString(f, "\n")
		}
		f.Seek(0, io.SeekStart)
		t.files[fd] = &fdEntry{r: f, closer: f}
	}
	return nil
}

// atomicCreate backs plain `>`/`>|` redirection with renameio so a
// command that writes a file that's concurrently being read never
// exposes a partially-written version of it. Targets that can't be
// renamed into place (devices, pipes, /dev/fd entries) fall back to a
// plain truncating open.
func (r *Runner) atomicCreate(t *fdTable, fd int, path string) error {
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		f, ferr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if ferr != nil {
			return ferr
		}
		t.files[fd] = &fdEntry{w: f, closer: f}
		return nil
	}
	t.files[fd] = &fdEntry{w: pf}
	t.pending = append(t.pending, pf)
	return nil
}
