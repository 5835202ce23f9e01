package interp

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// tracer emits the "-x"/"set -o xtrace" command trace as structured debug
// log records rather than the teacher's raw "+ cmd args" text, so the
// trace stream can be filtered/leveled the way POSSH_DEBUG expects; the
// plain single-line "possh: <context>: <message>" diagnostic format stays
// on r.stderr unchanged, matching spec.md §7's user-visible failure format.
type tracer struct {
	log zerolog.Logger
}

// newTracer builds a zerolog console logger writing w (normally r.stderr);
// it sets no level. tracerFor returns nil unless xtrace is on, so a
// disabled trace costs only that check.
func newTracer(w io.Writer) *tracer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000", NoColor: true}
	return &tracer{log: zerolog.New(cw).With().Timestamp().Logger()}
}

func (t *Runner) tracerFor() *tracer {
	if t.trace == nil {
		return nil
	}
	if !t.opts[OptXTrace] {
		return nil
	}
	return t.trace
}

// traceExec logs argv for a command about to exec, mirroring the
// teacher's tracer.call but through zerolog.Debug instead of a printed
// "+ ..." line.
func (r *Runner) traceExec(args []string) {
	tr := r.tracerFor()
	if tr == nil {
		return
	}
	tr.log.Debug().Str("cmd", args[0]).Strs("args", args[1:]).Msg("exec")
}

// traceBuiltin logs a builtin dispatch the same way, with its args
// joined by single spaces and not quoted.
func (r *Runner) traceBuiltin(name string, args []string) {
	tr := r.tracerFor()
	if tr == nil {
		return
	}
	tr.log.Debug().Str("builtin", name).Str("args", strings.Join(args, " ")).Msg("builtin")
}

// traceAssign logs a variable assignment, matching the teacher's
// tracer.wordParts name=value trace entries.
func (r *Runner) traceAssign(name, value string) {
	tr := r.tracerFor()
	if tr == nil {
		return
	}
	tr.log.Debug().Str("var", name).Str("value", value).Msg("assign")
}
