// Command possh is a POSIX-style shell with Bash extensions, built on top
// of the lexer/parser/expand/interp packages in this module.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"possh/interp"
	"possh/lexer"
	"possh/parser"
)

var (
	command     = pflag.StringP("command", "c", "", "run COMMAND, then exit")
	interactive = pflag.BoolP("interactive", "i", false, "force interactive mode")
	noRC        = pflag.Bool("norc", false, "do not read any startup files (out of scope: none are read regardless)")
	version     = pflag.Bool("version", false, "print version and exit")
)

const posshVersion = "possh 0.1.0 (spec.md §6)"

func main() {
	os.Exit(main1())
}

// main1 is the full command body, factored out of main so testscript's
// TestMain can re-exec this binary as "possh" without a real fork+exec
// of a separate installed binary (see main_test.go).
func main1() int {
	pflag.Usage = usage
	pflag.Parse()

	if *version {
		fmt.Println(posshVersion)
		return 0
	}

	return run()
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: possh [-i] [--norc] [-c command | script [args...]]")
	pflag.PrintDefaults()
}

// run implements spec.md §6's invocation surface and §6's exit-code
// table, returning the process exit code directly so main can os.Exit
// once without defers getting skipped.
func run() int {
	r := interp.New()
	ctx, cancel := r.Context(context.Background())
	defer cancel()

	switch {
	case *command != "":
		r.SetParams("possh", pflag.Args())
		return runSource(ctx, r, *command, "-c")

	case pflag.NArg() == 0:
		if *interactive || term.IsTerminal(int(os.Stdin.Fd())) {
			return runInteractive(ctx, r)
		}
		data, err := readAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "possh: %v\n", err)
			return 1
		}
		r.SetParams("possh", nil)
		return runSource(ctx, r, data, "possh")

	default:
		args := pflag.Args()
		script := args[0]
		data, err := os.ReadFile(script)
		if err != nil {
			fmt.Fprintf(os.Stderr, "possh: %v\n", err)
			return 127
		}
		r.SetParams(script, args[1:])
		return runSource(ctx, r, stripHashbang(string(data)), script)
	}
}

// stripHashbang replaces a leading "#!" line with a blank line so line
// numbers stay stable for diagnostics, matching spec.md §6: "a
// leading #! line is consumed only by the OS on exec; when the shell
// itself opens a script, a leading #! line is treated as a comment."
func stripHashbang(src string) string {
	if !strings.HasPrefix(src, "#!") {
		return src
	}
	if i := strings.IndexByte(src, '\n'); i >= 0 {
		return src[i:]
	}
	return ""
}

func readAll(f *os.File) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
	}
}

func runSource(ctx context.Context, r *interp.Runner, src, name string) int {
	cl, err := parser.ParseProgram([]byte(src), name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "possh: %s: %v\n", name, err)
		return 2
	}
	runErr := r.Run(ctx, cl)
	return interp.ExitCodeOf(runErr)
}

// runInteractive is the minimal line-at-a-time driver spec.md §1 calls
// for: no history or completion, just enough to read one logical command
// at a time, including multi-line constructs and line continuations,
// before handing it to the parser and executor.
func runInteractive(ctx context.Context, r *interp.Runner) int {
	in := bufio.NewReader(os.Stdin)
	var pending strings.Builder
	ps1, ps2 := "$ ", "> "
	fmt.Fprint(os.Stderr, ps1)
	for {
		line, err := in.ReadString('\n')
		if line != "" {
			pending.WriteString(line)
		}
		if err != nil {
			break
		}
		cl, perr := parser.ParseProgram([]byte(pending.String()), "possh")
		if perr != nil {
			var se *parser.SyntaxError
			var te *lexer.TokenError
			if (errors.As(perr, &se) && se.Incomplete) || (errors.As(perr, &te) && te.Incomplete) {
				fmt.Fprint(os.Stderr, ps2)
				continue
			}
			fmt.Fprintf(os.Stderr, "possh: %v\n", perr)
			pending.Reset()
			fmt.Fprint(os.Stderr, ps1)
			continue
		}
		pending.Reset()
		runErr := r.Run(ctx, cl)
		if runErr != nil {
			var ee *interp.ExitError
			if errors.As(runErr, &ee) {
				return ee.Code
			}
		}
		fmt.Fprint(os.Stderr, ps1)
	}
	return 0
}
