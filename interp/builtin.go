package interp

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"possh/expand"
)

// builtinFunc is the shape every builtin implements: argv (without the
// command name) in, exit status out.
type builtinFunc func(ctx context.Context, r *Runner, args []string) (int, error)

// builtins lists the special builtins named by name, plus the handful
// of ordinary builtins (cd, pwd, echo, ...) a shell needs to be usable
// without shelling out to coreutils for every command.
var builtins = map[string]builtinFunc{
	"exit":     biExit,
	"return":   biReturn,
	"set":      biSet,
	":":        biTrue,
	".":        biDot,
	"source":   biDot,
	"exec":     biExec,
	"eval":     biEval,
	"export":   biExport,
	"readonly": biReadonly,
	"shift":    biShift,
	"trap":     biTrap,
	"unset":    biUnset,
	"break":    biBreak,
	"continue": biContinue,

	"cd":      biCd,
	"pwd":     biPwd,
	"echo":    biEcho,
	"true":    biTrue,
	"false":   biFalse,
	"local":   biLocal,
	"alias":   biAlias,
	"unalias": biUnalias,
	"jobs":    biJobs,
	"fg":      biFg,
	"bg":      biBg,
	"wait":    biWait,
	"read":    biRead,
	"type":    biType,
}

func biExit(ctx context.Context, r *Runner, args []string) (int, error) {
	code := r.lastExit
	if len(args) > 0 {
		n, _ := strconv.Atoi(args[0])
		code = n & 0xff
	}
	return code, &ExitError{Code: code}
}

func biReturn(ctx context.Context, r *Runner, args []string) (int, error) {
	code := r.lastExit
	if len(args) > 0 {
		n, _ := strconv.Atoi(args[0])
		code = n & 0xff
	}
	if r.funcDepth == 0 {
		fmt.Fprintln(r.errOut(), "possh: return: can only be used in a function or sourced script")
		return 1, nil
	}
	return code, returnSignal{code: code}
}

func biBreak(ctx context.Context, r *Runner, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	return 0, loopSignal{kind: loopBreak, n: n}
}

func biContinue(ctx context.Context, r *Runner, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	return 0, loopSignal{kind: loopContinue, n: n}
}

func biTrue(ctx context.Context, r *Runner, args []string) (int, error)  { return 0, nil }
func biFalse(ctx context.Context, r *Runner, args []string) (int, error) { return 1, nil }

func biSet(ctx context.Context, r *Runner, args []string) (int, error) {
	i := 0
	for i < len(args) {
		arg := args[i]
		if arg == "--" {
			i++
			break
		}
		if len(arg) < 2 || (arg[0] != '-' && arg[0] != '+') {
			break
		}
		enable := arg[0] == '-'
		flag := arg[1:]
		if flag == "o" {
			i++
			if i >= len(args) {
				break
			}
			r.SetOptByName(args[i], enable)
			i++
			continue
		}
		for _, c := range flag {
			switch c {
			case 'e':
				r.SetOpt(OptErrExit, enable)
			case 'u':
				r.SetOpt(OptNoUnset, enable)
			case 'x':
				r.SetOpt(OptXTrace, enable)
			case 'f':
				r.SetOpt(OptNoGlob, enable)
			case 'v':
				r.SetOpt(OptVerbose, enable)
			case 'a':
				r.SetOpt(OptAllExport, enable)
			case 'C':
				r.SetOpt(OptNoClobber, enable)
			case 'm':
				r.SetOpt(OptMonitor, enable)
			}
		}
		i++
	}
	if i < len(args) {
		r.SetParams(r.name, args[i:])
	}
	return 0, nil
}

func biDot(ctx context.Context, r *Runner, args []string) (int, error) {
	if len(args) == 0 {
		fmt.Fprintln(r.errOut(), "possh: .: filename argument required")
		return 2, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(r.errOut(), "possh: %s: %v\n", args[0], err)
		return 1, nil
	}
	r.funcDepth++
	status, err := r.runSource(ctx, string(data), args[0], args[1:])
	r.funcDepth--
	if rs, ok := err.(returnSignal); ok {
		return rs.code, nil
	}
	return status, err
}

func biExec(ctx context.Context, r *Runner, args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	status, err := r.execExternal(ctx, args)
	if err == nil {
		return status, &ExitError{Code: status}
	}
	return status, err
}

func biEval(ctx context.Context, r *Runner, args []string) (int, error) {
	return r.runSource(ctx, strings.Join(args, " "), "eval", nil)
}

func biExport(ctx context.Context, r *Runner, args []string) (int, error) {
	for _, a := range args {
		if a == "-p" {
			r.scope.Each(func(name string, vr expand.Variable) bool {
				if vr.Exported {
					fmt.Fprintf(r.out(), "export %s=%q\n", name, vr.String())
				}
				return true
			})
			continue
		}
		name, val, hasVal := strings.Cut(a, "=")
		vr := r.scope.Get(name)
		if hasVal {
			vr = expand.Variable{Set: true, Kind: expand.String, Str: val}
		}
		vr.Exported = true
		r.scope.Set(name, vr)
	}
	return 0, nil
}

func biReadonly(ctx context.Context, r *Runner, args []string) (int, error) {
	for _, a := range args {
		name, val, hasVal := strings.Cut(a, "=")
		vr := r.scope.Get(name)
		if hasVal {
			vr = expand.Variable{Set: true, Kind: expand.String, Str: val}
		}
		vr.ReadOnly = true
		r.scope.Set(name, vr)
	}
	return 0, nil
}

func biShift(ctx context.Context, r *Runner, args []string) (int, error) {
	n := 1
	if len(args) > 0 {
		n, _ = strconv.Atoi(args[0])
	}
	if n > len(r.params) {
		return 1, nil
	}
	r.params = r.params[n:]
	return 0, nil
}

func biTrap(ctx context.Context, r *Runner, args []string) (int, error) {
	// Signal dispositions are process-wide state outside the scope this
	// interpreter manages directly; trap registration is accepted but a
	// no-op placeholder until the job-control layer exposes hooks.
	return 0, nil
}

func biUnset(ctx context.Context, r *Runner, args []string) (int, error) {
	for _, name := range args {
		if name == "-f" || name == "-v" {
			continue
		}
		r.scope.Delete(name)
		delete(r.Funcs, name)
	}
	return 0, nil
}

func biLocal(ctx context.Context, r *Runner, args []string) (int, error) {
	if r.funcDepth == 0 {
		fmt.Fprintln(r.errOut(), "possh: local: can only be used in a function")
		return 1, nil
	}
	for _, a := range args {
		name, val, hasVal := strings.Cut(a, "=")
		str := ""
		if hasVal {
			str = val
		}
		r.scope.values[name] = expand.Variable{Set: hasVal, Local: true, Kind: expand.String, Str: str}
	}
	return 0, nil
}

func biCd(ctx context.Context, r *Runner, args []string) (int, error) {
	dir := r.scope.Get("HOME").String()
	if len(args) > 0 {
		dir = args[0]
		if dir == "-" {
			dir = r.scope.Get("OLDPWD").String()
		}
	}
	if dir == "" {
		fmt.Fprintln(r.errOut(), "possh: cd: HOME not set")
		return 1, nil
	}
	old := r.Dir
	if err := os.Chdir(dir); err != nil {
		fmt.Fprintf(r.errOut(), "possh: cd: %v\n", err)
		return 1, nil
	}
	wd, _ := os.Getwd()
	r.Dir = wd
	r.scope.Set("OLDPWD", expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: old})
	r.scope.Set("PWD", expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: wd})
	return 0, nil
}

func biPwd(ctx context.Context, r *Runner, args []string) (int, error) {
	fmt.Fprintln(r.out(), r.Dir)
	return 0, nil
}

func biEcho(ctx context.Context, r *Runner, args []string) (int, error) {
	nl := true
	interp := false
	for len(args) > 0 {
		switch args[0] {
		case "-n":
			nl = false
		case "-e":
			interp = true
		case "-E":
			interp = false
		default:
			goto done
		}
		args = args[1:]
	}
done:
	out := strings.Join(args, " ")
	if interp {
		out = ansiCExpand(strings.NewReplacer(`\n`, "\x00n", `\t`, "\x00t").Replace(out))
		out = strings.NewReplacer("\x00n", `\n`, "\x00t", `\t`).Replace(out)
		out = ansiCExpand(out)
	}
	fmt.Fprint(r.out(), out)
	if nl {
		fmt.Fprintln(r.out())
	}
	return 0, nil
}

func biAlias(ctx context.Context, r *Runner, args []string) (int, error) {
	if len(args) == 0 {
		names := make([]string, 0, len(r.Aliases))
		for name := range r.Aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(r.out(), "alias %s=%q\n", name, r.Aliases[name])
		}
		return 0, nil
	}
	for _, a := range args {
		name, val, hasVal := strings.Cut(a, "=")
		if !hasVal {
			if v, ok := r.Aliases[name]; ok {
				fmt.Fprintf(r.out(), "alias %s=%q\n", name, v)
			}
			continue
		}
		r.Aliases[name] = val
	}
	return 0, nil
}

func biUnalias(ctx context.Context, r *Runner, args []string) (int, error) {
	for _, name := range args {
		delete(r.Aliases, name)
	}
	return 0, nil
}

func biJobs(ctx context.Context, r *Runner, args []string) (int, error) {
	r.printJobs(func(line string) { fmt.Fprintln(r.out(), line) })
	return 0, nil
}

func parseJobArg(r *Runner, args []string) int {
	if len(args) == 0 {
		return len(r.bgJobs)
	}
	id := strings.TrimPrefix(args[0], "%")
	n, _ := strconv.Atoi(id)
	return n
}

func biFg(ctx context.Context, r *Runner, args []string) (int, error) {
	id := parseJobArg(r, args)
	if id <= 0 || id > len(r.bgJobs) {
		fmt.Fprintln(r.errOut(), "possh: fg: no such job")
		return 1, nil
	}
	bj := r.bgJobs[id-1]
	if bj.real != nil {
		return r.jobs.Fg(bj.real), nil
	}
	<-bj.done
	return bj.status, nil
}

func biBg(ctx context.Context, r *Runner, args []string) (int, error) {
	id := parseJobArg(r, args)
	if id <= 0 || id > len(r.bgJobs) {
		fmt.Fprintln(r.errOut(), "possh: bg: no such job")
		return 1, nil
	}
	bj := r.bgJobs[id-1]
	if bj.real != nil {
		r.jobs.Bg(bj.real)
	}
	return 0, nil
}

func biWait(ctx context.Context, r *Runner, args []string) (int, error) {
	if len(args) == 0 {
		return r.waitAll(), nil
	}
	id := strings.TrimPrefix(args[0], "%")
	n, _ := strconv.Atoi(id)
	if status, ok := r.waitFor(n); ok {
		return status, nil
	}
	return 127, nil
}

func biRead(ctx context.Context, r *Runner, args []string) (int, error) {
	raw := false
	names := args[:0:0]
	for _, a := range args {
		if a == "-r" {
			raw = true
			continue
		}
		names = append(names, a)
	}
	if len(names) == 0 {
		names = []string{"REPLY"}
	}
	var line strings.Builder
	buf := make([]byte, 1)
	read := false
	for {
		n, err := r.fds.reader(0).Read(buf)
		if n > 0 {
			read = true
			if buf[0] == '\n' {
				break
			}
			line.WriteByte(buf[0])
		}
		if err != nil {
			break
		}
	}
	if !read {
		return 1, nil
	}
	cfg := r.expandCfg(ctx)
	fields := cfg.ReadFields(line.String(), len(names), raw)
	for i, name := range names {
		val := ""
		if i < len(fields) {
			val = fields[i]
		}
		r.scope.Set(name, expand.Variable{Set: true, Kind: expand.String, Str: val})
	}
	return 0, nil
}

func biType(ctx context.Context, r *Runner, args []string) (int, error) {
	status := 0
	for _, name := range args {
		switch {
		case r.Funcs[name] != nil:
			fmt.Fprintf(r.out(), "%s is a function\n", name)
		case builtins[name] != nil:
			fmt.Fprintf(r.out(), "%s is a shell builtin\n", name)
		default:
			fmt.Fprintf(r.out(), "%s: not found\n", name)
			status = 1
		}
	}
	return status, nil
}
