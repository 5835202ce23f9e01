package interp

import (
	"context"
	"fmt"

	"possh/parser"
)

// runSource parses src and executes it in the current scope, the shared
// implementation behind `.`/`source` and `eval`. Positional parameters
// are replaced only when extra args are given (eval never supplies
// any, leaving $1.. untouched; `.` does when a script takes arguments).
func (r *Runner) runSource(ctx context.Context, src, filename string, args []string) (int, error) {
	cl, err := parser.ParseProgram([]byte(src), filename)
	if err != nil {
		fmt.Fprintf(r.errOut(), "possh: %s: %v\n", filename, err)
		return 2, nil
	}
	var savedParams []string
	if len(args) > 0 {
		savedParams = r.params
		r.params = args
		defer func() { r.params = savedParams }()
	}
	if rerr := r.Run(ctx, cl); rerr != nil {
		if ee, ok := rerr.(*ExitError); ok {
			return ee.Code, nil
		}
		return r.lastExit, rerr
	}
	return r.lastExit, nil
}
