package expand

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"possh/ast"
	"possh/pattern"
)

// Context carries the inputs word expansion needs: the variable
// environment, shell options that affect expansion (noglob, globstar),
// and a hook back into the executor for command substitution.
type Context struct {
	Env Environ

	NoGlob   bool
	GlobStar bool
	DotGlob  bool // leading-dot filenames match unquoted glob metacharacters
	NullGlob bool // a glob with no matches expands to zero fields instead of its literal text

	// Subshell runs a command list in an isolated copy of shell state,
	// writing its stdout to w; used to realize $(...) and `...`.
	Subshell func(ctx context.Context, w *strings.Builder, stmts *ast.CommandList)

	// OnError receives the UnsetParameterError raised by ${var?msg} and
	// ${var:?msg}; if nil the error is dropped. Unset variables are not
	// reported under nounset.
	OnError func(error)

	ifs string
}

func (c *Context) prepareIFS() {
	vr := c.Env.Get("IFS")
	if !vr.IsSet() {
		c.ifs = " \t\n"
	} else {
		c.ifs = vr.String()
	}
}

func (c *Context) ifsRune(r rune) bool {
	for _, r2 := range c.ifs {
		if r == r2 {
			return true
		}
	}
	return false
}

func (c *Context) ifsJoin(strs []string) string {
	sep := ""
	if c.ifs != "" {
		sep = c.ifs[:1]
	}
	return strings.Join(strs, sep)
}

func (c *Context) err(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

func (c *Context) envGet(name string) string {
	return c.Env.Get(name).String()
}

func (c *Context) envSet(name, value string) {
	if we, ok := c.Env.(WriteEnviron); ok {
		we.Set(name, Variable{Set: true, Kind: String, Str: value})
	}
}

// ExpandLiteral expands a word the way a double-quoted context would:
// substitutions run, but no word-splitting or globbing follows.
func (c *Context) ExpandLiteral(ctx context.Context, word *ast.Word) string {
	if word == nil {
		return ""
	}
	field := c.wordField(ctx, word.Parts, quoteDouble)
	return c.fieldJoin(field)
}

// ExpandPattern expands a word for use as a shell pattern (case arms,
// [[ == ]] right-hand sides): text from quoted parts is pattern-quoted,
// while unquoted literals and unquoted substitution results keep their
// glob syntax active.
func (c *Context) ExpandPattern(ctx context.Context, word *ast.Word) string {
	field := c.wordField(ctx, word.Parts, quoteSingle)
	var buf strings.Builder
	for _, part := range field {
		if part.quote > quoteNone {
			buf.WriteString(pattern.QuoteMeta(part.val))
		} else {
			buf.WriteString(part.val)
		}
	}
	return buf.String()
}

type fieldPart struct {
	val   string
	quote quoteLevel
}

type quoteLevel uint

const (
	quoteNone quoteLevel = iota
	quoteDouble
	quoteSingle
)

func (c *Context) fieldJoin(parts []fieldPart) string {
	if len(parts) == 1 {
		return parts[0].val
	}
	var buf strings.Builder
	for _, part := range parts {
		buf.WriteString(part.val)
	}
	return buf.String()
}

func (c *Context) escapedGlobField(parts []fieldPart) (escaped string, glob bool) {
	var buf strings.Builder
	for _, part := range parts {
		if part.quote > quoteNone {
			buf.WriteString(pattern.QuoteMeta(part.val))
			continue
		}
		buf.WriteString(part.val)
		if pattern.HasMeta(part.val) {
			glob = true
		}
	}
	if glob {
		escaped = buf.String()
	}
	return escaped, glob
}

// ExpandFields runs the full word-expansion pipeline (brace, tilde,
// parameter/command/arithmetic, word-splitting, pathname expansion, quote
// removal) over one or more words and returns the resulting argv fields.
func (c *Context) ExpandFields(ctx context.Context, words ...ast.Word) []string {
	c.prepareIFS()
	var fields []string
	dir := c.envGet("PWD")
	if dir == "" {
		dir, _ = os.Getwd()
	}
	for _, w := range words {
		for _, expWord := range c.Braces(w) {
			for _, field := range c.wordFields(ctx, expWord.Parts) {
				path, doGlob := c.escapedGlobField(field)
				var matches []string
				abs := filepath.IsAbs(path)
				if doGlob && !c.NoGlob {
					if !abs {
						path = filepath.Join(dir, path)
					}
					matches = globPath(path, c.GlobStar, c.DotGlob)
				}
				if len(matches) == 0 {
					if doGlob && !c.NoGlob && c.NullGlob {
						continue
					}
					fields = append(fields, c.fieldJoin(field))
					continue
				}
				for _, match := range matches {
					if !abs {
						match, _ = filepath.Rel(dir, match)
					}
					fields = append(fields, match)
				}
			}
		}
	}
	return fields
}

// Braces materializes a word's brace-expansion node (if any) into the
// literal words it stands for, distributing any prefix/suffix over each
// element. Words with no BraceExp part expand to themselves.
func (c *Context) Braces(w ast.Word) []ast.Word {
	for _, p := range w.Parts {
		if be, ok := p.(*ast.BraceExp); ok {
			var out []ast.Word
			for _, elem := range be.Elems {
				out = append(out, c.Braces(elem)...)
			}
			return out
		}
	}
	return []ast.Word{w}
}

func (c *Context) wordField(ctx context.Context, wps []ast.WordPart, ql quoteLevel) []fieldPart {
	var field []fieldPart
	for _, wp := range wps {
		switch x := wp.(type) {
		case *ast.Lit:
			s := x.Value
			field = append(field, fieldPart{val: s})
		case *ast.TildePrefix:
			field = append(field, fieldPart{val: c.expandTilde(x)})
		case *ast.SglQuoted:
			val := x.Value
			if x.Dollar {
				val = ansiCExpand(val)
			}
			field = append(field, fieldPart{quote: quoteSingle, val: val})
		case *ast.DblQuoted:
			for _, part := range c.wordField(ctx, x.Parts, quoteDouble) {
				part.quote = quoteDouble
				field = append(field, part)
			}
		case *ast.ParamExp:
			field = append(field, fieldPart{val: c.paramExp(ctx, x)})
		case *ast.CmdSubst:
			field = append(field, fieldPart{val: c.cmdSubst(ctx, x)})
		case *ast.ArithExp:
			n, _ := c.Arithm(ctx, x.X)
			field = append(field, fieldPart{val: strconv.FormatInt(n, 10)})
		case *ast.ExtGlob:
			field = append(field, fieldPart{val: string(x.Op) + "(" + c.ExpandLiteral(ctx, &x.Pattern) + ")"})
		case *ast.BraceExp:
			// Handled by Braces before wordField is ever reached for a
			// split-off element; a literal brace syntax that failed to
			// split reaches here as a Lit instead.
			field = append(field, fieldPart{val: ""})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	return field
}

func (c *Context) cmdSubst(ctx context.Context, cs *ast.CmdSubst) string {
	var buf strings.Builder
	if c.Subshell != nil {
		c.Subshell(ctx, &buf, cs.Stmts)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (c *Context) wordFields(ctx context.Context, wps []ast.WordPart) [][]fieldPart {
	var fields [][]fieldPart
	var curField []fieldPart
	allowEmpty := false
	flush := func() {
		if len(curField) == 0 {
			return
		}
		fields = append(fields, curField)
		curField = nil
	}
	splitAdd := func(val string) {
		for i, f := range strings.FieldsFunc(val, c.ifsRune) {
			if i > 0 {
				flush()
			}
			curField = append(curField, fieldPart{val: f})
		}
	}
	for _, wp := range wps {
		switch x := wp.(type) {
		case *ast.Lit:
			s := x.Value
			curField = append(curField, fieldPart{val: s})
		case *ast.TildePrefix:
			curField = append(curField, fieldPart{val: c.expandTilde(x)})
		case *ast.SglQuoted:
			allowEmpty = true
			val := x.Value
			if x.Dollar {
				val = ansiCExpand(val)
			}
			curField = append(curField, fieldPart{quote: quoteSingle, val: val})
		case *ast.DblQuoted:
			allowEmpty = true
			if len(x.Parts) == 1 {
				if pe, ok := x.Parts[0].(*ast.ParamExp); ok {
					if elems := c.quotedElems(pe); elems != nil {
						for i, elem := range elems {
							if i > 0 {
								flush()
							}
							curField = append(curField, fieldPart{quote: quoteDouble, val: elem})
						}
						continue
					}
				}
			}
			for _, part := range c.wordField(ctx, x.Parts, quoteDouble) {
				part.quote = quoteDouble
				curField = append(curField, part)
			}
		case *ast.ParamExp:
			splitAdd(c.paramExp(ctx, x))
		case *ast.CmdSubst:
			splitAdd(c.cmdSubst(ctx, x))
		case *ast.ArithExp:
			n, _ := c.Arithm(ctx, x.X)
			curField = append(curField, fieldPart{val: strconv.FormatInt(n, 10)})
		case *ast.ExtGlob:
			curField = append(curField, fieldPart{val: string(x.Op) + "(" + c.ExpandLiteral(ctx, &x.Pattern) + ")"})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	flush()
	if allowEmpty && len(fields) == 0 {
		fields = append(fields, curField)
	}
	return fields
}

// quotedElems recognizes "$@" and "${name[@]}" so each positional
// parameter / array element becomes its own field regardless of IFS.
func (c *Context) quotedElems(pe *ast.ParamExp) []string {
	if pe == nil || pe.Indirect || pe.Length {
		return nil
	}
	if pe.Param.Value == "@" {
		vr := c.Env.Get("@")
		return vr.List
	}
	if indexLit(pe.Index, "@") == "" {
		return nil
	}
	vr := c.Env.Get(pe.Param.Value)
	if vr.Kind == Indexed {
		return vr.List
	}
	return nil
}

func (c *Context) expandTilde(t *ast.TildePrefix) string {
	if t.Name == "" {
		return c.envGet("HOME")
	}
	u, err := user.Lookup(t.Name)
	if err != nil {
		return "~" + t.Name
	}
	return u.HomeDir
}

func ansiCExpand(s string) string {
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			buf.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			buf.WriteByte('\n')
		case 't':
			buf.WriteByte('\t')
		case 'r':
			buf.WriteByte('\r')
		case '\\':
			buf.WriteByte('\\')
		case '\'':
			buf.WriteByte('\'')
		default:
			buf.WriteByte('\\')
			buf.WriteByte(s[i])
		}
	}
	return buf.String()
}

var rxGlobStar = regexp.MustCompile(".*")

func globPath(p string, globStar, dotGlob bool) []string {
	parts := strings.Split(p, string(filepath.Separator))
	matches := []string{"."}
	if filepath.IsAbs(p) {
		if parts[0] == "" {
			matches[0] = string(filepath.Separator)
		} else {
			matches[0] = parts[0] + string(filepath.Separator)
		}
		parts = parts[1:]
	}
	for _, part := range parts {
		if part == "**" && globStar {
			for i := range matches {
				matches[i] += string(filepath.Separator)
			}
			latest := matches
			for {
				var newMatches []string
				for _, dir := range latest {
					newMatches = globDir(dir, rxGlobStar, newMatches, dotGlob)
				}
				if len(newMatches) == 0 {
					break
				}
				matches = append(matches, newMatches...)
				latest = newMatches
			}
			continue
		}
		expr, err := pattern.Regexp(part, pattern.Filenames)
		if err != nil {
			return nil
		}
		rx := regexp.MustCompile("^" + expr + "$")
		var newMatches []string
		for _, dir := range matches {
			newMatches = globDir(dir, rx, newMatches, dotGlob)
		}
		matches = newMatches
	}
	return matches
}

func globDir(dir string, rx *regexp.Regexp, matches []string, dotGlob bool) []string {
	d, err := os.Open(dir)
	if err != nil {
		return matches
	}
	defer d.Close()
	names, _ := d.Readdirnames(-1)
	sort.Strings(names)
	for _, name := range names {
		if !dotGlob && !strings.HasPrefix(rx.String(), `^\.`) && name[0] == '.' {
			continue
		}
		if rx.MatchString(name) {
			matches = append(matches, filepath.Join(dir, name))
		}
	}
	return matches
}

// ReadFields splits s on IFS the way the "read" builtin does, capping the
// number of resulting fields at n (n == -1 means unlimited); raw disables
// backslash-escape handling ("read -r").
func (c *Context) ReadFields(s string, n int, raw bool) []string {
	c.prepareIFS()
	type pos struct{ start, end int }
	var fpos []pos
	runes := make([]rune, 0, len(s))
	infield := false
	esc := false
	for _, r := range s {
		if infield {
			if c.ifsRune(r) && (raw || !esc) {
				fpos[len(fpos)-1].end = len(runes)
				infield = false
			}
		} else if !c.ifsRune(r) && (raw || !esc) {
			fpos = append(fpos, pos{start: len(runes), end: -1})
			infield = true
		}
		if r == '\\' {
			if raw || esc {
				runes = append(runes, r)
			}
			esc = !esc
			continue
		}
		runes = append(runes, r)
		esc = false
	}
	if len(fpos) == 0 {
		return nil
	}
	if infield {
		fpos[len(fpos)-1].end = len(runes)
	}
	switch {
	case n == 1:
		fpos[0].start, fpos[0].end = 0, len(runes)
		fpos = fpos[:1]
	case n != -1 && n < len(fpos):
		fpos[n-1].end = fpos[len(fpos)-1].end
		fpos = fpos[:n]
	}
	out := make([]string, len(fpos))
	for i, p := range fpos {
		out[i] = string(runes[p.start:p.end])
	}
	return out
}
