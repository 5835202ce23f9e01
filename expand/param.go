package expand

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"possh/ast"
	"possh/pattern"
)

// UnsetParameterError is raised by ${var?msg} / ${var:?msg} when var is
// unset (or empty, for the colon form).
type UnsetParameterError struct {
	Expr    *ast.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string { return u.Message }

func indexLit(idx *ast.Word, vals ...string) string {
	if idx == nil || len(idx.Parts) != 1 {
		return ""
	}
	lit, ok := idx.Parts[0].(*ast.Lit)
	if !ok {
		return ""
	}
	for _, val := range vals {
		if lit.Value == val {
			return val
		}
	}
	return ""
}

func (c *Context) paramExp(ctx context.Context, pe *ast.ParamExp) string {
	name := pe.Param.Value
	index := pe.Index
	if name == "@" || name == "*" {
		index = &ast.Word{Parts: []ast.WordPart{&ast.Lit{Value: name}}}
	}

	var vr Variable
	if name == "LINENO" {
		vr = Variable{Set: true, Kind: String, Str: strconv.Itoa(int(pe.Pos()))}
	} else {
		vr = c.Env.Get(name)
	}
	set := vr.IsSet()
	str := c.varStr(vr, 0)
	if index != nil {
		str = c.varInd(ctx, vr, index, 0)
	}

	slicePos := func(expr ast.ArithmExpr) int {
		p, _ := c.Arithm(ctx, expr)
		pp := int(p)
		if pp < 0 {
			pp = len(str) + pp
			if pp < 0 {
				pp = len(str)
			}
		} else if pp > len(str) {
			pp = len(str)
		}
		return pp
	}

	elems := []string{str}
	if indexLit(index, "@", "*") != "" {
		switch vr.Kind {
		case Indexed:
			elems = vr.List
		}
	}

	switch {
	case pe.Length:
		n := len(elems)
		if indexLit(index, "@", "*") == "" {
			n = utf8.RuneCountInString(str)
		}
		str = strconv.Itoa(n)
	case pe.Indirect:
		if lit := indexLit(index, "@", "*"); lit != "" {
			strs := c.namesByPrefix(name)
			sort.Strings(strs)
			str = strings.Join(strs, " ")
		} else if str != "" {
			vr = c.Env.Get(str)
			str = c.varStr(vr, 0)
		}
	case pe.Slice != nil:
		if pe.Slice.Offset != nil {
			str = str[slicePos(pe.Slice.Offset):]
		}
		if pe.Slice.Length != nil {
			n := slicePos(pe.Slice.Length)
			if n < len(str) {
				str = str[:n]
			}
		}
	case pe.Repl != nil:
		orig := c.ExpandPattern(ctx, &pe.Repl.Orig)
		with := c.ExpandLiteral(ctx, &pe.Repl.With)
		n := 1
		if pe.Repl.All {
			n = -1
		}
		locs := findAllIndex(orig, str, n)
		var buf strings.Builder
		last := 0
		for _, loc := range locs {
			buf.WriteString(str[last:loc[0]])
			buf.WriteString(with)
			last = loc[1]
		}
		buf.WriteString(str[last:])
		str = buf.String()
	case pe.Exp != nil:
		arg := c.ExpandLiteral(ctx, &pe.Exp.Word)
		switch op := pe.Exp.Op; op {
		case ast.OpColonPlus:
			if str == "" {
				break
			}
			fallthrough
		case ast.OpPlus:
			if set {
				str = arg
			}
		case ast.OpMinus:
			if set {
				break
			}
			fallthrough
		case ast.OpColonMinus:
			if str == "" {
				str = arg
			}
		case ast.OpQuestion:
			if set {
				break
			}
			fallthrough
		case ast.OpColonQuestion:
			if str == "" {
				c.err(UnsetParameterError{Expr: pe, Message: arg})
			}
		case ast.OpAssign:
			if set {
				break
			}
			fallthrough
		case ast.OpColonAssign:
			if str == "" {
				c.envSet(name, arg)
				str = arg
			}
		case ast.OpRemSmallPrefix, ast.OpRemLargePrefix,
			ast.OpRemSmallSuffix, ast.OpRemLargeSuffix:
			suffix := op == ast.OpRemSmallSuffix || op == ast.OpRemLargeSuffix
			large := op == ast.OpRemLargePrefix || op == ast.OpRemLargeSuffix
			for i, elem := range elems {
				elems[i] = removePattern(elem, arg, suffix, large)
			}
			str = strings.Join(elems, " ")
		case ast.OpUpperFirst, ast.OpUpperAll, ast.OpLowerFirst, ast.OpLowerAll:
			caseFunc := unicode.ToLower
			if op == ast.OpUpperFirst || op == ast.OpUpperAll {
				caseFunc = unicode.ToUpper
			}
			all := op == ast.OpUpperAll || op == ast.OpLowerAll
			if arg == "" {
				arg = "?"
			}
			expr, err := pattern.Regexp(arg, 0)
			if err != nil {
				return str
			}
			rx := regexp.MustCompile(expr)
			for i, elem := range elems {
				rs := []rune(elem)
				for ri, r := range rs {
					if rx.MatchString(string(r)) {
						rs[ri] = caseFunc(r)
						if !all {
							break
						}
					}
				}
				elems[i] = string(rs)
			}
			str = strings.Join(elems, " ")
		default:
			panic(fmt.Sprintf("unhandled param expansion op %v", op))
		}
	}
	return str
}

func removePattern(str, pat string, fromEnd, greedy bool) string {
	mode := pattern.Mode(0)
	if !greedy {
		mode |= pattern.Shortest
	}
	expr, err := pattern.Regexp(pat, mode)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !greedy:
		expr = ".*(" + expr + ")$"
	case fromEnd:
		expr = "(" + expr + ")$"
	default:
		expr = "^(" + expr + ")"
	}
	rx := regexp.MustCompile(expr)
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}

func findAllIndex(pat, name string, n int) [][]int {
	expr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return nil
	}
	// strip the anchors; we want substring matches here, not whole-string
	expr = strings.TrimPrefix(expr, "(?s)")
	expr = strings.TrimPrefix(expr, "^")
	expr = strings.TrimSuffix(expr, "$")
	rx, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return rx.FindAllStringIndex(name, n)
}

func (c *Context) varStr(vr Variable, depth int) string {
	if !vr.IsSet() || depth > maxNameRefDepth {
		return ""
	}
	if vr.Kind == NameRef {
		vr = c.Env.Get(vr.Str)
		return c.varStr(vr, depth+1)
	}
	return vr.String()
}

func (c *Context) varInd(ctx context.Context, vr Variable, idx *ast.Word, depth int) string {
	if depth > maxNameRefDepth {
		return ""
	}
	switch vr.Kind {
	case String, NameRef:
		if vr.Kind == NameRef {
			vr = c.Env.Get(vr.Str)
			return c.varInd(ctx, vr, idx, depth+1)
		}
		return vr.Str
	case Indexed:
		switch indexLit(idx, "@", "*") {
		case "@":
			return strings.Join(vr.List, " ")
		case "*":
			return c.ifsJoin(vr.List)
		}
		n, _ := c.Arithm(ctx, &ast.WordArithm{W: *idx})
		i := int(n)
		if i >= 0 && i < len(vr.List) {
			return vr.List[i]
		}
	case Associative:
		if lit := indexLit(idx, "@", "*"); lit != "" {
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var strs []string
			for _, k := range keys {
				strs = append(strs, vr.Map[k])
			}
			if lit == "*" {
				return c.ifsJoin(strs)
			}
			return strings.Join(strs, " ")
		}
		return vr.Map[c.ExpandLiteral(ctx, idx)]
	}
	return ""
}

func (c *Context) namesByPrefix(prefix string) []string {
	var names []string
	c.Env.Each(func(name string, vr Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	return names
}
