package expand

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"possh/ast"
	"possh/token"
)

// Arithm evaluates an arithmetic expression under $(( )) / (( )) rules:
// integer-only, 64-bit, C operator precedence and assignment semantics.
func (c *Context) Arithm(ctx context.Context, expr ast.ArithmExpr) (int64, error) {
	switch expr := expr.(type) {
	case *ast.WordArithm:
		str := c.ExpandLiteral(ctx, &expr.W)
		i := 0
		for isName(str) {
			val := c.envGet(str)
			if val == "" {
				break
			}
			if i++; i >= maxNameRefDepth {
				break
			}
			str = val
		}
		return atoi(str), nil
	case *ast.ParenArithm:
		return c.Arithm(ctx, expr.X)
	case *ast.UnaryArithm:
		switch expr.Op {
		case token.INC, token.DEC:
			name := expr.X.(*ast.WordArithm).W.Lit()
			old := atoi(c.envGet(name))
			val := old
			if expr.Op == token.INC {
				val++
			} else {
				val--
			}
			c.envSet(name, strconv.FormatInt(val, 10))
			if expr.Post {
				return old, nil
			}
			return val, nil
		}
		val, err := c.Arithm(ctx, expr.X)
		if err != nil {
			return 0, err
		}
		switch expr.Op {
		case token.NOT:
			return oneIf(val == 0), nil
		case token.TILDE:
			return ^val, nil
		case token.ADD:
			return val, nil
		default: // token.SUB
			return -val, nil
		}
	case *ast.BinaryArithm:
		switch expr.Op {
		case token.ASSIGN, token.ADDASSGN, token.SUBASSGN, token.MULASSGN, token.QUOASSGN,
			token.REMASSGN, token.ANDASSGN, token.ORASSGN, token.XORASSGN,
			token.SHLASSGN, token.SHRASSGN:
			return c.assignArith(ctx, expr)
		case token.QUEST:
			cond, err := c.Arithm(ctx, expr.X)
			if err != nil {
				return 0, err
			}
			b2 := expr.Y.(*ast.BinaryArithm) // Op == token.COLON
			if cond != 0 {
				return c.Arithm(ctx, b2.X)
			}
			return c.Arithm(ctx, b2.Y)
		}
		left, err := c.Arithm(ctx, expr.X)
		if err != nil {
			return 0, err
		}
		right, err := c.Arithm(ctx, expr.Y)
		if err != nil {
			return 0, err
		}
		return binArith(expr.Op, left, right)
	default:
		panic(fmt.Sprintf("unexpected arithm expr: %T", expr))
	}
}

func oneIf(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func atoi(s string) int64 {
	s = strings.TrimSpace(s)
	n, _ := strconv.ParseInt(s, 0, 64)
	return n
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func (c *Context) assignArith(ctx context.Context, b *ast.BinaryArithm) (int64, error) {
	name := b.X.(*ast.WordArithm).W.Lit()
	val := atoi(c.envGet(name))
	arg, err := c.Arithm(ctx, b.Y)
	if err != nil {
		return 0, err
	}
	switch b.Op {
	case token.ASSIGN:
		val = arg
	case token.ADDASSGN:
		val += arg
	case token.SUBASSGN:
		val -= arg
	case token.MULASSGN:
		val *= arg
	case token.QUOASSGN:
		if arg == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		val /= arg
	case token.REMASSGN:
		if arg == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		val %= arg
	case token.ANDASSGN:
		val &= arg
	case token.ORASSGN:
		val |= arg
	case token.XORASSGN:
		val ^= arg
	case token.SHLASSGN:
		val <<= uint(arg)
	case token.SHRASSGN:
		val >>= uint(arg)
	}
	c.envSet(name, strconv.FormatInt(val, 10))
	return val, nil
}

func intPow(a, b int64) int64 {
	p := int64(1)
	for b > 0 {
		if b&1 != 0 {
			p *= a
		}
		b >>= 1
		a *= a
	}
	return p
}

func binArith(op token.Kind, x, y int64) (int64, error) {
	switch op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		if y == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return x / y, nil
	case token.REM:
		if y == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return x % y, nil
	case token.POW:
		return intPow(x, y), nil
	case token.EQL:
		return oneIf(x == y), nil
	case token.GTR:
		return oneIf(x > y), nil
	case token.LSS:
		return oneIf(x < y), nil
	case token.NEQ:
		return oneIf(x != y), nil
	case token.LEQ:
		return oneIf(x <= y), nil
	case token.GEQ:
		return oneIf(x >= y), nil
	case token.AND:
		return x & y, nil
	case token.OR:
		return x | y, nil
	case token.XOR:
		return x ^ y, nil
	case token.SHR:
		return x >> uint(y), nil
	case token.SHL:
		return x << uint(y), nil
	case token.ANDARITH:
		return oneIf(x != 0 && y != 0), nil
	case token.ORARITH:
		return oneIf(x != 0 || y != 0), nil
	default: // token.COMMA
		return y, nil
	}
}
