package parser

import (
	"possh/ast"
	"possh/token"
)

// precedence returns the binding power of a binary arithmetic operator, or
// -1 if tok isn't one. Higher binds tighter. Mirrors C's operator
// precedence as used inside $(( )) and (( )).
func precedence(k token.Kind) int {
	switch k {
	case token.COMMA:
		return 1
	case token.ASSIGN, token.ADDASSGN, token.SUBASSGN, token.MULASSGN, token.QUOASSGN,
		token.REMASSGN, token.SHLASSGN, token.SHRASSGN, token.ANDASSGN, token.ORASSGN, token.XORASSGN:
		return 2
	case token.QUEST:
		return 3
	case token.ORARITH:
		return 4
	case token.ANDARITH:
		return 5
	case token.OR:
		return 6
	case token.XOR:
		return 7
	case token.AND:
		return 8
	case token.EQL, token.NEQ:
		return 9
	case token.LSS, token.GTR, token.LEQ, token.GEQ:
		return 10
	case token.SHL, token.SHR:
		return 11
	case token.ADD, token.SUB:
		return 12
	case token.MUL, token.QUO, token.REM:
		return 13
	case token.POW:
		return 14
	}
	return -1
}

func rightAssoc(k token.Kind) bool {
	switch k {
	case token.ASSIGN, token.ADDASSGN, token.SUBASSGN, token.MULASSGN, token.QUOASSGN,
		token.REMASSGN, token.SHLASSGN, token.SHRASSGN, token.ANDASSGN, token.ORASSGN,
		token.XORASSGN, token.QUEST, token.POW:
		return true
	}
	return false
}

// arithmExpr parses a binary-operator-precedence arithmetic expression
// starting from minPrec.
func (p *Parser) arithmExpr(minPrec int) (ast.ArithmExpr, error) {
	x, err := p.arithmUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec := precedence(p.tok.Kind)
		if prec < minPrec || prec < 0 {
			return x, nil
		}
		op := p.tok
		nextMin := prec + 1
		if rightAssoc(op.Kind) {
			nextMin = prec
		}
		p.next()
		if op.Kind == token.QUEST {
			then, err := p.arithmExpr(0)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.COLON); err != nil {
				return nil, err
			}
			els, err := p.arithmExpr(nextMin)
			if err != nil {
				return nil, err
			}
			thenBin := &ast.BinaryArithm{OpPos: op.Start, Op: token.COLON, X: then, Y: els}
			x = &ast.BinaryArithm{OpPos: op.Start, Op: token.QUEST, X: x, Y: thenBin}
			continue
		}
		y, err := p.arithmExpr(nextMin)
		if err != nil {
			return nil, err
		}
		x = &ast.BinaryArithm{OpPos: op.Start, Op: op.Kind, X: x, Y: y}
	}
}

// arithmUnary parses unary prefix/postfix operators and primary terms.
func (p *Parser) arithmUnary() (ast.ArithmExpr, error) {
	switch p.tok.Kind {
	case token.ADD, token.SUB, token.NOT, token.TILDE, token.INC, token.DEC:
		op := p.tok
		p.next()
		x, err := p.arithmUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryArithm{OpPos: op.Start, Op: op.Kind, X: x}, nil
	case token.LPAREN:
		lp := p.tok.Start
		p.next()
		x, err := p.arithmExpr(0)
		if err != nil {
			return nil, err
		}
		rp := p.tok.Start
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return p.arithmPostfix(&ast.ParenArithm{Lparen: lp, Rparen: rp, X: x})
	default:
		w, err := p.arithmWord()
		if err != nil {
			return nil, err
		}
		return p.arithmPostfix(&ast.WordArithm{W: w})
	}
}

func (p *Parser) arithmPostfix(x ast.ArithmExpr) (ast.ArithmExpr, error) {
	if p.tok.Kind == token.INC || p.tok.Kind == token.DEC {
		op := p.tok
		p.next()
		return &ast.UnaryArithm{OpPos: op.Start, Op: op.Kind, Post: true, X: x}, nil
	}
	return x, nil
}

// arithmWord reads a single word (a variable name or a numeric literal, or
// any nested expansion) to serve as an arithmetic leaf.
func (p *Parser) arithmWord() (ast.Word, error) {
	return p.wordUntil(token.RPAREN, token.DRPAREN, token.SEMICOLON, token.COLON,
		token.QUEST, token.RBRACE, token.RBRACK, token.COMMA, token.EOF,
		token.ADD, token.SUB, token.MUL, token.QUO, token.REM, token.POW,
		token.EQL, token.NEQ, token.LEQ, token.GEQ, token.LSS, token.GTR,
		token.SHL, token.SHR, token.AND, token.OR, token.XOR, token.ANDARITH,
		token.ORARITH, token.ASSIGN, token.INC, token.DEC,
		token.ADDASSGN, token.SUBASSGN, token.MULASSGN, token.QUOASSGN, token.REMASSGN,
		token.SHLASSGN, token.SHRASSGN, token.ANDASSGN, token.ORASSGN, token.XORASSGN)
}

