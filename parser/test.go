package parser

import (
	"possh/ast"
	"possh/lexer"
	"possh/token"
)

// unaryTestFlags are the single-argument file/string test operators valid
// inside [[ ... ]]; the lexer hands these back as ordinary LITWORD tokens
// (e.g. "-f", "-z"), so the parser recognizes them by name.
var unaryTestFlags = map[string]bool{
	"-a": true, "-b": true, "-c": true, "-d": true, "-e": true, "-f": true,
	"-g": true, "-h": true, "-k": true, "-p": true, "-r": true, "-s": true,
	"-t": true, "-u": true, "-w": true, "-x": true, "-G": true, "-L": true,
	"-N": true, "-O": true, "-S": true, "-z": true, "-n": true, "-v": true, "-o": true,
}

// testExpr parses the body of [[ ... ]]: an or-expression of and-expressions
// of (possibly negated) primaries.
func (p *Parser) testExpr() (ast.TestExpr, error) {
	return p.testOr()
}

func (p *Parser) testOr() (ast.TestExpr, error) {
	x, err := p.testAnd()
	if err != nil {
		return nil, err
	}
	for p.is(token.LOR) {
		op := p.tok
		p.next()
		y, err := p.testAnd()
		if err != nil {
			return nil, err
		}
		x = &ast.BinaryTest{OpPos: op.Start, Op: token.LOR, X: x, Y: y}
	}
	return x, nil
}

func (p *Parser) testAnd() (ast.TestExpr, error) {
	x, err := p.testNot()
	if err != nil {
		return nil, err
	}
	for p.is(token.LAND) {
		op := p.tok
		p.next()
		y, err := p.testNot()
		if err != nil {
			return nil, err
		}
		x = &ast.BinaryTest{OpPos: op.Start, Op: token.LAND, X: x, Y: y}
	}
	return x, nil
}

func (p *Parser) testNot() (ast.TestExpr, error) {
	if p.is(token.NOT) {
		op := p.tok
		p.next()
		x, err := p.testNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryTest{OpPos: op.Start, Op: token.NOT, X: x}, nil
	}
	return p.testPrimary()
}

func (p *Parser) testPrimary() (ast.TestExpr, error) {
	if p.is(token.LPAREN) {
		lp := p.tok.Start
		p.next()
		x, err := p.testExpr()
		if err != nil {
			return nil, err
		}
		rp := p.tok.Start
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return &ast.ParenTest{Lparen: lp, Rparen: rp, X: x}, nil
	}
	if (p.is(token.LITWORD) || p.is(token.LIT)) && unaryTestFlags[p.tok.Lexeme] {
		op := p.tok
		p.next()
		w, err := p.word()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryTest{OpPos: op.Start, Op: token.LITWORD, X: &ast.WordTest{W: w}}, nil
	}
	lhs, err := p.word()
	if err != nil {
		return nil, err
	}
	switch p.tok.Kind {
	case token.EQL, token.ASSIGN, token.NEQ, token.LSS, token.GTR, token.REMATCH:
		op := p.tok
		p.next()
		var rhs ast.Word
		if op.Kind == token.REMATCH {
			rhs, err = p.regexWord()
		} else {
			rhs, err = p.word()
		}
		if err != nil {
			return nil, err
		}
		return &ast.BinaryTest{OpPos: op.Start, Op: op.Kind, X: &ast.WordTest{W: lhs}, Y: &ast.WordTest{W: rhs}}, nil
	}
	return &ast.WordTest{W: lhs}, nil
}

// regexWord reads an ERE pattern word for "=~"; bash treats an unquoted
// pattern specially (no word splitting/globbing) but still honors quoting
// and expansions within it, so the same word reader applies.
func (p *Parser) regexWord() (ast.Word, error) {
	return p.word()
}

func (p *Parser) enhancedTest() (ast.Command, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeDblBracket)
	p.next()
	x, err := p.testExpr()
	if err != nil {
		return nil, err
	}
	p.lex.PopMode()
	end := p.tok.Start
	if _, err := p.expect(token.DRBRCK); err != nil {
		return nil, err
	}
	et := &ast.EnhancedTest{Lbrack: start, Rbrack: end, X: x}
	et.Redirs, err = p.redirects()
	if err != nil {
		return nil, err
	}
	return et, nil
}
