package parser

import (
	"possh/ast"
	"possh/lexer"
	"possh/token"
)

// word assembles one ast.Word from contiguous WordParts: literal runs,
// quoted spans, and the various '$'-led expansions. It stops at the first
// token that cannot continue a word (whitespace, an operator, EOF).
func (p *Parser) word() (ast.Word, error) {
	w := ast.Word{}
	for {
		if n := len(w.Parts); n > 0 && p.tok.Start != w.Parts[n-1].End() {
			break
		}
		part, ok, err := p.wordPart()
		if err != nil {
			return ast.Word{}, err
		}
		if !ok {
			break
		}
		w.Parts = append(w.Parts, part)
	}
	if len(w.Parts) == 0 {
		return ast.Word{}, p.errf("expected a word, found %s %q", p.tok.Kind, p.tok.Lexeme)
	}
	return splitBraces(w), nil
}

func (p *Parser) wordPart() (ast.WordPart, bool, error) {
	switch p.tok.Kind {
	case token.LIT, token.LITWORD, token.ASSIGNWORD:
		t := p.tok
		p.next()
		return &ast.Lit{ValuePos: t.Start, Value: t.Lexeme}, true, nil
	case token.SQUOTE:
		return p.singleQuoted()
	case token.DQUOTE:
		return p.doubleQuoted()
	case token.BQUOTE:
		return p.backtickSubst()
	case token.DOLLSQ:
		return p.ansiCQuoted()
	case token.DOLLDQ:
		return p.localeQuoted()
	case token.DOLLPR:
		return p.dollarParenSubst()
	case token.DOLLDP:
		return p.dollarArith()
	case token.DOLLBR:
		return p.paramExpBraced()
	case token.DOLLAR:
		return p.paramExpShort()
	}
	return nil, false, nil
}

// singleQuotedBody reads the LIT token produced by the lexer's single-quote
// mode, whose closing quote byte is already consumed as part of that token
// (unlike double quotes, there is no separate closer token to expect). It
// pops the mode and advances exactly once more so the next call sees
// whatever follows the quote, in the correct (restored) mode.
func (p *Parser) singleQuotedBody() (string, error) {
	p.next()
	if p.tok.Kind == token.ILLEGAL {
		return "", p.errf("unterminated single quote")
	}
	var value string
	if p.is(token.LIT) {
		value = p.tok.Lexeme
	}
	p.lex.PopMode()
	p.next()
	return value, nil
}

func (p *Parser) singleQuoted() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeSingleQuote)
	value, err := p.singleQuotedBody()
	if err != nil {
		return nil, false, err
	}
	return &ast.SglQuoted{Position: start, Value: value}, true, nil
}

func (p *Parser) ansiCQuoted() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeSingleQuote)
	value, err := p.singleQuotedBody()
	if err != nil {
		return nil, false, err
	}
	return &ast.SglQuoted{Position: start, Dollar: true, Value: value}, true, nil
}

func (p *Parser) doubleQuoted() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeDoubleQuote)
	p.next()
	dq := &ast.DblQuoted{Position: start}
	for !p.is(token.DQUOTE) {
		if p.tok.Kind == token.ILLEGAL {
			return nil, false, p.errf("unterminated double quote")
		}
		part, ok, err := p.wordPart()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errf("unterminated double quote")
		}
		if lit, isLit := part.(*ast.Lit); isLit {
			lit.Quoted = true
		}
		dq.Parts = append(dq.Parts, part)
	}
	p.lex.PopMode()
	p.next() // consume closing DQUOTE
	return dq, true, nil
}

func (p *Parser) localeQuoted() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeDoubleQuote)
	p.next()
	dq := &ast.DblQuoted{Position: start, Dollar: true}
	for !p.is(token.DQUOTE) {
		if p.tok.Kind == token.ILLEGAL {
			return nil, false, p.errf("unterminated locale string")
		}
		part, ok, err := p.wordPart()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		dq.Parts = append(dq.Parts, part)
	}
	p.lex.PopMode()
	p.next()
	return dq, true, nil
}

// backtickSubst parses `...` by re-lexing its contents as a nested program;
// the closing backtick is recognized at the default lexer level because
// backtick command substitutions do not nest their own quoting context the
// way $(...) does.
func (p *Parser) backtickSubst() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.next()
	p.wantCommandStart()
	cl, err := p.commandList(token.BQUOTE)
	if err != nil {
		return nil, false, err
	}
	if !p.is(token.BQUOTE) {
		return nil, false, p.errf("unterminated backtick command substitution")
	}
	end := p.tok.Start
	p.next()
	return &ast.CmdSubst{Left: start, Right: end, Backticks: true, Stmts: cl}, true, nil
}

func (p *Parser) dollarParenSubst() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeDollarParen)
	p.next()
	p.wantCommandStart()
	cl, err := p.commandList(token.RPAREN)
	if err != nil {
		return nil, false, err
	}
	end := p.tok.Start
	p.lex.PopMode()
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, false, err
	}
	return &ast.CmdSubst{Left: start, Right: end, Stmts: cl}, true, nil
}

func (p *Parser) dollarArith() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeArith)
	p.next()
	x, err := p.arithmExpr(0)
	if err != nil {
		return nil, false, err
	}
	p.lex.PopMode()
	end := p.tok.Start
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, false, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, false, err
	}
	return &ast.ArithExp{Left: start, Right: end, X: x}, true, nil
}

func (p *Parser) paramExpShort() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.next()
	if !(p.is(token.LIT) || p.is(token.LITWORD)) {
		// "$" followed by something that isn't a name: treat as a literal
		// dollar sign (e.g. end of word, or "$ " ).
		return &ast.Lit{ValuePos: start, Value: "$"}, true, nil
	}
	name := p.tok.Lexeme
	p.next()
	return &ast.ParamExp{Dollar: start, Short: true, Param: ast.Lit{ValuePos: start + 1, Value: name}}, true, nil
}

func (p *Parser) paramExpBraced() (ast.WordPart, bool, error) {
	start := p.tok.Start
	p.lex.PushMode(lexer.ModeParamExp)
	p.next()
	pe := &ast.ParamExp{Dollar: start}

	if p.is(token.HASH) && startsName(p.peek()) {
		pe.Length = true
		p.next()
	} else if p.is(token.NOT) {
		pe.Indirect = true
		p.next()
	}

	name := ""
	if p.is(token.LIT) || p.is(token.LITWORD) {
		name = p.tok.Lexeme
		p.next()
	}
	pe.Param = ast.Lit{ValuePos: start, Value: name}

	switch p.tok.Kind {
	case token.LBRACK:
		p.next()
		idx, err := p.wordUntil(token.RBRACK)
		if err != nil {
			return nil, false, err
		}
		pe.Index = &idx
		if _, err := p.expect(token.RBRACK); err != nil {
			return nil, false, err
		}
	}

	switch p.tok.Kind {
	case token.COLON:
		p.next()
		if p.is(token.SUB) || p.is(token.ADD) || p.is(token.ASSIGN) || p.is(token.QUEST) {
			op, err := p.parExpOp(true)
			if err != nil {
				return nil, false, err
			}
			pe.Exp = op
			break
		}
p.lex.PushMode(lexer.ModeArith)
		p.next()
		off, err := p.arithmExpr(0)
		if err != nil {
			return nil, false, err
		}
		sl := &ast.Slice{Offset: off}
		if p.is(token.COLON) {
			p.next()
			length, err := p.arithmExpr(0)
			if err != nil {
				return nil, false, err
			}
			sl.Length = length
		}
		p.lex.PopMode()
		pe.Slice = sl
	case token.SUB, token.ADD, token.ASSIGN, token.QUEST:
		op, err := p.parExpOp(false)
		if err != nil {
			return nil, false, err
		}
		pe.Exp = op
	case token.HASH:
		op := ast.OpRemSmallPrefix
		p.next()
		if p.is(token.HASH) {
			op = ast.OpRemLargePrefix
			p.next()
		}
		w, err := p.wordUntil(token.RBRACE)
		if err != nil {
			return nil, false, err
		}
		pe.Exp = &ast.Expansion{Op: op, Word: w}
	case token.REM:
		op := ast.OpRemSmallSuffix
		p.next()
		if p.is(token.REM) {
			op = ast.OpRemLargeSuffix
			p.next()
		}
		w, err := p.wordUntil(token.RBRACE)
		if err != nil {
			return nil, false, err
		}
		pe.Exp = &ast.Expansion{Op: op, Word: w}
	case token.XOR:
		op := ast.OpUpperFirst
		p.next()
		if p.is(token.XOR) {
			op = ast.OpUpperAll
			p.next()
		}
		w, err := p.wordUntil(token.RBRACE)
		if err != nil {
			return nil, false, err
		}
		pe.Exp = &ast.Expansion{Op: op, Word: w}
	case token.COMMA:
		op := ast.OpLowerFirst
		p.next()
		if p.is(token.COMMA) {
			op = ast.OpLowerAll
			p.next()
		}
		w, err := p.wordUntil(token.RBRACE)
		if err != nil {
			return nil, false, err
		}
		pe.Exp = &ast.Expansion{Op: op, Word: w}
	case token.QUO:
		p.next()
		all := false
		if p.is(token.QUO) {
			all = true
			p.next()
		}
		orig, err := p.wordUntil(token.QUO, token.RBRACE)
		if err != nil {
			return nil, false, err
		}
		repl := &ast.Replace{All: all, Orig: orig}
		if p.is(token.QUO) {
			p.next()
			with, err := p.wordUntil(token.RBRACE)
			if err != nil {
				return nil, false, err
			}
			repl.With = with
		}
		pe.Repl = repl
	}

	p.lex.PopMode()
	pe.Rbrace = p.tok.Start
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, false, err
	}
	return pe, true, nil
}

// parExpOp reads one of the -/+/=/? (or :- :+ := :? when colon is true)
// substitution operators and its word operand.
func (p *Parser) parExpOp(colon bool) (*ast.Expansion, error) {
	var op ast.ParExpOp
	switch p.tok.Kind {
	case token.SUB:
		op = pick(colon, ast.OpColonMinus, ast.OpMinus)
	case token.ADD:
		op = pick(colon, ast.OpColonPlus, ast.OpPlus)
	case token.ASSIGN:
		op = pick(colon, ast.OpColonAssign, ast.OpAssign)
	case token.QUEST:
		op = pick(colon, ast.OpColonQuestion, ast.OpQuestion)
	}
	p.next()
	w, err := p.wordUntil(token.RBRACE)
	if err != nil {
		return nil, err
	}
	return &ast.Expansion{Op: op, Word: w}, nil
}

func startsName(t lexer.Token) bool {
	return t.Kind == token.LIT || t.Kind == token.LITWORD
}

func pick(cond bool, a, b ast.ParExpOp) ast.ParExpOp {
	if cond {
		return a
	}
	return b
}

// wordUntil reads word parts until one of the given stop tokens (which is
// left unconsumed).
func (p *Parser) wordUntil(stop ...token.Kind) (ast.Word, error) {
	w := ast.Word{}
	for !p.atStop(stop) {
		if p.tok.Kind == token.ILLEGAL {
			return ast.Word{}, p.errf("unterminated expansion")
		}
		part, ok, err := p.wordPart()
		if err != nil {
			return ast.Word{}, err
		}
		if !ok {
			break
		}
		w.Parts = append(w.Parts, part)
	}
	return splitBraces(w), nil
}
