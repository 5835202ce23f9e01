package parser

import (
	"possh/ast"
	"possh/lexer"
	"possh/token"
)

func (p *Parser) redirects() ([]*ast.Redirect, error) {
	var out []*ast.Redirect
	for {
		var fd *int
		if (p.is(token.LIT) || p.is(token.LITWORD)) && isRedirOpAhead(p) {
			if n, ok := fdPrefix(p.tok.Lexeme); ok {
				f := n
				fd = &f
				p.next()
			}
		}
		switch p.tok.Kind {
		case token.LSS, token.GTR, token.SHL, token.SHR, token.DHEREDOC, token.WHEREDOC,
			token.DPLIN, token.DPLOUT, token.RDRINOUT, token.CLOBBER, token.RDRALL, token.APPALL:
			r, err := p.redirect(fd)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		default:
			if fd != nil {
				return nil, p.errf("expected a redirection operator after file descriptor")
			}
			return out, nil
		}
	}
}

// redirect parses a single redirection operator and its target, given an
// already-consumed optional file descriptor.
func (p *Parser) redirect(fd *int) (*ast.Redirect, error) {
	opTok := p.tok
	var kind ast.RedirKind
	switch opTok.Kind {
	case token.LSS:
		kind = ast.RedirIn
	case token.GTR:
		kind = ast.RedirOut
	case token.SHR:
		kind = ast.RedirAppend
	case token.CLOBBER:
		kind = ast.RedirOutClob
	case token.RDRINOUT:
		kind = ast.RedirReadWrite
	case token.DPLIN:
		kind = ast.RedirDupIn
	case token.DPLOUT:
		kind = ast.RedirDupOut
	case token.RDRALL:
		kind = ast.RedirOutErr
	case token.APPALL:
		kind = ast.RedirAppErr
	case token.WHEREDOC:
		kind = ast.RedirHerestr
	case token.SHL, token.DHEREDOC:
		kind = ast.RedirHeredoc
	}
	p.next()

	r := &ast.Redirect{OpPos: opTok.Start, Fd: fd, Op: kind}

	if kind == ast.RedirHeredoc {
		stripTabs := opTok.Kind == token.DHEREDOC
		delim, quoted, err := p.heredocDelim()
		if err != nil {
			return nil, err
		}
		p.lex.AddPendingHeredoc(delim, quoted, stripTabs)
		r.Hdoc = &ast.HereDoc{Delim: delim, Quoted: quoted, StripTabs: stripTabs}
		p.pendingHeredocs = append(p.pendingHeredocs, r.Hdoc)
		if p.is(token.NEWLINE) {
			if err := p.fillPendingHeredocs(); err != nil {
				return nil, err
			}
		}
		return r, nil
	}

	w, err := p.word()
	if err != nil {
		return nil, err
	}
	r.Target = w
	return r, nil
}

// heredocDelim reads the delimiter word of a heredoc operator and reports
// whether any part of it was quoted (which disables expansion in the body).
func (p *Parser) heredocDelim() (string, bool, error) {
	w, err := p.word()
	if err != nil {
		return "", false, err
	}
	var sb []byte
	quoted := false
	for _, part := range w.Parts {
		switch v := part.(type) {
		case *ast.Lit:
			sb = append(sb, v.Value...)
		case *ast.SglQuoted:
			quoted = true
			sb = append(sb, v.Value...)
		case *ast.DblQuoted:
			quoted = true
			for _, ip := range v.Parts {
				if lit, ok := ip.(*ast.Lit); ok {
					sb = append(sb, lit.Value...)
				}
			}
		}
	}
	return string(sb), quoted, nil
}

// fillPendingHeredocs is called once a full pipeline's statement separator
// (newline) has been consumed: it pulls each heredoc body off the lexer in
// the order their operators appeared and fills in the already-built
// ast.HereDoc nodes.
func (p *Parser) fillPendingHeredocs() error {
	for len(p.pendingHeredocs) > 0 {
		hd := p.pendingHeredocs[0]
		p.pendingHeredocs = p.pendingHeredocs[1:]
		body, _, _, err := p.lex.ConsumeHeredocBody()
		if err != nil {
			return err
		}
		if hd.Quoted {
			hd.Body = ast.Word{Parts: []ast.WordPart{&ast.Lit{Value: body, Quoted: true}}}
			continue
		}
		sub := New([]byte(body), p.filename)
		sub.lex.PushMode(lexer.ModeDoubleQuote)
		sub.next()
		w := ast.Word{}
		for !sub.is(token.EOF) {
			part, ok, err := sub.wordPart()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			w.Parts = append(w.Parts, part)
		}
		hd.Body = w
	}
	return nil
}

func (p *Parser) ifClause() (ast.Command, error) {
	start := p.tok.Start
	p.next()
	cond, err := p.commandList(token.THEN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	then, err := p.commandList(token.ELIF, token.ELSE, token.FI)
	if err != nil {
		return nil, err
	}
	ifc := &ast.If{IfPos: start, Cond: cond, Then: then}
	for p.is(token.ELIF) {
		p.next()
		ec, err := p.commandList(token.THEN)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.THEN); err != nil {
			return nil, err
		}
		et, err := p.commandList(token.ELIF, token.ELSE, token.FI)
		if err != nil {
			return nil, err
		}
		ifc.Elifs = append(ifc.Elifs, &ast.Elif{Cond: ec, Then: et})
	}
	if p.is(token.ELSE) {
		p.next()
		el, err := p.commandList(token.FI)
		if err != nil {
			return nil, err
		}
		ifc.Else = el
	}
	ifc.FiPos = p.tok.Start
	if _, err := p.expect(token.FI); err != nil {
		return nil, err
	}
	var err2 error
	ifc.Redirs, err2 = p.redirects()
	return ifc, err2
}

func (p *Parser) whileClause(until bool) (ast.Command, error) {
	start := p.tok.Start
	p.next()
	cond, err := p.commandList(token.DO)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.DO); err != nil {
		return nil, err
	}
	body, err := p.commandList(token.DONE)
	if err != nil {
		return nil, err
	}
	done := p.tok.Start
	if _, err := p.expect(token.DONE); err != nil {
		return nil, err
	}
	w := &ast.While{Pos_: start, DonePos: done, Until: until, Cond: cond, Body: body}
	w.Redirs, err = p.redirects()
	return w, err
}

func (p *Parser) forClause() (ast.Command, error) {
	start := p.tok.Start
	p.next()
	f := &ast.For{ForPos: start}

	if p.is(token.DLPAREN) {
		p.lex.PushMode(lexer.ModeArith)
		p.next()
		cst := &ast.CStyleFor{}
		var err error
		if !p.is(token.SEMICOLON) {
			cst.Init, err = p.arithmExpr(0)
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		if !p.is(token.SEMICOLON) {
			cst.Cond, err = p.arithmExpr(0)
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		if !p.is(token.RPAREN) {
			cst.Post, err = p.arithmExpr(0)
			if err != nil {
				return nil, err
			}
		}
		p.lex.PopMode()
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		f.Loop = cst
	} else {
		name, err := p.expect(token.LIT)
		if err != nil {
			name, err = p.expect(token.LITWORD)
			if err != nil {
				return nil, p.errf("expected a name after 'for'")
			}
		}
		wi := &ast.WordIter{Name: ast.Lit{ValuePos: name.Start, Value: name.Lexeme}}
		p.skipNewlines()
		if p.is(token.IN) {
			wi.HasIn = true
			p.next()
			for isWordStart(p.tok.Kind) {
				w, err := p.word()
				if err != nil {
					return nil, err
				}
				wi.List = append(wi.List, w)
			}
		}
		f.Loop = wi
	}

	p.terminateListHeader()
	if _, err := p.expect(token.DO); err != nil {
		return nil, err
	}
	body, err := p.commandList(token.DONE)
	if err != nil {
		return nil, err
	}
	f.DonePos = p.tok.Start
	if _, err := p.expect(token.DONE); err != nil {
		return nil, err
	}
	f.Body = body
	f.Redirs, err = p.redirects()
	return f, err
}

// terminateListHeader consumes the ';' or newline that separates a loop's
// header from its "do" keyword (both "for x in a b; do" and multi-line
// "for x in a b\ndo" are valid).
func (p *Parser) terminateListHeader() {
	for p.is(token.SEMICOLON) || p.is(token.NEWLINE) {
		p.next()
	}
}

func (p *Parser) selectClause() (ast.Command, error) {
	start := p.tok.Start
	p.next()
	name, err := p.expect(token.LIT)
	if err != nil {
		name, err = p.expect(token.LITWORD)
		if err != nil {
			return nil, p.errf("expected a name after 'select'")
		}
	}
	sel := &ast.Select{SelectPos: start, Name: ast.Lit{ValuePos: name.Start, Value: name.Lexeme}}
	p.skipNewlines()
	if p.is(token.IN) {
		p.next()
		for isWordStart(p.tok.Kind) {
			w, err := p.word()
			if err != nil {
				return nil, err
			}
			sel.List = append(sel.List, w)
		}
	}
	p.terminateListHeader()
	if _, err := p.expect(token.DO); err != nil {
		return nil, err
	}
	body, err := p.commandList(token.DONE)
	if err != nil {
		return nil, err
	}
	sel.DonePos = p.tok.Start
	if _, err := p.expect(token.DONE); err != nil {
		return nil, err
	}
	sel.Body = body
	sel.Redirs, err = p.redirects()
	return sel, err
}

func (p *Parser) caseClause() (ast.Command, error) {
	start := p.tok.Start
	p.next()
	word, err := p.word()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	p.skipNewlines()
	c := &ast.Case{CasePos: start, Word: word}
	for !p.is(token.ESAC) {
		item, err := p.caseItem()
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, item)
		p.skipNewlines()
	}
	c.EsacPos = p.tok.Start
	if _, err := p.expect(token.ESAC); err != nil {
		return nil, err
	}
	c.Redirs, err = p.redirects()
	return c, err
}

func (p *Parser) caseItem() (*ast.CaseItem, error) {
	item := &ast.CaseItem{}
	p.accept(token.LPAREN)
	for {
		w, err := p.word()
		if err != nil {
			return nil, err
		}
		item.Patterns = append(item.Patterns, w)
		if p.is(token.OR) {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	p.skipNewlines()
	body, err := p.commandList(token.DSEMICOLON, token.SEMIFALL, token.DSEMIFALL, token.ESAC)
	if err != nil {
		return nil, err
	}
	item.Body = body
	p.wantCommandStart()
	switch p.tok.Kind {
	case token.DSEMICOLON:
		item.Term = ast.CaseBreak
		p.next()
	case token.SEMIFALL:
		item.Term = ast.CaseFallthrough
		p.next()
	case token.DSEMIFALL:
		item.Term = ast.CaseContinue
		p.next()
	default:
		item.Term = ast.CaseBreak
	}
	p.skipNewlines()
	return item, nil
}

func (p *Parser) subshell() (ast.Command, error) {
	lp := p.tok.Start
	p.next()
	p.wantCommandStart()
	body, err := p.commandList(token.RPAREN)
	if err != nil {
		return nil, err
	}
	rp := p.tok.Start
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	sub := &ast.Subshell{Lparen: lp, Rparen: rp, Body: body}
	sub.Redirs, err = p.redirects()
	return sub, err
}

func (p *Parser) braceGroup() (ast.Command, error) {
	lb := p.tok.Start
	p.next()
	body, err := p.commandList(token.RBRACE)
	if err != nil {
		return nil, err
	}
	rb := p.tok.Start
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	bg := &ast.BraceGroup{Lbrace: lb, Rbrace: rb, Body: body}
	bg.Redirs, err = p.redirects()
	return bg, err
}

func (p *Parser) arithCmd() (ast.Command, error) {
	lp := p.tok.Start
	p.lex.PushMode(lexer.ModeArith)
	p.next()
	x, err := p.arithmExpr(0)
	if err != nil {
		return nil, err
	}
	p.lex.PopMode()
	rp := p.tok.Start
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	ac := &ast.ArithCmd{Lparen: lp, Rparen: rp, X: x}
	ac.Redirs, err = p.redirects()
	return ac, err
}

// functionDef parses either "function name { ...; }" / "function name (...)"
// (bashStyle true, the leading "function" keyword already consumed by the
// caller when present) or the POSIX "name() { ...; }" form detected by the
// caller via one-token lookahead.
func (p *Parser) functionDef(bashStyle bool) (ast.Command, error) {
	start := p.tok.Start
	if bashStyle {
		p.next() // consume 'function'
	}
	name, err := p.expect(token.LITWORD)
	if err != nil {
		name, err = p.expect(token.LIT)
		if err != nil {
			return nil, p.errf("expected a function name")
		}
	}
	if p.is(token.LPAREN) {
		p.next()
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}
	p.skipNewlines()
	body, err := p.command()
	if err != nil {
		return nil, err
	}
	fd := &ast.FunctionDef{Position: start, BashStyle: bashStyle, Name: ast.Lit{ValuePos: name.Start, Value: name.Lexeme}, Body: body}
	return fd, nil
}
