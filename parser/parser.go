// Package parser builds a syntax tree (possh/ast) from the tokens produced
// by possh/lexer. It is a recursive-descent parser with one token of
// lookahead, following the shell grammar: a program is a list of and-or
// lists of pipelines of commands, where a command is either a simple
// command or one of the compound forms (if/while/until/for/case/select/
// function/subshell/brace-group/((...))/[[...]]).
package parser

import (
	"fmt"

	"possh/ast"
	"possh/lexer"
	"possh/token"
)

// SyntaxError reports a parse failure at a source position.
type SyntaxError struct {
	Pos        ast.Pos
	Message    string
	Incomplete bool // an interactive driver should prompt for more input
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error near position %d: %s", e.Pos, e.Message)
}

// Parser consumes tokens from a Lexer and assembles an *ast.CommandList.
type Parser struct {
	lex      *lexer.Lexer
	filename string

	tok        lexer.Token
	peeked     *lexer.Token
	atStart    bool // next word read is in command-start position
	pendingErr error

	pendingHeredocs []*ast.HereDoc
}

// New creates a Parser reading from src. filename is used only for error
// messages.
func New(src []byte, filename string) *Parser {
	p := &Parser{lex: lexer.New(src), filename: filename, atStart: true}
	return p
}

// ParseProgram parses an entire script or interactive chunk.
func ParseProgram(src []byte, filename string) (*ast.CommandList, error) {
	p := New(src, filename)
	p.next()
	cl, err := p.commandList(token.EOF)
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != token.EOF {
		return nil, p.errf("unexpected token %s", p.tok.Kind)
	}
	return cl, nil
}

func (p *Parser) errf(format string, args ...any) error {
	if p.tok.Kind == token.ILLEGAL && p.pendingErr != nil {
		return p.pendingErr
	}
	return &SyntaxError{Pos: p.tok.Start, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) errIncomplete(format string, args ...any) error {
	return &SyntaxError{Pos: p.tok.Start, Message: fmt.Sprintf(format, args...), Incomplete: true}
}

// next advances to the next token, telling the lexer whether it is at
// command start (atStart). atStart is left as it is: simpleCommand and
// assignment clear it, and wantCommandStart sets it again.
func (p *Parser) next() {
	if p.peeked != nil {
		p.tok = *p.peeked
		p.peeked = nil
		return
	}
	p.lex.SetCommandStart(p.atStart)
	tok, err := p.lex.Next()
	if err != nil {
		p.tok = lexer.Token{Kind: token.ILLEGAL}
		p.pendingErr = err
		return
	}
	p.tok = tok
	// A heredoc body sits immediately after the newline that ends its
	// command line, before any further real tokens; drain it here so the
	// lexer's cursor never tries to scan heredoc text as shell syntax.
	if tok.Kind == token.NEWLINE && len(p.pendingHeredocs) > 0 {
		if err := p.fillPendingHeredocs(); err != nil {
			p.pendingErr = err
			p.tok.Kind = token.ILLEGAL
		}
	}
}

func (p *Parser) wantCommandStart() { p.atStart = true }

func (p *Parser) peek() lexer.Token {
	if p.peeked == nil {
		cur := p.tok
		p.next()
		peeked := p.tok
		p.tok = cur
		p.peeked = &peeked
	}
	return *p.peeked
}

func (p *Parser) is(k token.Kind) bool { return p.tok.Kind == k }

func (p *Parser) accept(k token.Kind) bool {
	if p.tok.Kind == k {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(k token.Kind) (lexer.Token, error) {
	if p.tok.Kind != k {
		if p.tok.Kind == token.EOF {
			return lexer.Token{}, p.errIncomplete("expected %s, found end of input", k)
		}
		return lexer.Token{}, p.errf("expected %s, found %s %q", k, p.tok.Kind, p.tok.Lexeme)
	}
	t := p.tok
	p.next()
	return t, nil
}

// skipNewlines consumes any run of NEWLINE tokens.
func (p *Parser) skipNewlines() {
	for p.is(token.NEWLINE) {
		p.next()
	}
}

// commandList parses "and_or ((';' | '&' | newline)+ and_or)*" up to one of
// the stop tokens (EOF, or a closing keyword like 'fi'/'done'/'}').
func (p *Parser) commandList(stop ...token.Kind) (*ast.CommandList, error) {
	cl := &ast.CommandList{}
	p.skipNewlines()
	for {
		if p.atStop(stop) {
			break
		}
		ao, err := p.andOr()
		if err != nil {
			return nil, err
		}
		cl.Stmts = append(cl.Stmts, ao)
		if !p.skipSeparator(ao) {
			break
		}
		p.skipNewlines()
		if p.atStop(stop) {
			break
		}
	}
	return cl, nil
}

func (p *Parser) atStop(stop []token.Kind) bool {
	if p.tok.Kind == token.EOF {
		return true
	}
	for _, s := range stop {
		if p.tok.Kind == s {
			return true
		}
	}
	return false
}

// skipSeparator consumes the separator that ended the last pipeline
// (';', '&', or newline), recording backgrounding on the pipeline's last
// stage. Returns false when no separator was present (so the caller should
// stop, e.g. because a closing keyword follows directly).
func (p *Parser) skipSeparator(ao *ast.AndOr) bool {
	last := ao.Pipelines[len(ao.Pipelines)-1]
	switch p.tok.Kind {
	case token.SEMICOLON:
		last.SepPos = p.tok.Start
		p.wantCommandStart()
		p.next()
		return true
	case token.AND:
		last.SepPos = p.tok.Start
		last.Background = true
		p.wantCommandStart()
		p.next()
		return true
	case token.NEWLINE:
		last.SepPos = p.tok.Start
		p.wantCommandStart()
		p.next()
		return true
	}
	return false
}

// andOr parses "pipeline (('&&'|'||') newline* pipeline)*".
func (p *Parser) andOr() (*ast.AndOr, error) {
	first, err := p.pipeline()
	if err != nil {
		return nil, err
	}
	ao := &ast.AndOr{Pipelines: []*ast.Pipeline{first}}
	for {
		var op ast.AndOrOp
		switch p.tok.Kind {
		case token.LAND:
			op = ast.AndOrAnd
		case token.LOR:
			op = ast.AndOrOr
		default:
			return ao, nil
		}
		p.next()
		p.skipNewlines()
		next, err := p.pipeline()
		if err != nil {
			return nil, err
		}
		ao.Ops = append(ao.Ops, op)
		ao.Pipelines = append(ao.Pipelines, next)
	}
}

// pipeline parses "'!'? command (('|'|'|&') newline* command)*".
func (p *Parser) pipeline() (*ast.Pipeline, error) {
	pl := &ast.Pipeline{}
	if p.is(token.NOT) {
		pl.Negated = true
		p.next()
	}
	for {
		cmd, err := p.command()
		if err != nil {
			return nil, err
		}
		pl.Stages = append(pl.Stages, cmd)
		switch p.tok.Kind {
		case token.OR:
			p.next()
		case token.PIPEALL:
			pl.PipeAll = true
			p.next()
		default:
			return pl, nil
		}
		p.skipNewlines()
		p.wantCommandStart()
	}
}

// command dispatches on the current token to the right compound-command
// parser, or falls through to a simple command.
func (p *Parser) command() (ast.Command, error) {
	switch p.tok.Kind {
	case token.IF:
		return p.ifClause()
	case token.WHILE:
		return p.whileClause(false)
	case token.UNTIL:
		return p.whileClause(true)
	case token.FOR:
		return p.forClause()
	case token.SELECT:
		return p.selectClause()
	case token.CASE:
		return p.caseClause()
	case token.FUNC:
		return p.functionDef(true)
	case token.LBRACE:
		return p.braceGroup()
	case token.LPAREN:
		return p.subshell()
	case token.DLPAREN:
		return p.arithCmd()
	case token.DLBRCK:
		return p.enhancedTest()
	default:
		if p.is(token.LITWORD) && p.peek().Kind == token.LPAREN {
			return p.functionDef(false)
		}
		return p.simpleCommand()
	}
}

func (p *Parser) redirOrAssignPrefix(sc *ast.SimpleCommand) (bool, error) {
	switch p.tok.Kind {
	case token.ASSIGNWORD:
		a, err := p.assignment()
		if err != nil {
			return false, err
		}
		sc.Assigns = append(sc.Assigns, a)
		return true, nil
	case token.LSS, token.GTR, token.SHL, token.SHR, token.DHEREDOC, token.WHEREDOC,
		token.DPLIN, token.DPLOUT, token.RDRINOUT, token.CLOBBER, token.RDRALL, token.APPALL:
		r, err := p.redirect(nil)
		if err != nil {
			return false, err
		}
		sc.Redirs = append(sc.Redirs, r)
		return true, nil
	}
	if p.is(token.LITWORD) || p.is(token.LIT) {
		if n, ok := fdPrefix(p.tok.Lexeme); ok && isRedirOpAhead(p) {
			fd := n
			p.next()
			r, err := p.redirect(&fd)
			if err != nil {
				return false, err
			}
			sc.Redirs = append(sc.Redirs, r)
			return true, nil
		}
	}
	return false, nil
}

// simpleCommand parses leading assignments/redirections, then words
// (interleaved with further redirections), producing a *ast.SimpleCommand.
// An empty command (only assignments/redirects, no words) is valid: it's
// the "bare assignment" form.
func (p *Parser) simpleCommand() (*ast.SimpleCommand, error) {
	sc := &ast.SimpleCommand{}
	for {
		ok, err := p.redirOrAssignPrefix(sc)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	for isWordStart(p.tok.Kind) {
		w, err := p.word()
		if err != nil {
			return nil, err
		}
		sc.Words = append(sc.Words, w)
		p.atStart = false
		for {
			ok, err := p.redirOrAssignPrefix(sc)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}
	if len(sc.Words) == 0 && len(sc.Assigns) == 0 && len(sc.Redirs) == 0 {
		return nil, p.errf("expected a command, found %s %q", p.tok.Kind, p.tok.Lexeme)
	}
	return sc, nil
}

func isWordStart(k token.Kind) bool {
	switch k {
	case token.LIT, token.LITWORD, token.ASSIGNWORD, token.SQUOTE, token.DQUOTE,
		token.BQUOTE, token.DOLLAR, token.DOLLSQ, token.DOLLDQ, token.DOLLBR,
		token.DOLLPR, token.DOLLDP:
		return true
	}
	return false
}

func fdPrefix(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// isRedirOpAhead is a best-effort check used only to decide whether a bare
// digit word is actually a redirection file-descriptor prefix; it peeks at
// the next token without consuming anything beyond the lexer's normal
// one-token lookahead.
func isRedirOpAhead(p *Parser) bool {
	switch p.peek().Kind {
	case token.LSS, token.GTR, token.SHL, token.SHR, token.DHEREDOC, token.WHEREDOC,
		token.DPLIN, token.DPLOUT, token.RDRINOUT, token.CLOBBER:
		return true
	}
	return false
}

func (p *Parser) assignment() (*ast.Assign, error) {
	tok := p.tok
	name, append_, rest := splitAssign(tok.Lexeme)
	a := &ast.Assign{
		Name:   &ast.Lit{ValuePos: tok.Start, Value: name},
		Append: append_,
	}
	p.atStart = false
	p.next()
	v, err := p.wordFromRemainder(rest, ast.Pos(int(tok.Start)+len(name)+boolInt(append_)+1))
	if err != nil {
		return nil, err
	}
	a.Value = v
	p.atStart = true
	return a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// splitAssign breaks "NAME=value" / "NAME+=value" into name, append-flag,
// and the remaining raw text (which still needs to be re-lexed as a word
// when it is non-empty and contains its own expansions -- here we only
// handle the literal-value fast path; embedded expansions right after the
// '=' are parsed by continuing the normal word loop in wordFromRemainder).
func splitAssign(s string) (name string, append_ bool, rest string) {
	i := 0
	for i < len(s) && (s[i] == '_' || (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') || (i > 0 && s[i] >= '0' && s[i] <= '9') || s[i] == '[') {
		if s[i] == '[' {
			depth := 1
			i++
			for i < len(s) && depth > 0 {
				if s[i] == '[' {
					depth++
				} else if s[i] == ']' {
					depth--
				}
				i++
			}
			continue
		}
		i++
	}
	name = s[:i]
	if i < len(s) && s[i] == '+' {
		append_ = true
		i++
	}
	if i < len(s) && s[i] == '=' {
		i++
	}
	rest = s[i:]
	return
}

// wordFromRemainder builds the Value word of an assignment: the literal
// tail captured by the lexer's ASSIGNWORD token, followed by whatever
// further word parts directly continue it (no intervening space), exactly
// like any other word.
func (p *Parser) wordFromRemainder(rest string, pos ast.Pos) (ast.Word, error) {
	w := ast.Word{}
	if rest != "" {
		w.Parts = append(w.Parts, &ast.Lit{ValuePos: pos, Value: rest})
	}
	if !isWordContinuation(p.tok.Kind) || p.tok.Start != pos+ast.Pos(len(rest)) {
		return splitBraces(w), nil
	}
	cont, err := p.word()
	if err != nil {
		return ast.Word{}, err
	}
	w.Parts = append(w.Parts, cont.Parts...)
	return splitBraces(w), nil
}

func isWordContinuation(k token.Kind) bool {
	switch k {
	case token.SQUOTE, token.DQUOTE, token.BQUOTE, token.DOLLAR, token.DOLLSQ,
		token.DOLLDQ, token.DOLLBR, token.DOLLPR, token.DOLLDP, token.LIT, token.LITWORD:
		return true
	}
	return false
}
