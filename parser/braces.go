package parser

import (
	"strconv"
	"strings"

	"possh/ast"
)

// splitBraces looks for a brace expression written entirely as literal text
// -- "{a,b,c}" or "{1..10[..2]}" or "{a..z}" -- and, when the whole word is
// a single unquoted literal containing exactly one well-formed top-level
// brace expression, replaces it with an ast.BraceExp so the expander can
// materialize it later. Brace expressions that straddle an expansion (e.g.
// "{$a,b}") are left as literal text: real-world usage of those is rare
// enough, and teaching the splitter to walk mixed Parts slices would cost
// far more than it buys here.
func splitBraces(w ast.Word) ast.Word {
	if len(w.Parts) != 1 {
		return w
	}
	lit, ok := w.Parts[0].(*ast.Lit)
	if !ok || lit.Quoted {
		return w
	}
	be, ok := parseBraceLiteral(lit.Value, lit.ValuePos)
	if !ok {
		return w
	}
	return ast.Word{Parts: []ast.WordPart{be}}
}

func parseBraceLiteral(s string, base ast.Pos) (*ast.BraceExp, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	end := -1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, false
	}
	inner := s[start+1 : end]
	elems, sequence := splitBraceInner(inner)
	if elems == nil {
		return nil, false
	}

	be := &ast.BraceExp{
		Lbrace:   base + ast.Pos(start),
		Rbrace:   base + ast.Pos(end),
		Sequence: sequence,
	}
	prefix := s[:start]
	suffix := s[end+1:]
	for _, e := range elems {
		parts := []ast.WordPart{}
		if prefix != "" {
			parts = append(parts, &ast.Lit{ValuePos: base, Value: prefix})
		}
		parts = append(parts, &ast.Lit{ValuePos: base + ast.Pos(start+1), Value: e})
		if suffix != "" {
			// Nested braces in the suffix get their own chance to split
			// when this element's word is later re-examined; for our
			// scope a single level of splitting is enough.
			parts = append(parts, &ast.Lit{ValuePos: base + ast.Pos(end+1), Value: suffix})
		}
		be.Elems = append(be.Elems, ast.Word{Parts: parts})
	}
	return be, true
}

// splitBraceInner handles the content between "{" and "}": either a
// comma-separated list with at least one comma, or a "x..y" / "x..y..z"
// sequence. Anything else (no comma, not a sequence) isn't a real brace
// expression and is rejected so the caller keeps the literal text as-is.
func splitBraceInner(inner string) ([]string, bool) {
	if strings.Contains(inner, ",") {
		depth := 0
		var elems []string
		last := 0
		for i := 0; i < len(inner); i++ {
			switch inner[i] {
			case '{':
				depth++
			case '}':
				depth--
			case ',':
				if depth == 0 {
					elems = append(elems, inner[last:i])
					last = i + 1
				}
			}
		}
		elems = append(elems, inner[last:])
		if len(elems) < 2 {
			return nil, false
		}
		return elems, false
	}

	parts := strings.Split(inner, "..")
	if len(parts) == 2 || len(parts) == 3 {
		if seq, ok := expandSequence(parts); ok {
			return seq, true
		}
	}
	return nil, false
}

func expandSequence(parts []string) ([]string, bool) {
	step := 1
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n == 0 {
			return nil, false
		}
		step = n
	}
	if isSingleChar(parts[0]) && isSingleChar(parts[1]) {
		from, to := rune(parts[0][0]), rune(parts[1][0])
		if step < 0 {
			step = -step
		}
		var out []string
		if from <= to {
			for c := from; c <= to; c += rune(step) {
				out = append(out, string(c))
			}
		} else {
			for c := from; c >= to; c -= rune(step) {
				out = append(out, string(c))
			}
		}
		return out, len(out) > 0
	}
	from, err1 := strconv.Atoi(parts[0])
	to, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return nil, false
	}
	width := 0
	if hasLeadingZero(parts[0]) {
		width = len(strings.TrimPrefix(parts[0], "-"))
	}
	s := step
	if s < 0 {
		s = -s
	}
	if s == 0 {
		return nil, false
	}
	var out []string
	if from <= to {
		for n := from; n <= to; n += s {
			out = append(out, padInt(n, width))
		}
	} else {
		for n := from; n >= to; n -= s {
			out = append(out, padInt(n, width))
		}
	}
	return out, len(out) > 0
}

func isSingleChar(s string) bool {
	return len(s) == 1 && ((s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z'))
}

func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0'
}

func padInt(n, width int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for len(s) < width {
		s = "0" + s
	}
	if neg {
		s = "-" + s
	}
	return s
}
