package formula

import "strings"

// stripEquals removes the leading = of a formula, if present. Both the
// validator and the dependency scan operate on the remainder.
func stripEquals(contents string) string {
	return strings.TrimPrefix(contents, "=")
}

// Valid reports whether contents is a structurally well-formed formula.
// contents is the full cell contents; callers invoke this only for contents
// beginning with =, and the = itself is stripped before tokenizing.
//
// The rules, all of which must hold:
//  1. at least one token
//  2. the first token is a number, a cell name, or (
//  3. the last token is a number, a cell name, or )
//  4. after ( or an operator, the next token is a number, a cell name, or (
//  5. after a number, a cell name, or ), the next token is an operator or )
//  6. parentheses balance, with the running count never negative
func Valid(contents string) bool {
	tokens := Tokenize(stripEquals(contents))

	if len(tokens) == 0 {
		return false
	}

	first := tokens[0]
	if !(first.IsOperand() || first.Type == LPAREN) {
		return false
	}
	last := tokens[len(tokens)-1]
	if !(last.IsOperand() || last.Type == RPAREN) {
		return false
	}

	parens := 0
	for i, tok := range tokens {
		if i > 0 {
			prev := tokens[i-1]
			if prev.Type == LPAREN || prev.IsOperator() {
				if !(tok.IsOperand() || tok.Type == LPAREN) {
					return false
				}
			}
			if prev.IsOperand() || prev.Type == RPAREN {
				if !(tok.IsOperator() || tok.Type == RPAREN) {
					return false
				}
			}
		}

		switch tok.Type {
		case LPAREN:
			parens++
		case RPAREN:
			parens--
			if parens < 0 {
				return false
			}
		}
	}

	return parens == 0
}

// Depends returns the cell names referenced by contents, in token order.
// Non-formula contents reference nothing beyond any cell-shaped tokens they
// happen to contain, which mirrors how edits to plain text cells behave.
func Depends(contents string) []string {
	var deps []string
	for _, tok := range Tokenize(stripEquals(contents)) {
		if tok.Type == CELL {
			deps = append(deps, tok.Literal)
		}
	}
	return deps
}
