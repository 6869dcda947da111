package formula

import "testing"

func TestTokenize(t *testing.T) {
	input := `(A1 + $B$2) * 3.5e-2 / c17`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{LPAREN, "("},
		{CELL, "A1"},
		{PLUS, "+"},
		{CELL, "$B$2"},
		{RPAREN, ")"},
		{ASTERISK, "*"},
		{NUMBER, "3.5e-2"},
		{SLASH, "/"},
		{CELL, "c17"},
	}

	tokens := Tokenize(input)
	if len(tokens) != len(tests) {
		t.Fatalf("expected %d tokens, got %d: %v", len(tests), len(tokens), tokens)
	}
	for i, tt := range tests {
		if tokens[i].Type != tt.expectedType {
			t.Errorf("token %d: expected type %q, got %q", i, tt.expectedType, tokens[i].Type)
		}
		if tokens[i].Literal != tt.expectedLiteral {
			t.Errorf("token %d: expected literal %q, got %q", i, tt.expectedLiteral, tokens[i].Literal)
		}
	}
}

func TestTokenizeDropsUnrecognized(t *testing.T) {
	// The lexer is best-effort: bytes that begin no token are dropped.
	tokens := Tokenize("A1 & B2 # 4")
	want := []Token{
		{CELL, "A1"},
		{CELL, "B2"},
		{NUMBER, "4"},
	}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: expected %v, got %v", i, want[i], tokens[i])
		}
	}
}

func TestTokenizeNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"7", "7"},
		{"3.25", "3.25"},
		{"5.", "5."},
		{".5", ".5"},
		{"1e5", "1e5"},
		{"2E+10", "2E+10"},
		{"6.02e-23", "6.02e-23"},
	}
	for _, tt := range tests {
		tokens := Tokenize(tt.input)
		if len(tokens) != 1 || tokens[0].Type != NUMBER || tokens[0].Literal != tt.want {
			t.Errorf("Tokenize(%q) = %v, want single NUMBER %q", tt.input, tokens, tt.want)
		}
	}
}

func TestValidCellName(t *testing.T) {
	valid := []string{"A1", "a1", "AB12", "$A1", "A$1", "$A$1", "zz999"}
	for _, name := range valid {
		if !ValidCellName(name) {
			t.Errorf("expected %q to be a valid cell name", name)
		}
	}

	invalid := []string{"", "1A", "A", "1", "A1B", "$$A1", "A$$1", "A 1", "A1 ", "-A1", "A1.5"}
	for _, name := range invalid {
		if ValidCellName(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		formula string
		want    bool
	}{
		{"=A1", true},
		{"=1", true},
		{"=(A1)", true},
		{"=A1+B2", true},
		{"=(A1 + B2) * 3", true},
		{"=((A1))", true},
		{"=1.5e3 / C9", true},
		{"=A1+(B2*(C3-4))", true},

		// rule 1: at least one token
		{"=", false},
		{"=   ", false},
		// rule 2: first token
		{"=+A1", false},
		{"=)A1", false},
		{"=*2", false},
		// rule 3: last token (the corrected rule: the *last* token is
		// checked, so a trailing operator is rejected even when the
		// first token is fine)
		{"=A1+", false},
		{"=A1*", false},
		{"=5-", false},
		// rule 4: after ( or an operator
		{"=A1+*B2", false},
		{"=(+A1)", false},
		{"=A1+)", false},
		// rule 5: after an operand or )
		{"=A1 B2", false},
		{"=3 4", false},
		{"=(A1)(B2)", false},
		{"=(A1)5", false},
		// rule 6: balance
		{"=(A1", false},
		{"=A1)", false},
		{"=)A1(", false},
		{"=(A1))", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.formula); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.formula, got, tt.want)
		}
	}
}

func TestValidIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		if !Valid("=(A1+B2)*3") {
			t.Fatal("validation result changed between calls")
		}
		if ValidCellName("1A") {
			t.Fatal("cell name result changed between calls")
		}
	}
}

func TestDepends(t *testing.T) {
	tests := []struct {
		contents string
		want     []string
	}{
		{"=A1+B2", []string{"A1", "B2"}},
		{"=A1+A1", []string{"A1", "A1"}},
		{"=(A1 * 2) - $C$3", []string{"A1", "$C$3"}},
		{"=1+2", nil},
		{"hello", nil},
		{"", nil},
		// plain contents that happen to contain cell-shaped tokens still
		// contribute dependencies
		{"B1", []string{"B1"}},
	}

	for _, tt := range tests {
		got := Depends(tt.contents)
		if len(got) != len(tt.want) {
			t.Errorf("Depends(%q) = %v, want %v", tt.contents, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("Depends(%q)[%d] = %q, want %q", tt.contents, i, got[i], tt.want[i])
			}
		}
	}
}
