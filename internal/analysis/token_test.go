package analysis

import (
	"reflect"
	"testing"
)

func significant(tokens []Token) []Token {
	var out []Token
	for _, t := range tokens {
		if t.Significant() {
			out = append(out, t)
		}
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		kinds []Kind
		texts []string
	}{
		{
			name:  "open tag and statement",
			src:   "<?php\necho $a;",
			kinds: []Kind{OpenTag, Keyword, Variable, Operator},
			texts: []string{"<?php\n", "echo", "$a", ";"},
		},
		{
			name:  "qualified names",
			src:   `<?php new \Foo\Bar(Baz\Qux::class);`,
			kinds: []Kind{OpenTag, Keyword, Name, Operator, Name, Operator, Keyword, Operator, Operator},
			texts: []string{"<?php ", "new", `\Foo\Bar`, "(", `Baz\Qux`, "::", "class", ")", ";"},
		},
		{
			name:  "longest operator wins",
			src:   "<?php $a ??= $b?->c <=> 1.5;",
			kinds: []Kind{OpenTag, Variable, Operator, Variable, Operator, Name, Operator, Number, Operator},
			texts: []string{"<?php ", "$a", "??=", "$b", "?->", "c", "<=>", "1.5", ";"},
		},
		{
			name:  "strings hide code",
			src:   `<?php 'it\'s {' . "a\"}";`,
			kinds: []Kind{OpenTag, String, Operator, String, Operator},
			texts: []string{"<?php ", `'it\'s {'`, ".", `"a\"}"`, ";"},
		},
		{
			name:  "attribute",
			src:   "<?php #[Pure] function f() {}",
			kinds: []Kind{OpenTag, Attribute, Name, Operator, Keyword, Name, Operator, Operator, Operator, Operator},
		},
		{
			name:  "close tag returns to html",
			src:   "<p><?php echo 1 ?>\n</p>",
			kinds: []Kind{InlineHTML, OpenTag, Keyword, Number, CloseTag, InlineHTML},
		},
		{
			name:  "echo tag",
			src:   "<?= $x ?>",
			kinds: []Kind{OpenTag, Variable, CloseTag},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize([]byte(tt.src))
			var kinds []Kind
			var texts []string
			for _, tok := range got {
				if tok.Kind == Whitespace {
					continue
				}
				kinds = append(kinds, tok.Kind)
				texts = append(texts, tok.Text)
			}
			if len(kinds) != len(tt.kinds) {
				t.Fatalf("got %d tokens %q, want %d", len(kinds), texts, len(tt.kinds))
			}
			for i := range kinds {
				if kinds[i] != tt.kinds[i] {
					t.Errorf("token %d (%q) kind = %d, want %d", i, texts[i], kinds[i], tt.kinds[i])
				}
				if tt.texts != nil && texts[i] != tt.texts[i] {
					t.Errorf("token %d text = %q, want %q", i, texts[i], tt.texts[i])
				}
			}
		})
	}
}

func TestTokenize_Lines(t *testing.T) {
	src := "<?php\n/**\n * doc\n */\n$a = <<<EOT\nline {\nEOT;\n// done\n$b = 1;\n"
	tokens := significant(Tokenize([]byte(src)))
	wantLines := []int{1, 5, 5, 5, 7, 9, 9, 9, 9}
	if len(tokens) != len(wantLines) {
		t.Fatalf("got %d significant tokens, want %d", len(tokens), len(wantLines))
	}
	for i, tok := range tokens {
		if tok.Line != wantLines[i] {
			t.Errorf("%q on line %d, want %d", tok.Text, tok.Line, wantLines[i])
		}
	}

	all := Tokenize([]byte(src))
	var heredoc, doc *Token
	for i := range all {
		switch all[i].Kind {
		case String:
			heredoc = &all[i]
		case DocComment:
			doc = &all[i]
		}
	}
	if heredoc == nil || heredoc.Line != 5 || heredoc.EndLine() != 7 {
		t.Errorf("heredoc = %+v, want lines 5-7", heredoc)
	}
	if doc == nil || doc.Line != 2 || doc.EndLine() != 4 {
		t.Errorf("doc comment = %+v, want lines 2-4", doc)
	}
}

func TestToken_PHPName(t *testing.T) {
	tests := []struct {
		tok  Token
		want string
	}{
		{Token{Kind: OpenTag, Text: "<?php\n"}, "T_OPEN_TAG"},
		{Token{Kind: OpenTag, Text: "<?="}, "T_OPEN_TAG_WITH_ECHO"},
		{Token{Kind: Keyword, Text: "Function"}, "T_FUNCTION"},
		{Token{Kind: Name, Text: "strlen"}, "T_STRING"},
		{Token{Kind: Name, Text: `Foo\Bar`}, "T_NAME_QUALIFIED"},
		{Token{Kind: Name, Text: `\Foo`}, "T_NAME_FULLY_QUALIFIED"},
		{Token{Kind: Number, Text: "42"}, "T_LNUMBER"},
		{Token{Kind: Number, Text: "4.2"}, "T_DNUMBER"},
		{Token{Kind: Number, Text: "0xEF"}, "T_LNUMBER"},
		{Token{Kind: Operator, Text: "->"}, "T_OBJECT_OPERATOR"},
		{Token{Kind: Operator, Text: "<>"}, "T_OPERATOR"},
		{Token{Kind: Variable, Text: "$x"}, "T_VARIABLE"},
	}
	for _, tt := range tests {
		if got := tt.tok.PHPName(); got != tt.want {
			t.Errorf("PHPName(%q) = %q, want %q", tt.tok.Text, got, tt.want)
		}
	}
}

func TestTokenLines(t *testing.T) {
	src := "<?php\n/**\n * doc\n */\n$a = 1;\n"
	lines := TokenLines([]byte(src))
	if len(lines) != 5 {
		t.Fatalf("len(lines) = %d, want 5", len(lines))
	}
	var texts [][]string
	for i, line := range lines {
		var row []string
		for _, tok := range line {
			if tok.Line != i+1 {
				t.Errorf("token %q on line %d has Line %d", tok.Text, i+1, tok.Line)
			}
			row = append(row, tok.Text)
		}
		texts = append(texts, row)
	}
	want := [][]string{{"<?php"}, {"/**"}, {" * doc"}, {" */"}, {"$a", " ", "=", " ", "1", ";"}}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("TokenLines() = %q, want %q", texts, want)
	}
}
