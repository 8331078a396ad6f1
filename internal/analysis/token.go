package analysis

import (
	"strings"
)

// Kind classifies a PHP source token
type Kind int

const (
	InlineHTML Kind = iota
	OpenTag
	CloseTag
	Whitespace
	Comment
	DocComment
	Attribute
	Variable
	Name
	Keyword
	String
	Number
	Operator
)

// Token is a lexical element of a PHP source file
type Token struct {
	Kind Kind
	Text string
	Line int
}

// EndLine returns the line the token ends on
func (t Token) EndLine() int {
	return t.Line + strings.Count(t.Text, "\n")
}

// Is reports whether the token is the given keyword or operator.
// Keywords compare case-insensitively.
func (t Token) Is(text string) bool {
	switch t.Kind {
	case Keyword:
		return strings.EqualFold(t.Text, text)
	case Operator:
		return t.Text == text
	}
	return false
}

// Significant reports whether the token carries code, i.e. it is neither
// whitespace nor a comment nor inline HTML.
func (t Token) Significant() bool {
	switch t.Kind {
	case Whitespace, Comment, DocComment, InlineHTML:
		return false
	}
	return true
}

// PHPName returns the name the PHP tokenizer gives this token
func (t Token) PHPName() string {
	switch t.Kind {
	case InlineHTML:
		return "T_INLINE_HTML"
	case OpenTag:
		if strings.HasPrefix(t.Text, "<?=") {
			return "T_OPEN_TAG_WITH_ECHO"
		}
		return "T_OPEN_TAG"
	case CloseTag:
		return "T_CLOSE_TAG"
	case Whitespace:
		return "T_WHITESPACE"
	case Comment:
		return "T_COMMENT"
	case DocComment:
		return "T_DOC_COMMENT"
	case Attribute:
		return "T_ATTRIBUTE"
	case Variable:
		return "T_VARIABLE"
	case Name:
		if strings.Contains(t.Text, `\`) {
			if strings.HasPrefix(t.Text, `\`) {
				return "T_NAME_FULLY_QUALIFIED"
			}
			return "T_NAME_QUALIFIED"
		}
		return "T_STRING"
	case Keyword:
		return "T_" + strings.ToUpper(t.Text)
	case String:
		return "T_CONSTANT_ENCAPSED_STRING"
	case Number:
		if strings.ContainsAny(t.Text, ".eE") && !strings.HasPrefix(t.Text, "0x") && !strings.HasPrefix(t.Text, "0X") {
			return "T_DNUMBER"
		}
		return "T_LNUMBER"
	}
	if name, ok := operatorNames[t.Text]; ok {
		return name
	}
	return "T_OPERATOR"
}

var operatorNames = map[string]string{
	"(":   "T_OPEN_BRACKET",
	")":   "T_CLOSE_BRACKET",
	"[":   "T_OPEN_SQUARE",
	"]":   "T_CLOSE_SQUARE",
	"{":   "T_OPEN_CURLY",
	"}":   "T_CLOSE_CURLY",
	";":   "T_SEMICOLON",
	",":   "T_COMMA",
	".":   "T_DOT",
	"=":   "T_EQUAL",
	":":   "T_COLON",
	"?":   "T_QUESTION_MARK",
	"!":   "T_EXCLAMATION_MARK",
	"&":   "T_AMPERSAND",
	"|":   "T_PIPE",
	"+":   "T_PLUS",
	"-":   "T_MINUS",
	"*":   "T_MULT",
	"/":   "T_DIV",
	"%":   "T_PERCENT",
	"<":   "T_LT",
	">":   "T_GT",
	"@":   "T_AT",
	"$":   "T_DOLLAR",
	"^":   "T_CARET",
	"~":   "T_TILDE",
	"->":  "T_OBJECT_OPERATOR",
	"?->": "T_NULLSAFE_OBJECT_OPERATOR",
	"=>":  "T_DOUBLE_ARROW",
	"::":  "T_DOUBLE_COLON",
	"&&":  "T_BOOLEAN_AND",
	"||":  "T_BOOLEAN_OR",
	"??":  "T_COALESCE",
	"??=": "T_COALESCE_EQUAL",
	"==":  "T_IS_EQUAL",
	"!=":  "T_IS_NOT_EQUAL",
	"===": "T_IS_IDENTICAL",
	"!==": "T_IS_NOT_IDENTICAL",
	"<=":  "T_IS_SMALLER_OR_EQUAL",
	">=":  "T_IS_GREATER_OR_EQUAL",
	"<=>": "T_SPACESHIP",
	"++":  "T_INC",
	"--":  "T_DEC",
	"+=":  "T_PLUS_EQUAL",
	"-=":  "T_MINUS_EQUAL",
	"*=":  "T_MUL_EQUAL",
	"/=":  "T_DIV_EQUAL",
	".=":  "T_CONCAT_EQUAL",
	"%=":  "T_MOD_EQUAL",
	"&=":  "T_AND_EQUAL",
	"|=":  "T_OR_EQUAL",
	"^=":  "T_XOR_EQUAL",
	"<<":  "T_SL",
	">>":  "T_SR",
	"<<=": "T_SL_EQUAL",
	">>=": "T_SR_EQUAL",
	"**":  "T_POW",
	"**=": "T_POW_EQUAL",
	"...": "T_ELLIPSIS",
}

var keywords = map[string]bool{
	"abstract": true, "and": true, "array": true, "as": true, "break": true,
	"callable": true, "case": true, "catch": true, "class": true, "clone": true,
	"const": true, "continue": true, "declare": true, "default": true, "do": true,
	"echo": true, "else": true, "elseif": true, "empty": true, "enddeclare": true,
	"endfor": true, "endforeach": true, "endif": true, "endswitch": true,
	"endwhile": true, "enum": true, "eval": true, "exit": true, "die": true,
	"extends": true, "final": true, "finally": true, "fn": true, "for": true,
	"foreach": true, "function": true, "global": true, "goto": true, "if": true,
	"implements": true, "include": true, "include_once": true, "instanceof": true,
	"insteadof": true, "interface": true, "isset": true, "list": true,
	"match": true, "namespace": true, "new": true, "or": true, "print": true,
	"private": true, "protected": true, "public": true, "readonly": true,
	"require": true, "require_once": true, "return": true, "static": true,
	"switch": true, "throw": true, "trait": true, "try": true, "unset": true,
	"use": true, "var": true, "while": true, "xor": true, "yield": true,
}

// operators ordered longest first so the lexer takes the longest match
var operators = []string{
	"<=>", "**=", "...", "<<=", ">>=", "===", "!==", "??=", "?->",
	"++", "--", "->", "=>", "::", "==", "!=", "<>", "<=", ">=", "&&", "||",
	"??", "+=", "-=", "*=", "/=", ".=", "%=", "&=", "|=", "^=", "<<", ">>", "**",
}

// Tokenize splits PHP source into tokens. It never fails: unterminated
// constructs run to the end of the input.
func Tokenize(src []byte) []Token {
	l := &lexer{src: string(src), line: 1}
	l.run()
	return l.tokens
}

// TokenLines splits the tokens of src at line breaks. Element i holds the
// pieces on line i+1; none of them contains a newline.
func TokenLines(src []byte) [][]Token {
	lines := [][]Token{nil}
	for _, t := range Tokenize(src) {
		for i, piece := range strings.Split(t.Text, "\n") {
			if i > 0 {
				lines = append(lines, nil)
			}
			if piece == "" {
				continue
			}
			n := len(lines) - 1
			lines[n] = append(lines[n], Token{Kind: t.Kind, Text: piece, Line: n + 1})
		}
	}
	if len(lines) > 1 && lines[len(lines)-1] == nil && strings.HasSuffix(string(src), "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type lexer struct {
	src    string
	pos    int
	line   int
	tokens []Token
}

func (l *lexer) emit(kind Kind, end int) {
	if end <= l.pos {
		return
	}
	text := l.src[l.pos:end]
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Line: l.line})
	l.line += strings.Count(text, "\n")
	l.pos = end
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		l.html()
		l.php()
	}
}

// html consumes inline HTML up to and including the next open tag
func (l *lexer) html() {
	rest := l.src[l.pos:]
	idx, tagLen := findOpenTag(rest)
	if idx < 0 {
		l.emit(InlineHTML, len(l.src))
		return
	}
	l.emit(InlineHTML, l.pos+idx)
	end := l.pos + tagLen
	// the open tag owns one trailing newline or blank
	if end < len(l.src) && tagLen == 5 {
		switch l.src[end] {
		case '\n', ' ', '\t':
			end++
		case '\r':
			end++
			if end < len(l.src) && l.src[end] == '\n' {
				end++
			}
		}
	}
	l.emit(OpenTag, end)
}

func findOpenTag(s string) (int, int) {
	for i := 0; i+1 < len(s); i++ {
		if s[i] != '<' || s[i+1] != '?' {
			continue
		}
		if strings.HasPrefix(s[i:], "<?=") {
			return i, 3
		}
		if len(s) >= i+5 && strings.EqualFold(s[i:i+5], "<?php") {
			return i, 5
		}
	}
	return -1, 0
}

func (l *lexer) php() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		rest := l.src[l.pos:]
		switch {
		case strings.HasPrefix(rest, "?>"):
			end := l.pos + 2
			if end < len(l.src) && l.src[end] == '\n' {
				end++
			}
			l.emit(CloseTag, end)
			return
		case isSpace(c):
			end := l.pos
			for end < len(l.src) && isSpace(l.src[end]) {
				end++
			}
			l.emit(Whitespace, end)
		case strings.HasPrefix(rest, "#["):
			l.emit(Attribute, l.pos+2)
		case c == '#' || strings.HasPrefix(rest, "//"):
			l.emit(Comment, l.pos+lineCommentEnd(rest))
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				end = len(rest)
			} else {
				end += 4
			}
			kind := Comment
			if len(rest) > 3 && strings.HasPrefix(rest, "/**") && isSpace(rest[3]) {
				kind = DocComment
			}
			l.emit(kind, l.pos+end)
		case c == '$' && l.pos+1 < len(l.src) && isNameStart(l.src[l.pos+1]):
			end := l.pos + 1
			for end < len(l.src) && isNameChar(l.src[end]) {
				end++
			}
			l.emit(Variable, end)
		case isNameStart(c) || (c == '\\' && l.pos+1 < len(l.src) && isNameStart(l.src[l.pos+1])):
			end := l.pos
			for end < len(l.src) && (isNameChar(l.src[end]) || (l.src[end] == '\\' && end+1 < len(l.src) && isNameStart(l.src[end+1]))) {
				end++
			}
			word := l.src[l.pos:end]
			if keywords[strings.ToLower(word)] {
				l.emit(Keyword, end)
			} else {
				l.emit(Name, end)
			}
		case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
			end := l.pos
			for end < len(l.src) && (isNameChar(l.src[end]) || l.src[end] == '.') {
				if l.src[end] == '.' && strings.HasPrefix(l.src[end:], "..") {
					break
				}
				end++
			}
			l.emit(Number, end)
		case c == '\'' || c == '"' || c == '`':
			l.emit(String, l.pos+quotedEnd(rest, c))
		case strings.HasPrefix(rest, "<<<"):
			l.emit(String, l.pos+heredocEnd(rest))
		default:
			l.emit(Operator, l.pos+operatorLen(rest))
		}
	}
}

func lineCommentEnd(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return i
		}
		if strings.HasPrefix(s[i:], "?>") {
			return i
		}
	}
	return len(s)
}

func quotedEnd(s string, quote byte) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return len(s)
}

// heredocEnd finds the end of a heredoc or nowdoc starting at s
func heredocEnd(s string) int {
	i := 3
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i < len(s) && (s[i] == '\'' || s[i] == '"') {
		i++
	}
	start := i
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	label := s[start:i]
	if label == "" {
		return 3
	}
	nl := strings.IndexByte(s[i:], '\n')
	if nl < 0 {
		return len(s)
	}
	pos := i + nl + 1
	for pos <= len(s) {
		lineEnd := strings.IndexByte(s[pos:], '\n')
		line := s[pos:]
		if lineEnd >= 0 {
			line = s[pos : pos+lineEnd]
		}
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, label) {
			after := trimmed[len(label):]
			if after == "" || !isNameChar(after[0]) {
				return pos + (len(line) - len(trimmed)) + len(label)
			}
		}
		if lineEnd < 0 {
			break
		}
		pos += lineEnd + 1
	}
	return len(s)
}

func operatorLen(s string) int {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return len(op)
		}
	}
	return 1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isNameChar(c byte) bool {
	return isNameStart(c) || isDigit(c)
}
