package analysis

import (
	"sort"
	"strings"
)

// Options controls how ignored lines are detected
type Options struct {
	// UseAnnotationsForIgnoringCode honours @codeCoverageIgnore markers
	UseAnnotationsForIgnoringCode bool
	// IgnoreDeprecatedCode treats units tagged @deprecated as ignored
	IgnoreDeprecatedCode bool
}

// DefaultOptions honours ignore annotations and keeps deprecated code
func DefaultOptions() Options {
	return Options{UseAnnotationsForIgnoringCode: true}
}

// AnalyseSource runs the full static analysis over one file's source
func AnalyseSource(path string, src []byte, opts Options) *FileAnalysis {
	tokens := Tokenize(src)
	decl := newParser(tokens).parse()

	fa := &FileAnalysis{Path: path}
	for _, c := range decl.classes {
		for _, m := range decl.methods[c] {
			c.Methods = append(c.Methods, *m)
		}
		switch c.Kind {
		case KindTrait:
			fa.Traits = append(fa.Traits, *c)
		case KindInterface:
			fa.Interfaces = append(fa.Interfaces, *c)
		default:
			fa.Classes = append(fa.Classes, *c)
		}
	}
	for _, f := range decl.functions {
		fa.Functions = append(fa.Functions, *f)
	}

	lines := strings.Split(string(src), "\n")
	fa.IgnoredLines = ignoredLines(fa, tokens, lines, decl, opts)
	fa.ExecutableLines = executableLines(fa, tokens, fa.IgnoredLines)
	fa.LinesOfCode = linesOfCode(src, tokens, len(fa.ExecutableLines))
	return fa
}

func linesOfCode(src []byte, tokens []Token, logical int) LinesOfCode {
	loc := max(strings.Count(string(src), "\n")+1, strings.Count(string(src), "\r")+1)
	if len(src) == 0 {
		loc = 0
	}
	cloc := 0
	for _, t := range tokens {
		if t.Kind == Comment || t.Kind == DocComment {
			cloc += strings.Count(t.Text, "\n") + 1
		}
	}
	return LinesOfCode{
		LinesOfCode:           loc,
		CommentLinesOfCode:    cloc,
		NonCommentLinesOfCode: loc - cloc,
		LogicalLinesOfCode:    logical,
	}
}

// codeLines marks every line touched by a significant token
func codeLines(tokens []Token) map[int]bool {
	code := make(map[int]bool)
	for _, t := range tokens {
		if !t.Significant() {
			continue
		}
		for l := t.Line; l <= t.EndLine(); l++ {
			code[l] = true
		}
	}
	return code
}

func ignoredLines(fa *FileAnalysis, tokens []Token, lines []string, decl declarations, opts Options) []int {
	set := make(map[int]bool)
	add := func(from, to int) {
		for l := from; l <= to; l++ {
			set[l] = true
		}
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			set[i+1] = true
		}
	}

	code := codeLines(tokens)
	ignore, stop := false, false
	for _, t := range tokens {
		switch t.Kind {
		case Comment, DocComment:
			for l := t.Line; l <= t.EndLine(); l++ {
				if !code[l] {
					set[l] = true
				}
			}
			if opts.UseAnnotationsForIgnoringCode {
				switch strings.TrimSpace(t.Text) {
				case "// @codeCoverageIgnore", "//@codeCoverageIgnore":
					ignore, stop = true, true
				case "// @codeCoverageIgnoreStart", "//@codeCoverageIgnoreStart":
					ignore = true
				case "// @codeCoverageIgnoreEnd", "//@codeCoverageIgnoreEnd":
					stop = true
				}
			}
		case OpenTag, CloseTag:
			set[t.Line] = true
		}
		if ignore {
			add(t.Line, t.EndLine())
			if stop {
				ignore, stop = false, false
			}
		}
	}

	for _, l := range decl.lineTokens {
		set[l] = true
	}

	ignoredByDocblock := func(doc string) bool {
		if !opts.UseAnnotationsForIgnoringCode {
			return false
		}
		return strings.Contains(doc, "@codeCoverageIgnore") ||
			(opts.IgnoreDeprecatedCode && strings.Contains(doc, "@deprecated"))
	}

	classLikes := make([]Class, 0, len(fa.Classes)+len(fa.Traits)+len(fa.Interfaces))
	classLikes = append(classLikes, fa.Classes...)
	classLikes = append(classLikes, fa.Traits...)
	classLikes = append(classLikes, fa.Interfaces...)
	for _, c := range classLikes {
		set[c.DeclLine] = true
		switch {
		case ignoredByDocblock(c.Docblock):
			add(c.StartLine, c.EndLine)
		case c.Kind == KindInterface || len(c.Methods) == 0:
			add(c.StartLine, c.EndLine)
		default:
			first, last := c.Methods[0], c.Methods[len(c.Methods)-1]
			add(c.StartLine, first.StartLine-1)
			add(last.EndLine+1, c.EndLine)
		}
		for _, m := range c.Methods {
			set[m.DeclLine] = true
			if ignoredByDocblock(m.Docblock) {
				add(m.StartLine, m.EndLine)
			}
		}
	}
	for _, f := range fa.Functions {
		set[f.DeclLine] = true
		if ignoredByDocblock(f.Docblock) {
			add(f.StartLine, f.EndLine)
		}
	}

	set[len(lines)+1] = true

	out := make([]int, 0, len(set))
	for l := range set {
		if l > 0 {
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

// structural tokens never make a line executable on their own
func structural(t Token) bool {
	switch t.Kind {
	case OpenTag, CloseTag, Attribute:
		return true
	case Operator:
		switch t.Text {
		case "{", "}", "(", ")", "[", "]", ";", ",", ":":
			return true
		}
	case Keyword:
		switch strings.ToLower(t.Text) {
		case "else", "try", "finally", "do", "endif", "endforeach", "endwhile", "endfor", "endswitch", "enddeclare":
			return true
		}
	}
	return false
}

// executableLines maps each statement-bearing line to a branch id.
// A new branch begins at every curly brace.
func executableLines(fa *FileAnalysis, tokens []Token, ignored []int) map[int]int {
	skip := make(map[int]bool, len(ignored))
	for _, l := range ignored {
		skip[l] = true
	}

	// class bodies outside methods hold declarations, not statements
	type span struct{ from, to int }
	var declarative []span
	var bodies []span
	for _, group := range [][]Class{fa.Classes, fa.Traits, fa.Interfaces} {
		for _, c := range group {
			declarative = append(declarative, span{c.StartLine, c.EndLine})
			for _, m := range c.Methods {
				if !m.Abstract && m.EndLine > m.DeclLine {
					bodies = append(bodies, span{m.StartLine, m.EndLine})
				}
			}
		}
	}
	inside := func(spans []span, line int) bool {
		for _, s := range spans {
			if line >= s.from && line <= s.to {
				return true
			}
		}
		return false
	}

	out := make(map[int]int)
	branch := 0
	for _, t := range tokens {
		if !t.Significant() {
			continue
		}
		if t.Is("{") || t.Is("}") {
			branch++
			continue
		}
		if structural(t) || skip[t.Line] {
			continue
		}
		if _, seen := out[t.Line]; seen {
			continue
		}
		if inside(declarative, t.Line) && !inside(bodies, t.Line) {
			continue
		}
		out[t.Line] = branch
	}
	return out
}
