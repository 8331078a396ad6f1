package analysis

import (
	"strings"
)

type scopeKind int

const (
	scopeBlock scopeKind = iota
	scopeNamespace
	scopeClass
	scopeAnonClass
	scopeMethod
	scopeFunction
)

type scope struct {
	kind     scopeKind
	depth    int
	class    *Class
	method   *Method
	function *Function
}

// declarations found by a single pass over the token stream
type declarations struct {
	classes    []*Class
	functions  []*Function
	methods    map[*Class][]*Method
	lineTokens []int // lines carrying namespace, use, declare statements
}

// parser walks the significant tokens of a file
type parser struct {
	code     []Token
	docs     []string
	attrOpen map[int]int

	namespace string
	depth     int
	scopes    []*scope
	pending   *scope

	decl declarations
}

func newParser(tokens []Token) *parser {
	p := &parser{attrOpen: make(map[int]int)}
	doc := ""
	for _, t := range tokens {
		switch t.Kind {
		case DocComment:
			doc = t.Text
			continue
		case Whitespace, Comment, InlineHTML:
			continue
		}
		p.code = append(p.code, t)
		p.docs = append(p.docs, doc)
		doc = ""
	}
	for i, t := range p.code {
		if t.Kind != Attribute {
			continue
		}
		level := 1
		for j := i + 1; j < len(p.code); j++ {
			if p.code[j].Is("[") || p.code[j].Kind == Attribute {
				level++
			} else if p.code[j].Is("]") {
				level--
				if level == 0 {
					p.attrOpen[j] = i
					break
				}
			}
		}
	}
	p.decl.methods = make(map[*Class][]*Method)
	return p
}

func (p *parser) parse() declarations {
	for i := 0; i < len(p.code); i++ {
		i = p.step(i)
	}
	return p.decl
}

// step handles the token at i and returns the index of the last token consumed
func (p *parser) step(i int) int {
	t := p.code[i]
	switch {
	case t.Is("{"):
		p.depth++
		s := p.pending
		p.pending = nil
		if s == nil {
			s = &scope{kind: scopeBlock}
		}
		s.depth = p.depth - 1
		p.scopes = append(p.scopes, s)
	case t.Is("}"):
		p.closeScope(t.Line)
	case t.Is("namespace") && !p.prevIs(i, "::"):
		return p.namespaceDecl(i)
	case t.Is("use") || t.Is("declare"):
		if !p.prevIs(i, ")") {
			p.decl.lineTokens = append(p.decl.lineTokens, t.Line)
		}
	case t.Is("class") || t.Is("trait") || t.Is("interface") || t.Is("enum"):
		if p.prevIs(i, "::") || p.prevIs(i, "->") || p.prevIs(i, "?->") {
			break
		}
		if t.Is("enum") && (i+1 >= len(p.code) || p.code[i+1].Kind != Name) {
			break
		}
		if p.prevIs(i, "new") {
			return p.anonymousClass(i)
		}
		return p.classDecl(i)
	case t.Is("function"):
		return p.functionDecl(i)
	default:
		if isDecision(t) {
			if target := p.ccnTarget(); target != nil {
				*target++
			}
		}
	}
	return i
}

func (p *parser) prevIs(i int, text string) bool {
	return i > 0 && p.code[i-1].Is(text)
}

func (p *parser) closeScope(line int) {
	p.depth--
	if len(p.scopes) == 0 {
		return
	}
	s := p.scopes[len(p.scopes)-1]
	p.scopes = p.scopes[:len(p.scopes)-1]
	switch s.kind {
	case scopeNamespace:
		p.namespace = ""
		p.decl.lineTokens = append(p.decl.lineTokens, line)
	case scopeClass:
		s.class.EndLine = line
	case scopeMethod:
		s.method.EndLine = line
	case scopeFunction:
		s.function.EndLine = line
	}
}

// ccnTarget returns the complexity counter of the innermost method or function
func (p *parser) ccnTarget() *int {
	for k := len(p.scopes) - 1; k >= 0; k-- {
		switch p.scopes[k].kind {
		case scopeMethod:
			return &p.scopes[k].method.CCN
		case scopeFunction:
			return &p.scopes[k].function.CCN
		}
	}
	return nil
}

func isDecision(t Token) bool {
	switch t.Kind {
	case Keyword:
		switch strings.ToLower(t.Text) {
		case "if", "elseif", "for", "foreach", "while", "case", "catch", "and", "or", "xor":
			return true
		}
	case Operator:
		switch t.Text {
		case "?", "&&", "||", "??":
			return true
		}
	}
	return false
}

func (p *parser) namespaceDecl(i int) int {
	p.decl.lineTokens = append(p.decl.lineTokens, p.code[i].Line)
	name := ""
	j := i + 1
	for ; j < len(p.code); j++ {
		t := p.code[j]
		if t.Is(";") {
			p.namespace = name
			p.decl.lineTokens = append(p.decl.lineTokens, t.Line)
			return j
		}
		if t.Is("{") {
			p.namespace = name
			p.pending = &scope{kind: scopeNamespace}
			return j - 1
		}
		if t.Kind == Name {
			name += t.Text
		}
	}
	return j
}

// declStart walks back over modifiers and attributes preceding a declaration
func (p *parser) declStart(i int) int {
	j := i
	for j > 0 {
		prev := p.code[j-1]
		if prev.Kind == Keyword && isModifier(prev.Text) {
			j--
			continue
		}
		if open, ok := p.attrOpen[j-1]; ok {
			j = open
			continue
		}
		break
	}
	return j
}

func isModifier(word string) bool {
	switch strings.ToLower(word) {
	case "public", "protected", "private", "static", "abstract", "final", "readonly", "var":
		return true
	}
	return false
}

func (p *parser) qualify(name string) string {
	if p.namespace == "" {
		return name
	}
	return p.namespace + `\` + name
}

func (p *parser) classDecl(i int) int {
	kw := p.code[i]
	if i+1 >= len(p.code) || p.code[i+1].Kind != Name && p.code[i+1].Kind != Keyword {
		return i
	}
	start := p.declStart(i)
	name := p.code[i+1].Text
	c := &Class{
		Kind:           ClassKind(strings.ToLower(kw.Text)),
		Name:           name,
		NamespacedName: p.qualify(name),
		Namespace:      p.namespace,
		StartLine:      p.code[start].Line,
		EndLine:        kw.Line,
		DeclLine:       kw.Line,
		Docblock:       p.docs[start],
	}
	j := i + 2
	for ; j < len(p.code); j++ {
		t := p.code[j]
		if t.Is("{") {
			break
		}
		if t.Is("extends") && j+1 < len(p.code) && c.Kind == KindClass {
			c.Parent = strings.TrimPrefix(p.code[j+1].Text, `\`)
		}
	}
	p.decl.classes = append(p.decl.classes, c)
	p.pending = &scope{kind: scopeClass, class: c}
	return j - 1
}

func (p *parser) anonymousClass(i int) int {
	j := i + 1
	if j < len(p.code) && p.code[j].Is("(") {
		j = p.matching(j, "(", ")")
	}
	for ; j < len(p.code); j++ {
		if p.code[j].Is("{") {
			break
		}
	}
	p.pending = &scope{kind: scopeAnonClass}
	return j - 1
}

// matching returns the index of the bracket closing the one at open
func (p *parser) matching(open int, left, right string) int {
	level := 0
	for j := open; j < len(p.code); j++ {
		if p.code[j].Is(left) {
			level++
		} else if p.code[j].Is(right) {
			level--
			if level == 0 {
				return j
			}
		}
	}
	return len(p.code) - 1
}

// enclosingClass returns the class whose body directly contains the current position
func (p *parser) enclosingClass() (*scope, bool) {
	if len(p.scopes) == 0 {
		return nil, false
	}
	top := p.scopes[len(p.scopes)-1]
	if top.kind != scopeClass && top.kind != scopeAnonClass {
		return nil, false
	}
	return top, p.depth == top.depth+1
}

func (p *parser) functionDecl(i int) int {
	j := i + 1
	if j < len(p.code) && p.code[j].Is("&") {
		j++
	}
	if j >= len(p.code) || (p.code[j].Kind != Name && p.code[j].Kind != Keyword) {
		// closure
		return i
	}
	name := p.code[j].Text
	open := j + 1
	if open >= len(p.code) || !p.code[open].Is("(") {
		return i
	}
	closeParen := p.matching(open, "(", ")")
	signature := name + "(" + p.parameters(open+1, closeParen) + ")"
	k := closeParen + 1
	if k < len(p.code) && p.code[k].Is(":") {
		var rt strings.Builder
		for k++; k < len(p.code) && !p.code[k].Is("{") && !p.code[k].Is(";"); k++ {
			rt.WriteString(strings.TrimPrefix(p.code[k].Text, `\`))
		}
		signature += ": " + rt.String()
	}
	if k >= len(p.code) {
		k = len(p.code) - 1
	}

	start := p.declStart(i)
	kw := p.code[i]
	body := p.code[k].Is("{")

	if cls, direct := p.enclosingClass(); direct {
		if cls.kind == scopeAnonClass {
			if body {
				p.pending = &scope{kind: scopeBlock}
				return k - 1
			}
			return k
		}
		m := &Method{
			Name:       name,
			Signature:  signature,
			Visibility: Public,
			StartLine:  p.code[start].Line,
			EndLine:    p.code[k].Line,
			DeclLine:   kw.Line,
			CCN:        1,
			Docblock:   p.docs[start],
		}
		for x := start; x < i; x++ {
			switch strings.ToLower(p.code[x].Text) {
			case "protected":
				m.Visibility = Protected
			case "private":
				m.Visibility = Private
			case "static":
				m.Static = true
			case "abstract":
				m.Abstract = true
			}
		}
		p.decl.methods[cls.class] = append(p.decl.methods[cls.class], m)
		if !body {
			return k
		}
		p.pending = &scope{kind: scopeMethod, method: m}
		return k - 1
	}

	f := &Function{
		Name:           name,
		NamespacedName: p.qualify(name),
		Namespace:      p.namespace,
		Signature:      signature,
		StartLine:      p.code[start].Line,
		EndLine:        p.code[k].Line,
		DeclLine:       kw.Line,
		CCN:            1,
		Docblock:       p.docs[start],
	}
	p.decl.functions = append(p.decl.functions, f)
	if !body {
		return k
	}
	p.pending = &scope{kind: scopeFunction, function: f}
	return k - 1
}

// parameters renders the parameter list between from and to (exclusive)
// as "Type $name" pairs without defaults.
func (p *parser) parameters(from, to int) string {
	var params []string
	var typ strings.Builder
	variable := ""
	level := 0
	inDefault := false
	flush := func() {
		if variable == "" {
			return
		}
		if typ.Len() > 0 {
			params = append(params, typ.String()+" "+variable)
		} else {
			params = append(params, variable)
		}
		typ.Reset()
		variable = ""
	}
	for j := from; j < to; j++ {
		t := p.code[j]
		if t.Kind == Attribute {
			j = p.attributeEnd(j)
			continue
		}
		switch {
		case t.Is("(") || t.Is("[") || t.Is("{"):
			level++
			continue
		case t.Is(")") || t.Is("]") || t.Is("}"):
			level--
			continue
		case t.Is(",") && level == 0:
			flush()
			inDefault = false
			continue
		}
		if level > 0 || inDefault {
			continue
		}
		switch {
		case t.Is("="):
			inDefault = true
		case t.Kind == Variable:
			variable = t.Text
		case t.Kind == Keyword && isModifier(t.Text):
		case t.Is("&") && j+1 < to && (p.code[j+1].Kind == Variable || p.code[j+1].Is("...")):
		case t.Is("..."):
		default:
			typ.WriteString(strings.TrimPrefix(t.Text, `\`))
		}
	}
	flush()
	return strings.Join(params, ", ")
}

func (p *parser) attributeEnd(open int) int {
	for closeIdx, o := range p.attrOpen {
		if o == open {
			return closeIdx
		}
	}
	return open
}
