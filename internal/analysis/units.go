package analysis

import "strings"

// Visibility of a method
type Visibility string

const (
	Public    Visibility = "public"
	Protected Visibility = "protected"
	Private   Visibility = "private"
)

// ClassKind tells classes, traits, interfaces and enums apart
type ClassKind string

const (
	KindClass     ClassKind = "class"
	KindTrait     ClassKind = "trait"
	KindInterface ClassKind = "interface"
	KindEnum      ClassKind = "enum"
)

// Method is a function declared inside a class-like unit
type Method struct {
	Name       string
	Signature  string
	Visibility Visibility
	Static     bool
	Abstract   bool
	StartLine  int
	EndLine    int
	DeclLine   int
	CCN        int
	Docblock   string
}

// Class describes a class, trait, interface or enum
type Class struct {
	Kind           ClassKind
	Name           string
	NamespacedName string
	Namespace      string
	Parent         string
	StartLine      int
	EndLine        int
	DeclLine       int
	Methods        []Method
	Docblock       string
}

// Method returns the method with the given name.
// PHP method names are case-insensitive.
func (c *Class) Method(name string) (*Method, bool) {
	for i := range c.Methods {
		if strings.EqualFold(c.Methods[i].Name, name) {
			return &c.Methods[i], true
		}
	}
	return nil, false
}

// CCN is the summed complexity of all methods
func (c *Class) CCN() int {
	n := 0
	for _, m := range c.Methods {
		n += m.CCN
	}
	return n
}

// Function is a named function outside any class-like unit
type Function struct {
	Name           string
	NamespacedName string
	Namespace      string
	Signature      string
	StartLine      int
	EndLine        int
	DeclLine       int
	CCN            int
	Docblock       string
}

// LinesOfCode holds the size metrics of one file
type LinesOfCode struct {
	LinesOfCode           int
	CommentLinesOfCode    int
	NonCommentLinesOfCode int
	LogicalLinesOfCode    int
}

// FileAnalysis is everything known statically about one source file
type FileAnalysis struct {
	Path            string
	Classes         []Class
	Traits          []Class
	Interfaces      []Class
	Functions       []Function
	LinesOfCode     LinesOfCode
	IgnoredLines    []int
	ExecutableLines map[int]int
}

// ClassesAndTraits returns classes followed by traits
func (fa *FileAnalysis) ClassesAndTraits() []Class {
	out := make([]Class, 0, len(fa.Classes)+len(fa.Traits))
	out = append(out, fa.Classes...)
	return append(out, fa.Traits...)
}

// UnitAt names the code unit containing line: "Class::method",
// "function" or "" when the line belongs to no unit.
func (fa *FileAnalysis) UnitAt(line int) string {
	for _, group := range [][]Class{fa.Classes, fa.Traits} {
		for _, c := range group {
			if line < c.StartLine || line > c.EndLine {
				continue
			}
			for _, m := range c.Methods {
				if line >= m.StartLine && line <= m.EndLine {
					return c.NamespacedName + "::" + m.Name
				}
			}
			return c.NamespacedName
		}
	}
	for _, f := range fa.Functions {
		if line >= f.StartLine && line <= f.EndLine {
			return f.NamespacedName
		}
	}
	return ""
}
