// Package node arranges processed coverage into a tree of directories and
// files carrying the per-unit metrics the reports print.
package node

import (
	"strings"

	"github.com/user/phpcov/internal/analysis"
)

// Stats are the totals of a node
type Stats struct {
	Counts
	Files           int
	Classes         int
	TestedClasses   int
	Traits          int
	TestedTraits    int
	Methods         int
	TestedMethods   int
	Functions       int
	TestedFunctions int
	LinesOfCode     analysis.LinesOfCode
}

func (s *Stats) add(o Stats) {
	s.Counts.add(o.Counts)
	s.Files += o.Files
	s.Classes += o.Classes
	s.TestedClasses += o.TestedClasses
	s.Traits += o.Traits
	s.TestedTraits += o.TestedTraits
	s.Methods += o.Methods
	s.TestedMethods += o.TestedMethods
	s.Functions += o.Functions
	s.TestedFunctions += o.TestedFunctions
	s.LinesOfCode.LinesOfCode += o.LinesOfCode.LinesOfCode
	s.LinesOfCode.CommentLinesOfCode += o.LinesOfCode.CommentLinesOfCode
	s.LinesOfCode.NonCommentLinesOfCode += o.LinesOfCode.NonCommentLinesOfCode
	s.LinesOfCode.LogicalLinesOfCode += o.LinesOfCode.LogicalLinesOfCode
}

func (s Stats) Lines() Percentage {
	return Percentage{Fraction: s.ExecutedLines, Total: s.ExecutableLines}
}

func (s Stats) Branches() Percentage {
	return Percentage{Fraction: s.ExecutedBranches, Total: s.ExecutableBranches}
}

func (s Stats) Paths() Percentage {
	return Percentage{Fraction: s.ExecutedPaths, Total: s.ExecutablePaths}
}

func (s Stats) TestedClassesPercent() Percentage {
	return Percentage{Fraction: s.TestedClasses, Total: s.Classes}
}

func (s Stats) TestedTraitsPercent() Percentage {
	return Percentage{Fraction: s.TestedTraits, Total: s.Traits}
}

func (s Stats) TestedClassesAndTraitsPercent() Percentage {
	return Percentage{Fraction: s.TestedClasses + s.TestedTraits, Total: s.Classes + s.Traits}
}

func (s Stats) TestedMethodsPercent() Percentage {
	return Percentage{Fraction: s.TestedMethods, Total: s.Methods}
}

func (s Stats) TestedFunctionsPercent() Percentage {
	return Percentage{Fraction: s.TestedFunctions, Total: s.Functions}
}

func (s Stats) TestedFunctionsAndMethodsPercent() Percentage {
	return Percentage{Fraction: s.TestedFunctions + s.TestedMethods, Total: s.Functions + s.Methods}
}

// Node is a directory or a file of the report tree
type Node interface {
	Name() string
	// ID is "index" for the root and the slash separated relative path below it
	ID() string
	PathAsString() string
	PathAsArray() []Node
	Parent() *Directory
	Stats() Stats
	Classes() []*Class
	Traits() []*Class
	Functions() []*Function
}

type base struct {
	name   string
	parent *Directory
}

func (b *base) Name() string       { return b.name }
func (b *base) Parent() *Directory { return b.parent }

func (b *base) id() string {
	if b.parent == nil {
		return "index"
	}
	parent := b.parent.ID()
	if parent == "index" {
		return strings.ReplaceAll(b.name, ":", "_")
	}
	return parent + "/" + b.name
}

func (b *base) path() string {
	if b.parent == nil {
		return b.name
	}
	parent := b.parent.PathAsString()
	if strings.HasSuffix(parent, "/") {
		return parent + b.name
	}
	return parent + "/" + b.name
}

func pathAsArray(n Node) []Node {
	if n.Parent() == nil {
		return []Node{n}
	}
	return append(pathAsArray(n.Parent()), n)
}
