package node

import (
	"maps"
	"slices"

	"github.com/user/phpcov/internal/analysis"
	"github.com/user/phpcov/internal/coverage"
)

// File is one source file with its coverage and units
type File struct {
	base
	source    string
	lines     map[int]*coverage.LineTests
	functions map[string]coverage.ProcessedFunction
	tests     *coverage.Tests

	classes      []*Class
	traits       []*Class
	functionList []*Function
	stats        Stats
}

// NewFile computes the metrics of the file at source, analysed as fa.
// lines and functions are the processed coverage recorded for it.
func NewFile(name string, parent *Directory, source string, fa *analysis.FileAnalysis,
	lines map[int]*coverage.LineTests, functions map[string]coverage.ProcessedFunction, tests *coverage.Tests) *File {
	f := &File{
		base:      base{name: name, parent: parent},
		source:    source,
		lines:     lines,
		functions: functions,
		tests:     tests,
	}
	f.calculate(fa)
	return f
}

func (f *File) ID() string             { return f.id() }
func (f *File) PathAsString() string   { return f.path() }
func (f *File) PathAsArray() []Node    { return pathAsArray(f) }
func (f *File) Stats() Stats           { return f.stats }
func (f *File) Classes() []*Class      { return f.classes }
func (f *File) Traits() []*Class       { return f.traits }
func (f *File) Functions() []*Function { return f.functionList }

// Source is the path the file was analysed from
func (f *File) Source() string { return f.source }

// LineCoverage maps lines to the tests that executed them; nil entries are
// not executable
func (f *File) LineCoverage() map[int]*coverage.LineTests { return f.lines }

// FunctionCoverage is the branch and path coverage keyed "Class->method" or "function"
func (f *File) FunctionCoverage() map[string]coverage.ProcessedFunction { return f.functions }

// Tests is the ledger of the run the file belongs to
func (f *File) Tests() *coverage.Tests { return f.tests }

// CoveringTests returns the ids of the tests that executed line
func (f *File) CoveringTests(line int) []string {
	if lt := f.lines[line]; lt != nil {
		return lt.IDs
	}
	return nil
}

func (f *File) link() string {
	return f.ID() + ".html"
}

func (f *File) branchCounts(key string) Counts {
	var c Counts
	fn, ok := f.functions[key]
	if !ok {
		return c
	}
	c.ExecutableBranches = len(fn.Branches)
	for _, b := range fn.Branches {
		if len(b.Hit) > 0 {
			c.ExecutedBranches++
		}
	}
	c.ExecutablePaths = len(fn.Paths)
	for _, p := range fn.Paths {
		if len(p.Hit) > 0 {
			c.ExecutedPaths++
		}
	}
	return c
}

func (f *File) calculate(fa *analysis.FileAnalysis) {
	f.stats = Stats{Files: 1, LinesOfCode: fa.LinesOfCode}

	// units each line counts towards
	byLine := make(map[int][]*Counts)
	link := f.link()

	classLike := func(c analysis.Class) *Class {
		out := &Class{
			Name:      c.Name,
			Namespace: c.Namespace,
			StartLine: c.StartLine,
			Link:      link + "#" + itoa(c.StartLine),
		}
		for _, m := range c.Methods {
			method := &Method{
				Name:       m.Name,
				Signature:  m.Signature,
				Visibility: m.Visibility,
				StartLine:  m.StartLine,
				EndLine:    m.EndLine,
				CCN:        m.CCN,
				Link:       link + "#" + itoa(m.StartLine),
			}
			method.Counts = f.branchCounts(c.NamespacedName + "->" + m.Name)
			out.Counts.add(method.Counts)
			out.Methods = append(out.Methods, method)
			for l := m.StartLine; l <= m.EndLine; l++ {
				byLine[l] = append(byLine[l], &out.Counts, &method.Counts)
			}
		}
		return out
	}
	for _, c := range fa.Classes {
		f.classes = append(f.classes, classLike(c))
	}
	for _, t := range fa.Traits {
		f.traits = append(f.traits, classLike(t))
	}
	for _, fn := range fa.Functions {
		function := &Function{
			Name:      fn.Name,
			Namespace: fn.Namespace,
			Signature: fn.Signature,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
			CCN:       fn.CCN,
			Link:      link + "#" + itoa(fn.StartLine),
		}
		function.Counts = f.branchCounts(fn.NamespacedName)
		f.functionList = append(f.functionList, function)
		for l := fn.StartLine; l <= fn.EndLine; l++ {
			byLine[l] = append(byLine[l], &function.Counts)
		}
	}

	for _, line := range slices.Sorted(maps.Keys(f.lines)) {
		lt := f.lines[line]
		if lt == nil {
			continue
		}
		f.stats.ExecutableLines++
		for _, c := range byLine[line] {
			c.ExecutableLines++
		}
		if lt.Len() > 0 {
			f.stats.ExecutedLines++
			for _, c := range byLine[line] {
				c.ExecutedLines++
			}
		}
	}

	rollUp := func(classes []*Class, count, tested *int) {
		for _, c := range classes {
			hasCode := false
			for _, m := range c.Methods {
				m.Coverage = coveragePercent(m.ExecutedLines, m.ExecutableLines)
				m.CRAP = CrapIndex(m.CCN, m.Coverage)
				c.CCN += m.CCN
				if m.ExecutableLines > 0 {
					hasCode = true
					f.stats.Methods++
					if m.Tested() {
						f.stats.TestedMethods++
					}
				}
			}
			c.Coverage = coveragePercent(c.ExecutedLines, c.ExecutableLines)
			c.CRAP = CrapIndex(c.CCN, c.Coverage)
			if hasCode {
				*count++
			}
			if c.Tested() {
				*tested++
			}
			f.stats.ExecutableBranches += c.ExecutableBranches
			f.stats.ExecutedBranches += c.ExecutedBranches
			f.stats.ExecutablePaths += c.ExecutablePaths
			f.stats.ExecutedPaths += c.ExecutedPaths
		}
	}
	rollUp(f.classes, &f.stats.Classes, &f.stats.TestedClasses)
	rollUp(f.traits, &f.stats.Traits, &f.stats.TestedTraits)

	for _, fn := range f.functionList {
		fn.Coverage = coveragePercent(fn.ExecutedLines, fn.ExecutableLines)
		fn.CRAP = CrapIndex(fn.CCN, fn.Coverage)
		f.stats.Functions++
		if fn.Tested() {
			f.stats.TestedFunctions++
		}
		f.stats.ExecutableBranches += fn.ExecutableBranches
		f.stats.ExecutedBranches += fn.ExecutedBranches
		f.stats.ExecutablePaths += fn.ExecutablePaths
		f.stats.ExecutedPaths += fn.ExecutedPaths
	}
}
