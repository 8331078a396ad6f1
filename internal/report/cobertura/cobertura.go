// Package cobertura writes the Cobertura 0.4 XML coverage format.
package cobertura

import (
	"encoding/xml"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/report"
)

const doctype = `<!DOCTYPE coverage SYSTEM "http://cobertura.sourceforge.net/xml/coverage-04.dtd">` + "\n"

type Coverage struct {
	XMLName         xml.Name   `xml:"coverage"`
	LineRate        float64    `xml:"line-rate,attr"`
	BranchRate      float64    `xml:"branch-rate,attr"`
	LinesCovered    int        `xml:"lines-covered,attr"`
	LinesValid      int        `xml:"lines-valid,attr"`
	BranchesCovered int        `xml:"branches-covered,attr"`
	BranchesValid   int        `xml:"branches-valid,attr"`
	Complexity      int        `xml:"complexity,attr"`
	Version         string     `xml:"version,attr"`
	Timestamp       int64      `xml:"timestamp,attr"`
	Sources         []*Source  `xml:"sources>source"`
	Packages        []*Package `xml:"packages>package"`
}

type Source struct {
	Path string `xml:",chardata"`
}

type Package struct {
	Name       string   `xml:"name,attr"`
	LineRate   float64  `xml:"line-rate,attr"`
	BranchRate float64  `xml:"branch-rate,attr"`
	Complexity int      `xml:"complexity,attr"`
	Classes    []*Class `xml:"classes>class"`
}

type Class struct {
	Name       string    `xml:"name,attr"`
	Filename   string    `xml:"filename,attr"`
	LineRate   float64   `xml:"line-rate,attr"`
	BranchRate float64   `xml:"branch-rate,attr"`
	Complexity int       `xml:"complexity,attr"`
	Methods    []*Method `xml:"methods>method"`
	Lines      []*Line   `xml:"lines>line"`
}

type Method struct {
	Name       string  `xml:"name,attr"`
	Signature  string  `xml:"signature,attr"`
	LineRate   float64 `xml:"line-rate,attr"`
	BranchRate float64 `xml:"branch-rate,attr"`
	Complexity int     `xml:"complexity,attr"`
	Lines      []*Line `xml:"lines>line"`
}

type Line struct {
	Number int `xml:"number,attr"`
	Hits   int `xml:"hits,attr"`
}

func rate(executed, executable int) float64 {
	if executable == 0 {
		return 0
	}
	return float64(executed) / float64(executable)
}

// Renderer produces Cobertura XML; Time defaults to now
type Renderer struct {
	Time time.Time
}

// Build returns the document for root
func (r Renderer) Build(root *node.Directory) *Coverage {
	s := root.Stats()
	doc := &Coverage{
		LineRate:        rate(s.ExecutedLines, s.ExecutableLines),
		BranchRate:      rate(s.ExecutedBranches, s.ExecutableBranches),
		LinesCovered:    s.ExecutedLines,
		LinesValid:      s.ExecutableLines,
		BranchesCovered: s.ExecutedBranches,
		BranchesValid:   s.ExecutableBranches,
		Version:         "0.4",
		Timestamp:       report.Time(r.Time).Unix(),
		Sources:         []*Source{{Path: root.PathAsString()}},
	}

	prefix := root.PathAsString()
	for _, f := range root.AllFiles() {
		name := relative(prefix, f.PathAsString())
		st := f.Stats()
		pkg := &Package{
			Name:       name,
			LineRate:   rate(st.ExecutedLines, st.ExecutableLines),
			BranchRate: rate(st.ExecutedBranches, st.ExecutableBranches),
		}
		lineCoverage := f.LineCoverage()

		for _, c := range append(slices.Clone(f.Classes()), f.Traits()...) {
			class := &Class{
				Name:       c.Name,
				Filename:   name,
				LineRate:   rate(c.ExecutedLines, c.ExecutableLines),
				BranchRate: rate(c.ExecutedBranches, c.ExecutableBranches),
				Complexity: c.CCN,
			}
			for _, m := range c.Methods {
				if m.ExecutableLines == 0 {
					continue
				}
				method := &Method{
					Name:       m.Name,
					Signature:  m.Signature,
					LineRate:   rate(m.ExecutedLines, m.ExecutableLines),
					BranchRate: rate(m.ExecutedBranches, m.ExecutableBranches),
					Complexity: m.CCN,
					Lines:      lines(lineCoverage, m.StartLine, m.EndLine),
				}
				class.Methods = append(class.Methods, method)
				class.Lines = append(class.Lines, method.Lines...)
			}
			pkg.Classes = append(pkg.Classes, class)
			pkg.Complexity += class.Complexity
		}

		if functions := f.Functions(); len(functions) > 0 {
			class := &Class{
				Name:       path.Base(name),
				Filename:   name,
				LineRate:   rate(st.ExecutedLines, st.ExecutableLines),
				BranchRate: rate(st.ExecutedBranches, st.ExecutableBranches),
			}
			for _, fn := range functions {
				if fn.ExecutableLines == 0 {
					continue
				}
				method := &Method{
					Name:       fn.Name,
					Signature:  fn.Signature,
					LineRate:   rate(fn.ExecutedLines, fn.ExecutableLines),
					BranchRate: rate(fn.ExecutedBranches, fn.ExecutableBranches),
					Complexity: fn.CCN,
					Lines:      lines(lineCoverage, fn.StartLine, fn.EndLine),
				}
				class.Methods = append(class.Methods, method)
				class.Lines = append(class.Lines, method.Lines...)
				class.Complexity += fn.CCN
			}
			pkg.Classes = append(pkg.Classes, class)
			pkg.Complexity += class.Complexity
		}

		doc.Packages = append(doc.Packages, pkg)
		doc.Complexity += pkg.Complexity
	}
	return doc
}

// Render returns the serialized document for root
func (r Renderer) Render(root *node.Directory) ([]byte, error) {
	out, err := xml.MarshalIndent(r.Build(root), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode cobertura report: %w", err)
	}
	buf := append([]byte(xml.Header), doctype...)
	return append(append(buf, out...), '\n'), nil
}

// Write renders root into the file target
func (r Renderer) Write(fs afero.Fs, root *node.Directory, target string) error {
	out, err := r.Render(root)
	if err != nil {
		return err
	}
	return report.WriteFile(fs, target, out)
}

func lines(lineCoverage map[int]*coverage.LineTests, from, to int) []*Line {
	var out []*Line
	for l := from; l <= to; l++ {
		if lt := lineCoverage[l]; lt != nil {
			out = append(out, &Line{Number: l, Hits: lt.Len()})
		}
	}
	return out
}

func relative(prefix, p string) string {
	return strings.TrimPrefix(strings.TrimPrefix(p, prefix), "/")
}
