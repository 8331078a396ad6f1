// Package clover writes the Clover XML coverage format.
package clover

import (
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/report"
)

type coverageXML struct {
	XMLName   xml.Name   `xml:"coverage"`
	Generated int64      `xml:"generated,attr"`
	Project   projectXML `xml:"project"`
}

type projectXML struct {
	Timestamp int64          `xml:"timestamp,attr"`
	Name      string         `xml:"name,attr,omitempty"`
	Files     []fileXML      `xml:"file"`
	Packages  []packageXML   `xml:"package"`
	Metrics   projectMetrics `xml:"metrics"`
}

type packageXML struct {
	Name  string    `xml:"name,attr"`
	Files []fileXML `xml:"file"`
}

type fileXML struct {
	Name    string      `xml:"name,attr"`
	Classes []classXML  `xml:"class"`
	Lines   []lineXML   `xml:"line"`
	Metrics fileMetrics `xml:"metrics"`
}

type classXML struct {
	Name      string       `xml:"name,attr"`
	Namespace string       `xml:"namespace,attr"`
	Metrics   classMetrics `xml:"metrics"`
}

type lineXML struct {
	Num        int    `xml:"num,attr"`
	Type       string `xml:"type,attr"`
	Name       string `xml:"name,attr,omitempty"`
	Visibility string `xml:"visibility,attr,omitempty"`
	Complexity string `xml:"complexity,attr,omitempty"`
	Crap       string `xml:"crap,attr,omitempty"`
	Count      int    `xml:"count,attr"`
}

type counts struct {
	Methods             int `xml:"methods,attr"`
	CoveredMethods      int `xml:"coveredmethods,attr"`
	Conditionals        int `xml:"conditionals,attr"`
	CoveredConditionals int `xml:"coveredconditionals,attr"`
	Statements          int `xml:"statements,attr"`
	CoveredStatements   int `xml:"coveredstatements,attr"`
	Elements            int `xml:"elements,attr"`
	CoveredElements     int `xml:"coveredelements,attr"`
}

type classMetrics struct {
	Complexity int `xml:"complexity,attr"`
	counts
}

type fileMetrics struct {
	Loc     int `xml:"loc,attr"`
	Ncloc   int `xml:"ncloc,attr"`
	Classes int `xml:"classes,attr"`
	counts
}

type projectMetrics struct {
	Files int `xml:"files,attr"`
	fileMetrics
}

func statsCounts(s node.Stats) counts {
	return elements(counts{
		Methods:             s.Methods,
		CoveredMethods:      s.TestedMethods,
		Conditionals:        s.ExecutableBranches,
		CoveredConditionals: s.ExecutedBranches,
		Statements:          s.ExecutableLines,
		CoveredStatements:   s.ExecutedLines,
	})
}

func elements(c counts) counts {
	c.Elements = c.Methods + c.Statements + c.Conditionals
	c.CoveredElements = c.CoveredMethods + c.CoveredStatements + c.CoveredConditionals
	return c
}

// Renderer produces Clover XML. Name is the optional project name; Time
// defaults to now.
type Renderer struct {
	Name string
	Time time.Time
}

// Render returns the report for root
func (r Renderer) Render(root *node.Directory) ([]byte, error) {
	ts := report.Time(r.Time).Unix()
	doc := coverageXML{
		Generated: ts,
		Project:   projectXML{Timestamp: ts, Name: r.Name},
	}

	packages := make(map[string]*packageXML)
	for _, f := range root.AllFiles() {
		namespace, fx := file(f)
		if namespace == "global" {
			doc.Project.Files = append(doc.Project.Files, fx)
			continue
		}
		p, ok := packages[namespace]
		if !ok {
			p = &packageXML{Name: namespace}
			packages[namespace] = p
		}
		p.Files = append(p.Files, fx)
	}
	for _, name := range slices.Sorted(maps.Keys(packages)) {
		doc.Project.Packages = append(doc.Project.Packages, *packages[name])
	}

	s := root.Stats()
	doc.Project.Metrics = projectMetrics{
		Files: s.Files,
		fileMetrics: fileMetrics{
			Loc:     s.LinesOfCode.LinesOfCode,
			Ncloc:   s.LinesOfCode.NonCommentLinesOfCode,
			Classes: s.Classes + s.Traits,
			counts:  statsCounts(s),
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode clover report: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Write renders root into the file target
func (r Renderer) Write(fs afero.Fs, root *node.Directory, target string) error {
	out, err := r.Render(root)
	if err != nil {
		return err
	}
	return report.WriteFile(fs, target, out)
}

func file(f *node.File) (string, fileXML) {
	coverage := f.LineCoverage()
	lines := make(map[int]lineXML)
	namespace := "global"
	fx := fileXML{Name: f.PathAsString()}

	for _, c := range append(slices.Clone(f.Classes()), f.Traits()...) {
		if c.Namespace != "" {
			namespace = c.Namespace
		}
		cm := counts{}
		for _, m := range c.Methods {
			if m.ExecutableLines == 0 {
				continue
			}
			cm.Methods++
			cm.Statements += m.ExecutableLines
			cm.CoveredStatements += m.ExecutedLines
			cm.Conditionals += m.ExecutableBranches
			cm.CoveredConditionals += m.ExecutedBranches
			if m.Tested() {
				cm.CoveredMethods++
			}

			count := 0
			for l := m.StartLine; l <= m.EndLine; l++ {
				if lt := coverage[l]; lt != nil {
					count = max(count, lt.Len())
				}
			}
			lines[m.StartLine] = lineXML{
				Num:        m.StartLine,
				Type:       "method",
				Name:       m.Name,
				Visibility: string(m.Visibility),
				Complexity: fmt.Sprint(m.CCN),
				Crap:       m.CRAP.String(),
				Count:      count,
			}
		}
		ns := c.Namespace
		if ns == "" {
			ns = "global"
		}
		fx.Classes = append(fx.Classes, classXML{
			Name:      c.Name,
			Namespace: ns,
			Metrics:   classMetrics{Complexity: c.CCN, counts: elements(cm)},
		})
	}

	if namespace == "global" {
		for _, fn := range f.Functions() {
			if fn.Namespace != "" {
				namespace = fn.Namespace
			}
		}
	}

	for line, lt := range coverage {
		if lt == nil {
			continue
		}
		if _, ok := lines[line]; ok {
			continue
		}
		lines[line] = lineXML{Num: line, Type: "stmt", Count: lt.Len()}
	}
	for _, l := range slices.Sorted(maps.Keys(lines)) {
		fx.Lines = append(fx.Lines, lines[l])
	}

	s := f.Stats()
	fx.Metrics = fileMetrics{
		Loc:     s.LinesOfCode.LinesOfCode,
		Ncloc:   s.LinesOfCode.NonCommentLinesOfCode,
		Classes: s.Classes + s.Traits,
		counts:  statsCounts(s),
	}
	return namespace, fx
}
