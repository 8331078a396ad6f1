// Package phpunit writes the PHPUnit coverage XML format: an index.xml
// describing the project and one document per source file.
package phpunit

import (
	"encoding/xml"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/analysis"
	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/report"
)

// Namespace of every document
const Namespace = "https://schema.phpunit.de/coverage/1.0"

// BuildInfo describes the run in the index document
type BuildInfo struct {
	Time           time.Time
	Version        string
	RuntimeName    string
	RuntimeVersion string
	RuntimeURL     string
	DriverName     string
	DriverVersion  string
}

// Renderer writes the report into a directory. Sources is where source
// files are read from; nil means the output filesystem.
type Renderer struct {
	Build   BuildInfo
	Sources afero.Fs
}

type indexXML struct {
	XMLName xml.Name   `xml:"https://schema.phpunit.de/coverage/1.0 phpunit"`
	Build   buildXML   `xml:"build"`
	Project projectXML `xml:"project"`
}

type buildXML struct {
	Time    string     `xml:"time,attr"`
	Phpcov  string     `xml:"phpcov,attr"`
	Runtime runtimeXML `xml:"runtime"`
	Driver  driverXML  `xml:"driver"`
}

type runtimeXML struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
	URL     string `xml:"url,attr"`
}

type driverXML struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

type projectXML struct {
	Source    string       `xml:"source,attr"`
	Tests     []testXML    `xml:"tests>test"`
	Directory directoryXML `xml:"directory"`
}

type testXML struct {
	Name   string `xml:"name,attr"`
	Size   string `xml:"size,attr"`
	Result int    `xml:"result,attr"`
	Status string `xml:"status,attr"`
}

type directoryXML struct {
	Name        string         `xml:"name,attr"`
	Totals      totalsXML      `xml:"totals"`
	Directories []directoryXML `xml:"directory"`
	Files       []fileRefXML   `xml:"file"`
}

type fileRefXML struct {
	Name   string    `xml:"name,attr"`
	Href   string    `xml:"href,attr"`
	Totals totalsXML `xml:"totals"`
}

type totalsXML struct {
	Lines     linesXML `xml:"lines"`
	Methods   countXML `xml:"methods"`
	Functions countXML `xml:"functions"`
	Classes   countXML `xml:"classes"`
	Traits    countXML `xml:"traits"`
}

type linesXML struct {
	Total      int    `xml:"total,attr"`
	Comments   int    `xml:"comments,attr"`
	Code       int    `xml:"code,attr"`
	Executable int    `xml:"executable,attr"`
	Executed   int    `xml:"executed,attr"`
	Percent    string `xml:"percent,attr"`
}

type countXML struct {
	Count   int    `xml:"count,attr"`
	Tested  int    `xml:"tested,attr"`
	Percent string `xml:"percent,attr"`
}

type fileDocXML struct {
	XMLName xml.Name `xml:"https://schema.phpunit.de/coverage/1.0 phpunit"`
	File    fileXML  `xml:"file"`
}

type fileXML struct {
	Name      string           `xml:"name,attr"`
	Path      string           `xml:"path,attr"`
	Totals    totalsXML        `xml:"totals"`
	Classes   []unitXML        `xml:"class"`
	Traits    []unitXML        `xml:"trait"`
	Functions []methodXML      `xml:"function"`
	Coverage  []coveredLineXML `xml:"coverage>line"`
	Source    []sourceLineXML  `xml:"source>line"`
}

type unitXML struct {
	Name       string       `xml:"name,attr"`
	Start      int          `xml:"start,attr"`
	Executable int          `xml:"executable,attr"`
	Executed   int          `xml:"executed,attr"`
	Crap       string       `xml:"crap,attr"`
	Namespace  namespaceXML `xml:"namespace"`
	Methods    []methodXML  `xml:"method"`
}

type namespaceXML struct {
	Name string `xml:"name,attr"`
}

type methodXML struct {
	Name       string `xml:"name,attr"`
	Signature  string `xml:"signature,attr"`
	Start      int    `xml:"start,attr"`
	End        int    `xml:"end,attr"`
	Crap       string `xml:"crap,attr"`
	Executable int    `xml:"executable,attr"`
	Executed   int    `xml:"executed,attr"`
	Coverage   string `xml:"coverage,attr"`
}

type coveredLineXML struct {
	Nr      int          `xml:"nr,attr"`
	Covered []coveredXML `xml:"covered"`
}

type coveredXML struct {
	By string `xml:"by,attr"`
}

type sourceLineXML struct {
	No     int        `xml:"no,attr"`
	Tokens []tokenXML `xml:"token"`
}

type tokenXML struct {
	Name string `xml:"name,attr"`
	Text string `xml:",chardata"`
}

func percent(p node.Percentage) string {
	if p.Total == 0 {
		return "0"
	}
	return fmt.Sprintf("%01.2f", p.AsFloat())
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'g', 14, 64)
}

func totals(s node.Stats) totalsXML {
	return totalsXML{
		Lines: linesXML{
			Total:      s.LinesOfCode.LinesOfCode,
			Comments:   s.LinesOfCode.CommentLinesOfCode,
			Code:       s.LinesOfCode.NonCommentLinesOfCode,
			Executable: s.ExecutableLines,
			Executed:   s.ExecutedLines,
			Percent:    percent(s.Lines()),
		},
		Methods:   countXML{Count: s.Methods, Tested: s.TestedMethods, Percent: percent(s.TestedMethodsPercent())},
		Functions: countXML{Count: s.Functions, Tested: s.TestedFunctions, Percent: percent(s.TestedFunctionsPercent())},
		Classes:   countXML{Count: s.Classes, Tested: s.TestedClasses, Percent: percent(s.TestedClassesPercent())},
		Traits:    countXML{Count: s.Traits, Tested: s.TestedTraits, Percent: percent(s.TestedTraitsPercent())},
	}
}

func encode(v any) ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode xml report: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Write renders root into the directory target
func (r Renderer) Write(fs afero.Fs, root *node.Directory, target string) error {
	if err := report.EnsureDirectory(fs, target); err != nil {
		return err
	}
	sources := r.Sources
	if sources == nil {
		sources = fs
	}

	index := indexXML{
		Build: buildXML{
			Time:    report.Time(r.Build.Time).Format("Mon Jan 2 15:04:05 MST 2006"),
			Phpcov:  r.Build.Version,
			Runtime: runtimeXML{Name: r.Build.RuntimeName, Version: r.Build.RuntimeVersion, URL: r.Build.RuntimeURL},
			Driver:  driverXML{Name: r.Build.DriverName, Version: r.Build.DriverVersion},
		},
		Project: projectXML{Source: root.PathAsString()},
	}

	var tests *coverage.Tests
	if files := root.AllFiles(); len(files) > 0 {
		tests = files[0].Tests()
	}
	if tests != nil {
		for _, id := range tests.IDs() {
			info, _ := tests.Get(id)
			index.Project.Tests = append(index.Project.Tests, testXML{
				Name:   id,
				Size:   string(info.Size),
				Result: int(info.Status),
				Status: info.Status.String(),
			})
		}
	}

	dir, err := r.directory(fs, sources, root, "/", target)
	if err != nil {
		return err
	}
	index.Project.Directory = dir

	out, err := encode(index)
	if err != nil {
		return err
	}
	return report.WriteFile(fs, filepath.Join(target, "index.xml"), out)
}

func (r Renderer) directory(fs, sources afero.Fs, d *node.Directory, name, target string) (directoryXML, error) {
	dx := directoryXML{Name: name, Totals: totals(d.Stats())}
	for _, sub := range d.Directories() {
		sx, err := r.directory(fs, sources, sub, sub.Name(), target)
		if err != nil {
			return dx, err
		}
		dx.Directories = append(dx.Directories, sx)
	}
	for _, f := range d.Files() {
		href := f.ID() + ".xml"
		dx.Files = append(dx.Files, fileRefXML{Name: f.Name(), Href: href, Totals: totals(f.Stats())})

		doc, err := r.file(sources, f)
		if err != nil {
			return dx, err
		}
		out, err := encode(doc)
		if err != nil {
			return dx, err
		}
		if err := report.WriteFile(fs, filepath.Join(target, filepath.FromSlash(href)), out); err != nil {
			return dx, err
		}
	}
	return dx, nil
}

func (r Renderer) file(sources afero.Fs, f *node.File) (fileDocXML, error) {
	dir := "/"
	if parent := f.Parent(); parent != nil && parent.Parent() != nil {
		dir = "/" + parent.ID()
	}
	fx := fileXML{Name: f.Name(), Path: dir, Totals: totals(f.Stats())}

	unit := func(c *node.Class) unitXML {
		u := unitXML{
			Name:       c.Name,
			Start:      c.StartLine,
			Executable: c.ExecutableLines,
			Executed:   c.ExecutedLines,
			Crap:       c.CRAP.String(),
			Namespace:  namespaceXML{Name: c.Namespace},
		}
		for _, m := range c.Methods {
			u.Methods = append(u.Methods, methodXML{
				Name:       m.Name,
				Signature:  m.Signature,
				Start:      m.StartLine,
				End:        m.EndLine,
				Crap:       m.CRAP.String(),
				Executable: m.ExecutableLines,
				Executed:   m.ExecutedLines,
				Coverage:   number(m.Coverage),
			})
		}
		return u
	}
	for _, c := range f.Classes() {
		fx.Classes = append(fx.Classes, unit(c))
	}
	for _, t := range f.Traits() {
		fx.Traits = append(fx.Traits, unit(t))
	}
	for _, fn := range f.Functions() {
		fx.Functions = append(fx.Functions, methodXML{
			Name:       fn.Name,
			Signature:  fn.Signature,
			Start:      fn.StartLine,
			End:        fn.EndLine,
			Crap:       fn.CRAP.String(),
			Executable: fn.ExecutableLines,
			Executed:   fn.ExecutedLines,
			Coverage:   number(fn.Coverage),
		})
	}

	lines := f.LineCoverage()
	for _, nr := range slices.Sorted(maps.Keys(lines)) {
		if lines[nr].Len() == 0 {
			continue
		}
		cl := coveredLineXML{Nr: nr}
		for _, id := range lines[nr].IDs {
			cl.Covered = append(cl.Covered, coveredXML{By: id})
		}
		fx.Coverage = append(fx.Coverage, cl)
	}

	src, err := afero.ReadFile(sources, f.Source())
	if err != nil {
		return fileDocXML{}, fmt.Errorf("%w: failed to read %s: %v", report.ErrWriteFailed, f.Source(), err)
	}
	for i, tokens := range analysis.TokenLines(src) {
		sl := sourceLineXML{No: i + 1}
		for _, t := range tokens {
			sl.Tokens = append(sl.Tokens, tokenXML{Name: t.PHPName(), Text: t.Text})
		}
		fx.Source = append(fx.Source, sl)
	}
	return fileDocXML{File: fx}, nil
}
