// Package html writes a browsable HTML report: one index page per
// directory and one page per source file.
package html

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/analysis"
	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/report"
)

//go:embed templates
var assets embed.FS

var pages = template.Must(template.New("").ParseFS(assets, "templates/*.html.tmpl"))

// Default coverage bounds for the cell colors
const (
	DefaultLowUpperBound  = 50
	DefaultHighLowerBound = 90
)

// Renderer writes the report into a directory. Sources is where source
// files are read from; nil means the output filesystem.
type Renderer struct {
	Generator      string
	LowUpperBound  float64
	HighLowerBound float64
	Time           time.Time
	Sources        afero.Fs
}

type crumb struct {
	Name string
	Href string
}

type cell struct {
	Percent  string
	Fraction string
	Level    string
	Width    string
}

type row struct {
	Name    string
	Href    string
	Dir     bool
	Lines   cell
	Methods cell
	Classes cell
}

type page struct {
	Title     string
	Root      string
	Crumbs    []crumb
	Generator string
	Date      string
	Low       float64
	High      float64
}

type directoryPage struct {
	Page page
	Rows []row
}

type unitRow struct {
	Name   string
	Href   string
	Indent bool
	Lines  cell
	Units  cell
	CRAP   string
}

type sourceLine struct {
	No    int
	Level string
	Code  template.HTML
	Tests []testRef
}

type testRef struct {
	ID     string
	Status string
}

type filePage struct {
	Page  page
	Total row
	Units []unitRow
	Lines []sourceLine
}

func (r Renderer) bounds() (float64, float64) {
	low, high := r.LowUpperBound, r.HighLowerBound
	if low == 0 {
		low = DefaultLowUpperBound
	}
	if high == 0 {
		high = DefaultHighLowerBound
	}
	return low, high
}

func (r Renderer) level(p node.Percentage) string {
	if p.Total == 0 {
		return ""
	}
	low, high := r.bounds()
	switch v := p.AsFloat(); {
	case v >= high:
		return "success"
	case v > low:
		return "warning"
	default:
		return "danger"
	}
}

func (r Renderer) cell(p node.Percentage) cell {
	if p.Total == 0 {
		return cell{Percent: "n/a", Fraction: "0 / 0"}
	}
	return cell{
		Percent:  p.AsString(),
		Fraction: fmt.Sprintf("%d / %d", p.Fraction, p.Total),
		Level:    r.level(p),
		Width:    fmt.Sprintf("%.2f", p.AsFloat()),
	}
}

func (r Renderer) row(n node.Node, href string) row {
	s := n.Stats()
	_, dir := n.(*node.Directory)
	return row{
		Name:    n.Name(),
		Href:    href,
		Dir:     dir,
		Lines:   r.cell(s.Lines()),
		Methods: r.cell(s.TestedFunctionsAndMethodsPercent()),
		Classes: r.cell(s.TestedClassesAndTraitsPercent()),
	}
}

// relative prefix from the page of n to the report root
func rootPrefix(n node.Node) string {
	depth := len(n.PathAsArray()) - 1
	if _, ok := n.(*node.Directory); !ok {
		depth--
	}
	return strings.Repeat("../", depth)
}

func (r Renderer) page(n node.Node) page {
	low, high := r.bounds()
	prefix := rootPrefix(n)
	var crumbs []crumb
	trail := n.PathAsArray()
	for i, step := range trail {
		c := crumb{Name: step.Name()}
		if i < len(trail)-1 {
			c.Href = prefix + indexPage(step)
		}
		crumbs = append(crumbs, c)
	}
	return page{
		Title:     n.PathAsString(),
		Root:      prefix,
		Crumbs:    crumbs,
		Generator: r.Generator,
		Date:      report.Time(r.Time).Format(time.RFC1123),
		Low:       low,
		High:      high,
	}
}

func indexPage(n node.Node) string {
	if n.Parent() == nil {
		return "index.html"
	}
	return n.ID() + "/index.html"
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
	css, err := assets.ReadFile("templates/style.css")
	if err != nil {
		return err
	}
	if err := report.WriteFile(fs, filepath.Join(target, "_css", "style.css"), css); err != nil {
		return err
	}
	return r.directory(fs, sources, root, target)
}

func (r Renderer) directory(fs, sources afero.Fs, d *node.Directory, target string) error {
	data := directoryPage{Page: r.page(d)}
	data.Rows = append(data.Rows, r.row(d, ""))
	data.Rows[0].Name = "Total"
	for _, sub := range d.Directories() {
		data.Rows = append(data.Rows, r.row(sub, sub.Name()+"/index.html"))
		if err := r.directory(fs, sources, sub, target); err != nil {
			return err
		}
	}
	for _, f := range d.Files() {
		data.Rows = append(data.Rows, r.row(f, f.Name()+".html"))
		if err := r.file(fs, sources, f, target); err != nil {
			return err
		}
	}
	return r.execute(fs, "directory.html.tmpl", data, filepath.Join(target, filepath.FromSlash(indexPage(d))))
}

func (r Renderer) file(fs, sources afero.Fs, f *node.File, target string) error {
	data := filePage{Page: r.page(f), Total: r.row(f, "")}
	data.Total.Name = "Total"

	base := path.Base(f.ID()) + ".html"
	for _, c := range slices.Concat(f.Classes(), f.Traits()) {
		data.Units = append(data.Units, unitRow{
			Name:  c.Name,
			Href:  base + "#" + fmt.Sprint(c.StartLine),
			Lines: r.cell(node.Percentage{Fraction: c.ExecutedLines, Total: c.ExecutableLines}),
			Units: r.cell(testedMethods(c)),
			CRAP:  c.CRAP.String(),
		})
		for _, m := range c.Methods {
			tested := 0
			if m.Tested() {
				tested = 1
			}
			data.Units = append(data.Units, unitRow{
				Name:   m.Signature,
				Href:   base + "#" + fmt.Sprint(m.StartLine),
				Indent: true,
				Lines:  r.cell(node.Percentage{Fraction: m.ExecutedLines, Total: m.ExecutableLines}),
				Units:  r.cell(node.Percentage{Fraction: tested, Total: min(m.ExecutableLines, 1)}),
				CRAP:   m.CRAP.String(),
			})
		}
	}
	for _, fn := range f.Functions() {
		tested := 0
		if fn.Tested() {
			tested = 1
		}
		data.Units = append(data.Units, unitRow{
			Name:  fn.Signature,
			Href:  base + "#" + fmt.Sprint(fn.StartLine),
			Lines: r.cell(node.Percentage{Fraction: fn.ExecutedLines, Total: fn.ExecutableLines}),
			Units: r.cell(node.Percentage{Fraction: tested, Total: min(fn.ExecutableLines, 1)}),
			CRAP:  fn.CRAP.String(),
		})
	}

	src, err := afero.ReadFile(sources, f.Source())
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", report.ErrWriteFailed, f.Source(), err)
	}
	coverageData := f.LineCoverage()
	for i, tokens := range analysis.TokenLines(src) {
		line := sourceLine{No: i + 1, Code: highlight(tokens)}
		if lt, ok := coverageData[line.No]; ok && lt != nil {
			line.Level = lineLevel(f.Tests(), lt)
			for _, id := range lt.IDs {
				ref := testRef{ID: id, Status: "unknown"}
				if info, ok := f.Tests().Get(id); ok {
					ref.Status = info.Status.String()
				}
				line.Tests = append(line.Tests, ref)
			}
		}
		data.Lines = append(data.Lines, line)
	}
	return r.execute(fs, "file.html.tmpl", data, filepath.Join(target, filepath.FromSlash(f.ID())+".html"))
}

func (r Renderer) execute(fs afero.Fs, name string, data any, target string) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("%w: %s: %v", report.ErrWriteFailed, target, err)
	}
	return report.WriteFile(fs, target, buf.Bytes())
}

func testedMethods(c *node.Class) node.Percentage {
	var p node.Percentage
	for _, m := range c.Methods {
		if m.ExecutableLines == 0 {
			continue
		}
		p.Total++
		if m.Tested() {
			p.Fraction++
		}
	}
	return p
}

// lineLevel names the smallest test size that executed a line
func lineLevel(tests *coverage.Tests, lt *coverage.LineTests) string {
	if lt.Len() == 0 {
		return "danger"
	}
	level := "covered-by-large-tests"
	for _, id := range lt.IDs {
		info, _ := tests.Get(id)
		switch info.Size {
		case coverage.SizeSmall:
			return "covered-by-small-tests"
		case coverage.SizeMedium:
			level = "covered-by-medium-tests"
		}
	}
	return level
}

var tokenClass = map[analysis.Kind]string{
	analysis.Keyword:    "keyword",
	analysis.Variable:   "variable",
	analysis.String:     "string",
	analysis.Number:     "number",
	analysis.Comment:    "comment",
	analysis.DocComment: "comment",
	analysis.InlineHTML: "html",
	analysis.OpenTag:    "keyword",
	analysis.CloseTag:   "keyword",
}

func highlight(tokens []analysis.Token) template.HTML {
	var b strings.Builder
	for _, t := range tokens {
		text := template.HTMLEscapeString(t.Text)
		if class, ok := tokenClass[t.Kind]; ok {
			fmt.Fprintf(&b, `<span class="%s">%s</span>`, class, text)
			continue
		}
		b.WriteString(text)
	}
	return template.HTML(b.String())
}
