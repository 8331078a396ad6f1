// Package text prints the console coverage summary with optional per-class
// lines and ANSI colors.
package text

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/report"
)

// Default coverage bounds for colors
const (
	DefaultLowUpperBound  = 50
	DefaultHighLowerBound = 90
)

var (
	green  = forced(color.FgBlack, color.BgGreen)
	yellow = forced(color.FgBlack, color.BgYellow)
	red    = forced(color.FgWhite, color.BgRed)
	header = forced(color.Bold, color.FgWhite, color.BgBlack)
)

func forced(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// Renderer prints the report. Zero bounds fall back to the defaults.
type Renderer struct {
	LowUpperBound   float64
	HighLowerBound  float64
	ShowUncovered   bool
	ShowOnlySummary bool
	Colors          bool
	Time            time.Time
}

type summaryLine struct {
	text   string
	colour *color.Color
}

type classCoverage struct {
	methods, testedMethods     int
	lines, executedLines       int
	branches, executedBranches int
	paths, executedPaths       int
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

func (r Renderer) colorFor(covered, total int) *color.Color {
	if !r.Colors {
		return nil
	}
	low, high := r.bounds()
	p := node.Percentage{Fraction: covered, Total: total}.AsFloat()
	switch {
	case p >= high:
		return green
	case p > low:
		return yellow
	default:
		return red
	}
}

func paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

func line(c *color.Color, padding int, s string) string {
	return paint(c, fmt.Sprintf("%-*s", padding, s)) + "\n"
}

func counts(covered, total, width int) string {
	return fmt.Sprintf("%s (%*d/%*d)", node.Percentage{Fraction: covered, Total: total}.AsFixedWidthString(), width, covered, width, total)
}

// Render returns the report for root
func (r Renderer) Render(root *node.Directory) string {
	s := root.Stats()
	branches := s.ExecutableBranches > 0 || s.ExecutablePaths > 0
	var h *color.Color
	if r.Colors {
		h = header
	}

	summary := []summaryLine{
		{fmt.Sprintf("  Classes: %6s (%d/%d)", s.TestedClassesAndTraitsPercent().AsString(), s.TestedClasses+s.TestedTraits, s.Classes+s.Traits),
			r.colorFor(s.TestedClasses+s.TestedTraits, s.Classes+s.Traits)},
		{fmt.Sprintf("  Methods: %6s (%d/%d)", s.TestedMethodsPercent().AsString(), s.TestedMethods, s.Methods),
			r.colorFor(s.TestedMethods, s.Methods)},
	}
	if branches {
		summary = append(summary,
			summaryLine{fmt.Sprintf("  Paths:   %6s (%d/%d)", s.Paths().AsString(), s.ExecutedPaths, s.ExecutablePaths),
				r.colorFor(s.ExecutedPaths, s.ExecutablePaths)},
			summaryLine{fmt.Sprintf("  Branches:   %6s (%d/%d)", s.Branches().AsString(), s.ExecutedBranches, s.ExecutableBranches),
				r.colorFor(s.ExecutedBranches, s.ExecutableBranches)},
		)
	}
	summary = append(summary, summaryLine{fmt.Sprintf("  Lines:   %6s (%d/%d)", s.Lines().AsString(), s.ExecutedLines, s.ExecutableLines),
		r.colorFor(s.ExecutedLines, s.ExecutableLines)})

	padding := 0
	for _, l := range summary {
		padding = max(padding, len(l.text))
	}

	var b strings.Builder
	b.WriteString("\n\n")
	if r.ShowOnlySummary {
		title := "Code Coverage Report Summary:"
		padding = max(padding, len(title))
		b.WriteString(line(h, padding, title))
	} else {
		b.WriteString(line(h, padding, "Code Coverage Report:"))
		b.WriteString(line(h, padding, "  "+report.Time(r.Time).Format(time.DateTime)))
		b.WriteString(line(h, padding, ""))
		b.WriteString(line(h, padding, " Summary:"))
	}
	for _, l := range summary {
		b.WriteString(line(l.colour, padding, l.text))
	}
	if r.ShowOnlySummary {
		b.WriteString("\n")
		return b.String()
	}

	classes := make(map[string]classCoverage)
	for _, f := range root.AllFiles() {
		for _, c := range append(slices.Clone(f.Classes()), f.Traits()...) {
			var cc classCoverage
			for _, m := range c.Methods {
				if m.ExecutableLines == 0 {
					continue
				}
				cc.methods++
				cc.lines += m.ExecutableLines
				cc.executedLines += m.ExecutedLines
				cc.branches += m.ExecutableBranches
				cc.executedBranches += m.ExecutedBranches
				cc.paths += m.ExecutablePaths
				cc.executedPaths += m.ExecutedPaths
				if m.Coverage == 100 {
					cc.testedMethods++
				}
			}
			name := c.Name
			if c.Namespace != "" {
				name = `\` + c.Namespace + "::" + c.Name
			}
			classes[name] = cc
		}
	}

	for _, name := range slices.Sorted(maps.Keys(classes)) {
		cc := classes[name]
		if !r.ShowUncovered && cc.executedLines == 0 {
			continue
		}
		b.WriteString("\n" + name + "\n")
		b.WriteString("  " + paint(r.colorFor(cc.testedMethods, cc.methods), "Methods: "+counts(cc.testedMethods, cc.methods, 2)) + " ")
		if branches {
			b.WriteString("  " + paint(r.colorFor(cc.executedPaths, cc.paths), "Paths: "+counts(cc.executedPaths, cc.paths, 3)) + " ")
			b.WriteString("  " + paint(r.colorFor(cc.executedBranches, cc.branches), "Branches: "+counts(cc.executedBranches, cc.branches, 3)) + " ")
		}
		b.WriteString("  " + paint(r.colorFor(cc.executedLines, cc.lines), "Lines: "+counts(cc.executedLines, cc.lines, 3)))
	}
	b.WriteString("\n")
	return b.String()
}

// Write renders root into the file target
func (r Renderer) Write(fs afero.Fs, root *node.Directory, target string) error {
	return report.WriteFile(fs, target, []byte(r.Render(root)))
}
