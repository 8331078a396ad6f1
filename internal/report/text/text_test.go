package text

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/user/phpcov/internal/node/nodetest"
)

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func padded(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%-23s\n", l)
	}
	return b.String()
}

func TestRender_Calc(t *testing.T) {
	got := Renderer{Time: fixed}.Render(nodetest.CalcTree(t))
	want := "\n\n" + padded(
		"Code Coverage Report:",
		"  2026-03-01 12:00:00",
		"",
		" Summary:",
		"  Classes:  0.00% (0/1)",
		"  Methods: 50.00% (1/2)",
		"  Lines:   50.00% (1/2)",
	) + "\nCalc\n  Methods:  50.00% ( 1/ 2)   Lines:  50.00% (  1/  2)\n"
	assert.Equal(t, want, got)
}

func TestRender_Summary(t *testing.T) {
	got := Renderer{ShowOnlySummary: true}.Render(nodetest.CalcTree(t))
	title := "Code Coverage Report Summary:"
	want := "\n\n"
	for _, l := range []string{title, "  Classes:  0.00% (0/1)", "  Methods: 50.00% (1/2)", "  Lines:   50.00% (1/2)"} {
		want += fmt.Sprintf("%-*s\n", len(title), l)
	}
	assert.Equal(t, want+"\n", got)
}

func TestRender_Project(t *testing.T) {
	tree := nodetest.ProjectTree(t)

	got := Renderer{Time: fixed}.Render(tree)
	assert.Contains(t, got, "  Paths:   50.00% (1/2)")
	assert.Contains(t, got, "  Branches:   50.00% (1/2)")
	assert.Contains(t, got, "\nCalc\n")
	// the trait never ran
	assert.NotContains(t, got, "Greets")

	got = Renderer{Time: fixed, ShowUncovered: true}.Render(tree)
	assert.Contains(t, got, "\nGreets\n  Methods:   0.00% ( 0/ 1)")
}

func TestRender_Colors(t *testing.T) {
	got := Renderer{Time: fixed, Colors: true}.Render(nodetest.CalcTree(t))
	assert.Contains(t, got, "\x1b[1;37;40mCode Coverage Report:")
	assert.Contains(t, got, "\x1b[37;41m  Lines:   50.00% (1/2)")

	got = Renderer{Time: fixed, Colors: true, LowUpperBound: 40, HighLowerBound: 60}.Render(nodetest.CalcTree(t))
	assert.Contains(t, got, "\x1b[30;43m  Lines:   50.00% (1/2)")

	got = Renderer{Time: fixed, Colors: true, LowUpperBound: 10, HighLowerBound: 50}.Render(nodetest.CalcTree(t))
	assert.Contains(t, got, "\x1b[30;42m  Methods: 50.00% (1/2)")
}
