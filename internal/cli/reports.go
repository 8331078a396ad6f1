package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/report/clover"
	"github.com/user/phpcov/internal/report/cobertura"
	"github.com/user/phpcov/internal/report/crap4j"
	"github.com/user/phpcov/internal/report/html"
	"github.com/user/phpcov/internal/report/phpunit"
	"github.com/user/phpcov/internal/report/serialized"
	"github.com/user/phpcov/internal/report/text"
)

// reportFlags adds the flags selecting reports to cmd
func reportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("text", true, "print the text report")
	f.Bool("colors", false, "colorize the text report")
	f.Bool("show-uncovered", false, "list classes without coverage in the text report")
	f.Bool("summary-only", false, "print only the summary of the text report")
	f.String("clover", "", "write a Clover XML report to `file`")
	f.String("cobertura", "", "write a Cobertura XML report to `file`")
	f.String("crap4j", "", "write a Crap4j XML report to `file`")
	f.Int("crap4j-threshold", crap4j.DefaultThreshold, "CRAP threshold of the Crap4j report")
	f.String("html", "", "write an HTML report into `dir`")
	f.String("xml", "", "write a PHPUnit XML report into `dir`")
	f.String("serialized", "", "write a snapshot for later merging to `file`")
}

// writeReports renders every configured report of cc. The text report goes
// to out, all others to the filesystem.
func (a *app) writeReports(out io.Writer, cc *coverage.CodeCoverage, build phpunit.BuildInfo) (*node.Directory, error) {
	rc := a.cfg.Report
	now := time.Now()

	if rc.Serialized != "" {
		if err := (serialized.Writer{Time: now}).Write(a.fs, cc, a.path(rc.Serialized)); err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Snapshot written to %s\n", rc.Serialized)
	}

	root, err := node.Build(cc)
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}

	files := []struct {
		name   string
		target string
		write  func(target string) error
	}{
		{"Clover", rc.Clover, func(t string) error {
			return clover.Renderer{Name: rc.Name, Time: now}.Write(a.fs, root, t)
		}},
		{"Cobertura", rc.Cobertura, func(t string) error {
			return cobertura.Renderer{Time: now}.Write(a.fs, root, t)
		}},
		{"Crap4j", rc.Crap4j, func(t string) error {
			return crap4j.Renderer{Threshold: rc.Crap4jThreshold, Name: rc.Name, Time: now}.Write(a.fs, root, t)
		}},
		{"HTML", rc.HTML, func(t string) error {
			return html.Renderer{
				Generator:      "phpcov " + Version,
				LowUpperBound:  rc.LowUpperBound,
				HighLowerBound: rc.HighLowerBound,
				Time:           now,
				Sources:        cc.Filter().Fs(),
			}.Write(a.fs, root, t)
		}},
		{"XML", rc.XML, func(t string) error {
			build.Time = now
			build.Version = Version
			return phpunit.Renderer{Build: build, Sources: cc.Filter().Fs()}.Write(a.fs, root, t)
		}},
	}
	for _, f := range files {
		if f.target == "" {
			continue
		}
		start := time.Now()
		if err := f.write(a.path(f.target)); err != nil {
			return nil, fmt.Errorf("failed to write %s report: %w", f.name, err)
		}
		fmt.Fprintf(out, "Generating code coverage report in %s format ... done [%s]\n", f.name, time.Since(start).Round(time.Millisecond))
	}

	if rc.Text {
		fmt.Fprint(out, text.Renderer{
			LowUpperBound:   rc.LowUpperBound,
			HighLowerBound:  rc.HighLowerBound,
			ShowUncovered:   rc.ShowUncovered,
			ShowOnlySummary: rc.SummaryOnly,
			Colors:          rc.Colors,
			Time:            now,
		}.Render(root))
	}
	return root, nil
}

// buildInfo describes the run for the XML report. The runtime is phpcov
// itself since the PHP processes are gone by the time reports are written.
func buildInfo(driverName string) phpunit.BuildInfo {
	return phpunit.BuildInfo{
		RuntimeName:    "Go",
		RuntimeVersion: strings.TrimPrefix(runtime.Version(), "go"),
		RuntimeURL:     "https://go.dev/",
		DriverName:     driverName,
	}
}
