package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/runner"
)

func (a *app) runCommand() *cobra.Command {
	var noRerunFailed bool
	cmd := &cobra.Command{
		Use:   "run [test-files-or-directories...]",
		Short: "Run tests with coverage and write the reports",
		Long: `Run every PHPUnit test file in its own PHP process with coverage and
merge the results into one report.

If no test files or directories are given, the runner.tests setting is
searched for files ending in runner.test_suffix (tests/**/*Test.php).

By default, failed tests are rerun without coverage to detect failures
caused by the coverage engine. Use --no-rerun-failed to disable.`,
		Example: `  phpcov run                          # Run all tests in tests/
  phpcov run -j 4                     # Run tests with 4 parallel jobs
  phpcov run --driver pcov            # Force the PCOV engine
  phpcov run --path-coverage --html build/coverage
  phpcov run tests/Unit/FooTest.php   # Run specific test files`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCoverage(cmd.OutOrStdout(), cmd, args, noRerunFailed)
		},
	}
	f := cmd.Flags()
	f.IntP("jobs", "j", 0, "number of parallel test jobs (default is the number of CPUs)")
	f.String("php", "php", "path to the php executable")
	f.String("dump-dir", ".phpcov", "directory PHP processes dump coverage into")
	f.String("prepend", "", "prepend script to load instead of phpcov's own")
	f.Bool("show-output", false, "show test output during execution")
	f.String("driver", "auto", "coverage engine: auto, xdebug, pcov or phpdbg")
	f.Bool("path-coverage", false, "collect branch and path coverage (Xdebug only)")
	f.String("cache-dir", "", "cache static analysis results in `dir`")
	f.BoolVar(&noRerunFailed, "no-rerun-failed", false, "do not rerun failed tests without coverage")
	reportFlags(cmd)
	return cmd
}

func (a *app) runCoverage(out io.Writer, cmd *cobra.Command, args []string, noRerunFailed bool) error {
	rc := a.cfg.Runner
	if len(args) == 0 {
		args = rc.Tests
	}
	paths := make([]string, len(args))
	for i, p := range args {
		paths[i] = a.path(p)
	}

	testFiles, err := runner.Discover(a.fs, paths, rc.TestSuffix)
	if err != nil {
		return fmt.Errorf("failed to discover tests: %w", err)
	}
	if len(testFiles) == 0 {
		return fmt.Errorf("no test files found")
	}
	fmt.Fprintf(out, "Found %d test files\n", len(testFiles))

	tests, err := runner.LoadAll(a.fs, testFiles)
	if err != nil {
		return err
	}

	// Clean dumps left over from previous runs
	if err := a.fs.RemoveAll(a.path(rc.DumpDir)); err != nil {
		return fmt.Errorf("failed to clean dump directory: %w", err)
	}

	cc, err := a.facade(nil)
	if err != nil {
		return err
	}
	r := runner.New(a.fs, rc.PHP, rc.Command)
	r.Dir = a.dir
	r.Prepend = rc.Prepend
	r.DumpDir = rc.DumpDir
	r.Jobs = rc.Jobs
	r.Driver = a.cfg.Coverage.Driver
	r.PathCoverage = a.cfg.Coverage.PathCoverage
	r.ShowOutput = rc.ShowOutput
	r.Out = out
	// per-test facades start from the sources of cc instead of walking
	// the tree again
	sources := cc.Filter().Clone()
	r.Facade = func(d coverage.Driver, opts ...coverage.Option) (*coverage.CodeCoverage, error) {
		return a.facadeOver(sources.Clone(), d, opts...)
	}

	results, err := r.RunTests(cmd.Context(), cc, tests)
	if err != nil {
		return err
	}
	printTestResults(out, a.dir, results)

	// Rerun by default to detect engine-related failures
	failedTests := getFailedTests(results)
	if len(failedTests) > 0 && !noRerunFailed {
		fmt.Fprintln(out, "\n--- Rerunning failed tests without coverage ---")
		rerunResults := r.RunTestsWithoutCoverage(cmd.Context(), failedTests)
		printRerunResults(out, a.dir, results, rerunResults)
	}

	fmt.Fprintln(out, "\n--- Coverage Report ---")
	root, err := a.writeReports(out, cc, buildInfo(a.cfg.Coverage.Driver))
	if err != nil {
		return err
	}

	// Summary
	s := root.Stats()
	passCount := len(results) - len(failedTests)
	fmt.Fprintf(out, "\n=== Summary ===\n")
	fmt.Fprintf(out, "Tests: %d passed, %d failed, %d total\n", passCount, len(failedTests), len(results))
	fmt.Fprintf(out, "Coverage: %.1f%% lines, %.1f%% methods", s.Lines().AsFloat(), s.TestedMethodsPercent().AsFloat())
	if s.ExecutableBranches > 0 {
		fmt.Fprintf(out, ", %.1f%% branches", s.Branches().AsFloat())
	}
	fmt.Fprintln(out)

	if len(failedTests) > 0 {
		return fmt.Errorf("%d test(s) failed", len(failedTests))
	}
	return nil
}

func printTestResults(out io.Writer, dir string, results []runner.Result) {
	fmt.Fprintln(out, "\n--- Test Results ---")
	for _, r := range results {
		status := "✓"
		switch {
		case r.Failed():
			status = "✗"
		case r.Status != coverage.StatusPassed:
			status = "-"
		}
		fmt.Fprintf(out, "%s %s (%.2fs)\n", status, relative(dir, r.Test.File), r.Duration.Seconds())
		if r.Failed() && r.Error != "" {
			// Show first few lines of error
			lines := strings.Split(strings.TrimRight(r.Error, "\n"), "\n")
			for i, line := range lines {
				if i >= 5 {
					fmt.Fprintf(out, "      ... (%d more lines)\n", len(lines)-5)
					break
				}
				fmt.Fprintf(out, "      %s\n", line)
			}
		}
	}
}

func getFailedTests(results []runner.Result) []runner.Test {
	var failed []runner.Test
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r.Test)
		}
	}
	return failed
}

func printRerunResults(out io.Writer, dir string, original, rerun []runner.Result) {
	// Create map for quick lookup
	originalFailed := make(map[string]bool)
	for _, r := range original {
		originalFailed[r.Test.File] = r.Failed()
	}

	fmt.Fprintln(out, "\n--- Rerun Results (without coverage) ---")
	for _, r := range rerun {
		name := relative(dir, r.Test.File)
		switch {
		case !r.Failed() && originalFailed[r.Test.File]:
			fmt.Fprintf(out, "⚠️  %s: PASSED without coverage (coverage-related failure)\n", name)
		case r.Failed() && originalFailed[r.Test.File]:
			fmt.Fprintf(out, "✗ %s: Still FAILED (genuine test failure)\n", name)
		default:
			fmt.Fprintf(out, "? %s: Unexpected state\n", name)
		}
	}
}

func relative(dir, p string) string {
	if rel, ok := strings.CutPrefix(p, dir+"/"); ok {
		return rel
	}
	return p
}
