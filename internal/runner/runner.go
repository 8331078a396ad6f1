// Package runner runs PHPUnit test files in parallel PHP processes and
// collects the coverage each process dumps.
package runner

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/driver"
)

// DumpDirEnv names the directory a PHP process exchanges coverage through
const DumpDirEnv = "PHPCOV_DUMP_DIR"

//go:embed prepend.php
var prependScript []byte

// ErrNoRuntime is returned when the probe process did not describe its runtime
var ErrNoRuntime = errors.New("php did not report its runtime; is the prepend script loaded?")

// Result holds the result of running a single test file
type Result struct {
	Test     Test
	Status   coverage.TestStatus
	Error    string
	Output   string
	Duration time.Duration
	DumpDir  string // The isolated dump directory used for this test
}

// Failed reports whether the test failed or errored
func (r Result) Failed() bool { return failed(r.Status) }

// FacadeFunc builds the facade one test collects into, applying opts. It
// is called once per test file, possibly from several goroutines.
type FacadeFunc func(d coverage.Driver, opts ...coverage.Option) (*coverage.CodeCoverage, error)

// Runner runs PHP test files with optional coverage
type Runner struct {
	Fs           afero.Fs
	Dir          string // working directory of the test processes
	PHP          string
	Command      []string
	Prepend      string // prepend script; phpcov writes its own when empty
	DumpDir      string
	Jobs         int
	Driver       string
	PathCoverage bool
	ShowOutput   bool
	Out          io.Writer // progress output
	Facade       FacadeFunc

	command func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// New creates a runner for the PHP binary php running command per test
func New(fs afero.Fs, php string, command []string) *Runner {
	return &Runner{
		Fs:      fs,
		PHP:     php,
		Command: command,
		DumpDir: ".phpcov",
		Jobs:    runtime.NumCPU(),
		Driver:  "auto",
		Out:     os.Stdout,
	}
}

func (r *Runner) exec(ctx context.Context, name string, arg ...string) *exec.Cmd {
	if r.command != nil {
		return r.command(ctx, name, arg...)
	}
	return exec.CommandContext(ctx, name, arg...)
}

func (r *Runner) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	dir := r.Dir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return filepath.Join(dir, p)
}

// prepend returns the prepend script, writing phpcov's own into the dump
// directory unless another one is configured
func (r *Runner) prepend() (string, error) {
	if r.Prepend != "" {
		return r.abs(r.Prepend), nil
	}
	dir := r.abs(r.DumpDir)
	if err := r.Fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dump directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, "prepend.php")
	if err := afero.WriteFile(r.Fs, path, prependScript, 0o644); err != nil {
		return "", fmt.Errorf("failed to write prepend script: %w", err)
	}
	return path, nil
}

// Probe starts one PHP process to learn which engines the runtime offers
func (r *Runner) Probe(ctx context.Context) ([]driver.EngineInfo, error) {
	script, err := r.prepend()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(r.abs(r.DumpDir), "probe")
	if err := r.Fs.RemoveAll(dir); err != nil {
		return nil, err
	}
	cmd := r.exec(ctx, r.PHP, "-d", "auto_prepend_file="+script, "-r", "")
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), DumpDirEnv+"="+dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("failed to run %s: %w\n%s", r.PHP, err, out)
	}

	engines, err := driver.OpenDumpEngines(r.Fs, dir)
	if err != nil {
		return nil, err
	}
	if len(engines) == 0 {
		return nil, ErrNoRuntime
	}
	infos := make([]driver.EngineInfo, 0, len(engines))
	for _, e := range engines {
		infos = append(infos, e.Info())
	}
	return infos, nil
}

// driverFor builds a driver exchanging data through dir
func (r *Runner) driverFor(infos []driver.EngineInfo, dir string) (coverage.Driver, error) {
	engines := make(driver.Engines, 0, len(infos))
	for _, info := range infos {
		engines = append(engines, driver.NewDumpEngine(r.Fs, dir, info))
	}
	if r.PathCoverage {
		return driver.ForLineAndPathCoverage(engines)
	}
	return driver.ByName(r.Driver, engines)
}

// RunTests runs all test files with coverage and merges what each of them
// collected into cc. Each test file gets its own isolated dump directory
// so that parallel processes never see each other's payloads. The files
// included in cc are analysed once up front and every per-test facade
// shares the caches of cc.
func (r *Runner) RunTests(ctx context.Context, cc *coverage.CodeCoverage, tests []Test) ([]Result, error) {
	if r.Facade == nil {
		return nil, errors.New("runner has no facade builder")
	}
	infos, err := r.Probe(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		slog.Debug("engine available", "name", info.Name, "version", info.Version, "loaded", info.Loaded)
	}
	script, err := r.prepend()
	if err != nil {
		return nil, err
	}
	if err := cc.Warm(ctx, r.Jobs); err != nil {
		return nil, fmt.Errorf("failed to analyse sources: %w", err)
	}
	shared := cc.SharedCaches()

	var mu sync.Mutex
	var merr error
	results := r.pool(len(tests), func(i int) Result {
		dir := filepath.Join(r.abs(r.DumpDir), fmt.Sprintf("%04d", i))
		result, local, err := r.collect(ctx, tests[i], infos, script, dir, shared)
		if err != nil {
			slog.Warn("coverage not collected", "test", tests[i].File, "error", err)
			if result.Error == "" {
				result.Error = err.Error()
			}
			return result
		}
		err = r.Fs.RemoveAll(dir)
		mu.Lock()
		defer mu.Unlock()
		cc.Merge(local)
		if err != nil && merr == nil {
			merr = err
		}
		return result
	})
	return results, merr
}

// RunTestsWithoutCoverage runs tests without loading any prepend script
func (r *Runner) RunTestsWithoutCoverage(ctx context.Context, tests []Test) []Result {
	return r.pool(len(tests), func(i int) Result {
		return r.runSingleTest(ctx, tests[i], nil, "")
	})
}

// pool runs n jobs on r.Jobs workers and prints progress
func (r *Runner) pool(n int, run func(i int) Result) []Result {
	results := make([]Result, n)
	total := n
	workers := r.Jobs
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var completed, passed int
	var wg sync.WaitGroup
	var mu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result := run(i)
				mu.Lock()
				results[i] = result
				completed++
				if !result.Failed() {
					passed++
				}
				// every 10 tests and the last one
				if completed%10 == 0 || completed == total {
					fmt.Fprintf(out, "\rProgress: %d/%d tests completed (%d passed, %d failed)   ",
						completed, total, passed, completed-passed)
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	if total > 0 {
		fmt.Fprintln(out)
	}
	return results
}

// collect runs one test between Start and Stop of a fresh facade
func (r *Runner) collect(ctx context.Context, t Test, infos []driver.EngineInfo, script, dir string, opts []coverage.Option) (Result, *coverage.CodeCoverage, error) {
	d, err := r.driverFor(infos, dir)
	if err != nil {
		return r.runSingleTest(ctx, t, nil, ""), nil, err
	}
	cc, err := r.Facade(d, opts...)
	if err != nil {
		return Result{Test: t, Status: coverage.StatusError}, nil, err
	}
	if err := cc.Start(t.ID, false); err != nil {
		return Result{Test: t, Status: coverage.StatusError}, nil, err
	}

	result := r.runSingleTest(ctx, t, &script, dir)
	if _, err := cc.StopWithTargets(true, t.Targets); err != nil {
		return result, nil, err
	}
	cc.UpdateTest(t.ID, coverage.TestInfo{Size: t.Size, Status: result.Status, Duration: result.Duration})
	return result, cc, nil
}

func (r *Runner) runSingleTest(ctx context.Context, t Test, script *string, dumpDir string) Result {
	start := time.Now()

	args := []string{}
	if script != nil {
		args = append(args, "-d", "auto_prepend_file="+*script)
	}
	args = append(args, r.Command...)
	args = append(args, r.abs(t.File))

	cmd := r.exec(ctx, r.PHP, args...)
	cmd.Dir = r.Dir
	cmd.Env = os.Environ()
	if dumpDir != "" {
		cmd.Env = append(cmd.Env, DumpDirEnv+"="+dumpDir)
	}

	var stdout, stderr bytes.Buffer
	if r.ShowOutput {
		// Stream output to terminal while also capturing it
		cmd.Stdout = io.MultiWriter(os.Stdout, &stdout)
		cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	result := Result{
		Test:     t,
		Duration: time.Since(start),
		Output:   stdout.String(),
		DumpDir:  dumpDir,
		Status:   classify(stdout.String(), err == nil),
	}
	if result.Failed() {
		result.Error = stderr.String()
		if result.Error == "" {
			result.Error = stdout.String()
		}
		if result.Error == "" && err != nil {
			result.Error = err.Error()
		}
	}
	slog.Debug("test finished", "file", t.File, "status", result.Status.String(), "duration", result.Duration)
	return result
}
