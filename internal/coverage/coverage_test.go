package coverage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/target"
)

const calcFile = "/src/Calc.php"

const calcSource = `<?php
class Calc
{
    public function add($a, $b)
    {
        return $a + $b;
    }

    public function sub($a, $b)
    {
        return $a - $b;
    }
}
`

const helperFile = "/src/helpers.php"

const helperSource = `<?php
function twice($x)
{
    return $x * 2;
}
`

// stubDriver replays prepared raw data, one per Stop
type stubDriver struct {
	runs    []*RawData
	started int
	stopped int
	branch  bool
}

func (d *stubDriver) Name() string { return "stub" }
func (d *stubDriver) Start() error { d.started++; return nil }
func (d *stubDriver) Stop() (*RawData, error) {
	d.stopped++
	if len(d.runs) == 0 {
		return FromXdebugWithoutPathCoverage(nil), nil
	}
	r := d.runs[0]
	d.runs = d.runs[1:]
	return r, nil
}
func (d *stubDriver) CanCollectBranchAndPathCoverage() bool { return false }
func (d *stubDriver) CollectsBranchAndPathCoverage() bool   { return d.branch }
func (d *stubDriver) EnableBranchAndPathCoverage() error {
	return ErrBranchAndPathCoverageNotSupported
}
func (d *stubDriver) DisableBranchAndPathCoverage()  {}
func (d *stubDriver) CanDetectDeadCode() bool        { return false }
func (d *stubDriver) DetectsDeadCode() bool          { return false }
func (d *stubDriver) EnableDeadCodeDetection() error { return ErrDeadCodeDetectionNotSupported }
func (d *stubDriver) DisableDeadCodeDetection()      {}

func calcRun(lines map[int]LineStatus) *RawData {
	return FromXdebugWithoutPathCoverage(map[string]map[int]LineStatus{calcFile: lines})
}

// addCalled is what an engine reports when only Calc::add ran
func addCalled() *RawData {
	return calcRun(map[int]LineStatus{6: LineExecuted, 7: LineExecuted, 11: LineNotExecuted, 12: LineNotExecuted})
}

func newFacade(t *testing.T, runs ...*RawData) (*CodeCoverage, *stubDriver) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, calcFile, []byte(calcSource), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, helperFile, []byte(helperSource), 0o644); err != nil {
		t.Fatal(err)
	}
	filter := NewFilter(fs)
	filter.IncludeFiles([]string{calcFile, helperFile})
	driver := &stubDriver{runs: runs}
	return New(driver, filter), driver
}

func lineIDs(t *testing.T, c *CodeCoverage, file string, line int) []string {
	t.Helper()
	data, err := c.Data(true)
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	lt, ok := data.LineCoverage()[file][line]
	if !ok {
		t.Fatalf("%s:%d not in data", file, line)
	}
	if lt == nil {
		return nil
	}
	return lt.IDs
}

func TestCodeCoverage_StartStop(t *testing.T) {
	c, driver := newFacade(t, addCalled())
	if err := c.Start("CalcTest::testAdd", true); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.CurrentID() != "CalcTest::testAdd" {
		t.Errorf("CurrentID() = %q", c.CurrentID())
	}
	if _, err := c.Stop(true, Scope{}); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if driver.started != 1 || driver.stopped != 1 {
		t.Errorf("driver started %d stopped %d, want 1 and 1", driver.started, driver.stopped)
	}
	if c.CurrentID() != "" {
		t.Errorf("CurrentID() after Stop = %q, want empty", c.CurrentID())
	}

	tests := []struct {
		line int
		want []string
	}{
		{6, []string{"CalcTest::testAdd"}},
		{7, []string{"CalcTest::testAdd"}},
		{11, []string{}},
		{12, []string{}},
	}
	for _, tt := range tests {
		got := lineIDs(t, c, calcFile, tt.line)
		if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("line %d = %v, want %v", tt.line, got, tt.want)
		}
	}
	if info, ok := c.Tests().Get("CalcTest::testAdd"); !ok || info.Status != StatusUnknown {
		t.Errorf("ledger entry = %+v, %v", info, ok)
	}
}

func TestCodeCoverage_StartWhileCollecting(t *testing.T) {
	c, driver := newFacade(t)
	if err := c.Start("A", false); err != nil {
		t.Fatal(err)
	}
	if err := c.Start("A", false); err != nil {
		t.Errorf("Start() for the same id error = %v, want nil", err)
	}
	if err := c.Start("B", false); !errors.Is(err, ErrAlreadyCollecting) {
		t.Errorf("Start() for another id error = %v, want ErrAlreadyCollecting", err)
	}
	if driver.started != 1 {
		t.Errorf("driver started %d times, want 1", driver.started)
	}
}

func TestCodeCoverage_AppendWithoutID(t *testing.T) {
	c, _ := newFacade(t)
	if err := c.Append(addCalled(), "", true, Scope{}); !errors.Is(err, ErrTestIDMissing) {
		t.Errorf("Append() error = %v, want ErrTestIDMissing", err)
	}
	if _, err := c.Stop(true, Scope{}); !errors.Is(err, ErrTestIDMissing) {
		t.Errorf("Stop() without Start error = %v, want ErrTestIDMissing", err)
	}
	if err := New(nil, c.Filter()).Start("x", false); !errors.Is(err, ErrNoDriver) {
		t.Errorf("Start() without driver error = %v, want ErrNoDriver", err)
	}
}

func TestCodeCoverage_StopWithoutAppend(t *testing.T) {
	second := FromXdebugWithoutPathCoverage(map[string]map[int]LineStatus{
		calcFile:   {6: LineExecuted, 11: LineExecuted},
		helperFile: {4: LineExecuted},
	})
	c, _ := newFacade(t, addCalled(), second)

	if err := c.Start("first", false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Stop(true, Scope{}); err != nil {
		t.Fatal(err)
	}
	before, _ := c.Data(true)

	if err := c.Start("second", false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Stop(false, Scope{}); err != nil {
		t.Fatal(err)
	}
	after, _ := c.Data(true)

	if !reflect.DeepEqual(before.LineCoverage(), after.LineCoverage()) {
		t.Errorf("data changed by Stop(false): before %v, after %v", before.LineCoverage(), after.LineCoverage())
	}
	if _, ok := c.Tests().Get("second"); ok {
		t.Error("ledger records a test stopped without append")
	}
}

func TestCodeCoverage_IgnoredAndMissingFiles(t *testing.T) {
	raw := FromXdebugWithoutPathCoverage(map[string]map[int]LineStatus{
		calcFile:          {1: LineExecuted, 2: LineExecuted, 6: LineExecuted, 8: LineExecuted},
		"/src/gone.php":   {1: LineExecuted},
		"/vendor/lib.php": {1: LineExecuted},
	})
	c, _ := newFacade(t)
	if err := c.Append(raw, "T", true, Scope{}); err != nil {
		t.Fatal(err)
	}
	data, _ := c.Data(true)
	if got := data.CoveredFiles(); !reflect.DeepEqual(got, []string{calcFile}) {
		t.Errorf("CoveredFiles() = %v, want only %s", got, calcFile)
	}
	lines := data.LineCoverage()[calcFile]
	for _, l := range []int{1, 2, 8} {
		if _, ok := lines[l]; ok {
			t.Errorf("ignored line %d kept", l)
		}
	}

	// with annotations disabled ignored lines are kept
	c, _ = newFacade(t)
	c.DisableAnnotationsForIgnoringCode()
	raw = calcRun(map[int]LineStatus{2: LineExecuted, 6: LineExecuted})
	if err := c.Append(raw, "T", true, Scope{}); err != nil {
		t.Fatal(err)
	}
	if got := lineIDs(t, c, calcFile, 2); !reflect.DeepEqual(got, []string{"T"}) {
		t.Errorf("line 2 = %v, want [T]", got)
	}
}

func TestCodeCoverage_Scope(t *testing.T) {
	t.Run("covered lines only", func(t *testing.T) {
		c, _ := newFacade(t, addCalled())
		raw := FromXdebugWithoutPathCoverage(map[string]map[int]LineStatus{
			calcFile:   {6: LineExecuted, 11: LineExecuted},
			helperFile: {4: LineExecuted},
		})
		scope := Scope{Covered: map[string][]int{calcFile: {4, 5, 6, 7}}}
		if err := c.Append(raw, "T", true, scope); err != nil {
			t.Fatal(err)
		}
		if got := lineIDs(t, c, calcFile, 6); !reflect.DeepEqual(got, []string{"T"}) {
			t.Errorf("line 6 = %v, want [T]", got)
		}
		if got := lineIDs(t, c, calcFile, 11); len(got) != 0 {
			t.Errorf("line 11 = %v, want no tests outside the scope", got)
		}
		if got := lineIDs(t, c, helperFile, 4); len(got) != 0 {
			t.Errorf("helper line 4 = %v, want no tests", got)
		}
	})

	t.Run("covers nothing", func(t *testing.T) {
		c, _ := newFacade(t)
		if err := c.Append(addCalled(), "T", true, Scope{CoversNothing: true}); err != nil {
			t.Fatal(err)
		}
		if got := lineIDs(t, c, calcFile, 6); len(got) != 0 {
			t.Errorf("line 6 = %v, want no tests", got)
		}
		if c.Tests().Len() != 0 {
			t.Errorf("ledger has %d entries, want 0", c.Tests().Len())
		}
	})

	t.Run("unintentionally covered code", func(t *testing.T) {
		c, _ := newFacade(t)
		c.EnableCheckForUnintentionallyCoveredCode()
		raw := FromXdebugWithoutPathCoverage(map[string]map[int]LineStatus{
			calcFile:   {6: LineExecuted, 11: LineExecuted},
			helperFile: {4: LineExecuted},
		})
		scope := Scope{
			Covered: map[string][]int{calcFile: {4, 5, 6, 7}},
			Used:    map[string][]int{helperFile: {2, 3, 4, 5}},
		}
		err := c.Append(raw, "T", true, scope)
		var uce *UnintentionallyCoveredCodeError
		if !errors.As(err, &uce) {
			t.Fatalf("Append() error = %v, want UnintentionallyCoveredCodeError", err)
		}
		if !reflect.DeepEqual(uce.Units, []string{"Calc::sub"}) {
			t.Errorf("Units = %v, want [Calc::sub]", uce.Units)
		}
		data, _ := c.Data(true)
		if len(data.LineCoverage()) != 0 {
			t.Errorf("data recorded despite error: %v", data.LineCoverage())
		}
	})
}

func TestCodeCoverage_StopWithTargets(t *testing.T) {
	t.Run("unknown method", func(t *testing.T) {
		c, driver := newFacade(t, addCalled())
		if err := c.Start("T", false); err != nil {
			t.Fatal(err)
		}
		_, err := c.StopWithTargets(true, target.Set{Covers: []target.Target{target.Method("Calc", "mul")}})
		var nf *target.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("StopWithTargets() error = %v, want NotFoundError", err)
		}
		if driver.stopped != 1 {
			t.Errorf("driver stopped %d times, want 1", driver.stopped)
		}
		data, _ := c.Data(true)
		if len(data.LineCoverage()) != 0 || c.Tests().Len() != 0 {
			t.Errorf("state recorded despite error: %v, %d tests", data.LineCoverage(), c.Tests().Len())
		}
		if c.CurrentID() != "" {
			t.Errorf("CurrentID() = %q, want idle", c.CurrentID())
		}
	})

	t.Run("method scope", func(t *testing.T) {
		run := calcRun(map[int]LineStatus{6: LineExecuted, 7: LineExecuted, 11: LineExecuted, 12: LineExecuted})
		c, _ := newFacade(t, run)
		if err := c.Start("T", false); err != nil {
			t.Fatal(err)
		}
		if _, err := c.StopWithTargets(true, target.Set{Covers: []target.Target{target.Method(`\Calc`, "add")}}); err != nil {
			t.Fatalf("StopWithTargets() error = %v", err)
		}
		if got := lineIDs(t, c, calcFile, 6); !reflect.DeepEqual(got, []string{"T"}) {
			t.Errorf("line 6 = %v, want [T]", got)
		}
		if got := lineIDs(t, c, calcFile, 11); len(got) != 0 {
			t.Errorf("line 11 = %v, want none", got)
		}
	})
}

func TestCodeCoverage_StopWithTargets_Lookup(t *testing.T) {
	covers := target.Set{Covers: []target.Target{target.Method("Calc", "add")}}
	tests := []struct {
		name    string
		include []string
		want    []string
	}{
		{"empty filter", nil, []string{"T"}},
		{"class outside the filter", []string{helperFile}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for file, src := range map[string]string{calcFile: calcSource, helperFile: helperSource} {
				if err := afero.WriteFile(fs, file, []byte(src), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			filter := NewFilter(fs)
			filter.IncludeFiles(tt.include)
			c := New(&stubDriver{runs: []*RawData{addCalled()}}, filter)
			if err := c.Start("T", false); err != nil {
				t.Fatal(err)
			}
			if _, err := c.StopWithTargets(true, covers); err != nil {
				t.Fatalf("StopWithTargets() error = %v", err)
			}
			data, _ := c.Data(true)
			lines, ok := data.LineCoverage()[calcFile]
			if tt.want == nil {
				if ok {
					t.Errorf("%s recorded although excluded: %v", calcFile, lines)
				}
				return
			}
			if got := lineIDs(t, c, calcFile, 6); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("line 6 = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeCoverage_UpdateTest(t *testing.T) {
	c, _ := newFacade(t, addCalled(), addCalled())
	info := TestInfo{Size: SizeSmall, Status: StatusPassed}

	if err := c.Start("Nothing", false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.StopWithTargets(true, target.Set{CoversNothing: true}); err != nil {
		t.Fatal(err)
	}
	if c.UpdateTest("Nothing", info) {
		t.Error("UpdateTest() = true for a test without coverage")
	}
	if _, ok := c.Tests().Get("Nothing"); ok {
		t.Error("test covering nothing is in the ledger")
	}

	if err := c.Start("Calc", false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.StopWithTargets(true, target.Set{}); err != nil {
		t.Fatal(err)
	}
	if !c.UpdateTest("Calc", info) {
		t.Error("UpdateTest() = false for a contributing test")
	}
	if got, _ := c.Tests().Get("Calc"); got != info {
		t.Errorf("Tests().Get() = %+v, want %+v", got, info)
	}
}

func TestCodeCoverage_SharedCaches(t *testing.T) {
	main, _ := newFacade(t)
	if err := main.Warm(context.Background(), 2); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	worker := New(&stubDriver{runs: []*RawData{addCalled()}}, main.Filter().Clone(), main.SharedCaches()...)
	if worker.Analyser() != main.Analyser() {
		t.Fatal("worker facade built its own analyser")
	}
	// toggles keep a shared analyser
	worker.IgnoreDeprecatedCode()
	if worker.Analyser() != main.Analyser() {
		t.Error("IgnoreDeprecatedCode() replaced the shared analyser")
	}

	// warmed analyses survive the sources changing
	if err := afero.WriteFile(main.Filter().Fs(), calcFile, []byte("<?php\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := worker.Start("T", false); err != nil {
		t.Fatal(err)
	}
	if _, err := worker.StopWithTargets(true, target.Set{Covers: []target.Target{target.Method("Calc", "add")}}); err != nil {
		t.Fatalf("StopWithTargets() error = %v", err)
	}
}

func TestCodeCoverage_UncoveredFiles(t *testing.T) {
	c, _ := newFacade(t)
	if err := c.Append(addCalled(), "T", true, Scope{}); err != nil {
		t.Fatal(err)
	}

	raw, _ := c.Data(true)
	if _, ok := raw.LineCoverage()[helperFile]; ok {
		t.Error("Data(true) added uncovered file")
	}

	c.ExcludeUncoveredFiles()
	data, _ := c.Data(false)
	if _, ok := data.LineCoverage()[helperFile]; ok {
		t.Error("uncovered file added although excluded")
	}

	c.IncludeUncoveredFiles()
	data, err := c.Data(false)
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	lines, ok := data.LineCoverage()[helperFile]
	if !ok {
		t.Fatal("uncovered file missing")
	}
	if lt := lines[4]; lt == nil || lt.Len() != 0 {
		t.Errorf("helper line 4 = %v, want empty list", lt)
	}
	if _, ok := c.Tests().Get(UncoveredFilesID); ok {
		t.Error("uncovered files recorded as a test")
	}
}

func TestCodeCoverage_Merge(t *testing.T) {
	a, _ := newFacade(t)
	if err := a.Append(calcRun(map[int]LineStatus{6: LineExecuted}), "T1", true, Scope{}); err != nil {
		t.Fatal(err)
	}
	b, _ := newFacade(t)
	if err := b.Append(calcRun(map[int]LineStatus{6: LineExecuted, 11: LineExecuted}), "T2", true, Scope{}); err != nil {
		t.Fatal(err)
	}
	b.RecordTest("T2", TestInfo{Size: SizeSmall, Status: StatusPassed})

	a.Merge(b)
	want := []string{"T1", "T2"}
	if got := lineIDs(t, a, calcFile, 6); !reflect.DeepEqual(got, want) {
		t.Errorf("line 6 = %v, want %v", got, want)
	}
	a.Merge(b)
	if got := lineIDs(t, a, calcFile, 6); !reflect.DeepEqual(got, want) {
		t.Errorf("line 6 after second merge = %v, want %v", got, want)
	}
	if got := lineIDs(t, a, calcFile, 11); !reflect.DeepEqual(got, []string{"T2"}) {
		t.Errorf("line 11 = %v, want [T2]", got)
	}
	if got := a.Tests().IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tests().IDs() = %v, want %v", got, want)
	}
	if info, _ := a.Tests().Get("T2"); info.Status != StatusPassed {
		t.Errorf("T2 status = %v, want passed", info.Status)
	}
}

func TestCodeCoverage_ExecutableLinesFilter(t *testing.T) {
	c, _ := newFacade(t)
	c.EnableExecutableLinesFilter()
	if err := c.Append(addCalled(), "T", true, Scope{}); err != nil {
		t.Fatal(err)
	}
	data, _ := c.Data(true)
	lines := data.LineCoverage()[calcFile]
	if len(lines) != 2 {
		t.Errorf("lines = %v, want only the two statements", lines)
	}
	if got := lineIDs(t, c, calcFile, 6); !reflect.DeepEqual(got, []string{"T"}) {
		t.Errorf("line 6 = %v, want [T]", got)
	}
}

func TestCodeCoverage_DriverCapabilities(t *testing.T) {
	c, _ := newFacade(t)
	if err := c.EnableBranchAndPathCoverage(); !errors.Is(err, ErrBranchAndPathCoverageNotSupported) {
		t.Errorf("EnableBranchAndPathCoverage() error = %v", err)
	}
	if err := c.DetectDeadCode(); !errors.Is(err, ErrDeadCodeDetectionNotSupported) {
		t.Errorf("DetectDeadCode() error = %v", err)
	}
}
