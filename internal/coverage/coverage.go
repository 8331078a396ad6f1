package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/analysis"
	"github.com/user/phpcov/internal/target"
)

// UncoveredFilesID is the reserved test id under which files that no test
// executed are recorded
const UncoveredFilesID = "UNCOVERED_FILES"

// Driver is a tracing engine adapter. Capabilities are fixed when the
// driver is constructed.
type Driver interface {
	Name() string
	Start() error
	Stop() (*RawData, error)

	CanCollectBranchAndPathCoverage() bool
	CollectsBranchAndPathCoverage() bool
	EnableBranchAndPathCoverage() error
	DisableBranchAndPathCoverage()

	CanDetectDeadCode() bool
	DetectsDeadCode() bool
	EnableDeadCodeDetection() error
	DisableDeadCodeDetection()
}

// Scope restricts which of the collected lines a test is credited with.
// The zero value puts no restriction.
type Scope struct {
	// CoversNothing discards everything the test executed
	CoversNothing bool
	// Covered maps files to the lines the test declares to cover
	Covered map[string][]int
	// Used maps files to lines the test may execute without covering them
	Used map[string][]int
}

// Option configures a CodeCoverage
type Option func(*CodeCoverage)

// WithAnalyser replaces the analyser built from the facade's options
func WithAnalyser(a analysis.Analyser) Option {
	return func(c *CodeCoverage) {
		c.analyser = a
		c.customAnalyser = true
	}
}

// WithCacheDirectory persists static analysis results below dir
func WithCacheDirectory(dir string) Option {
	return func(c *CodeCoverage) {
		c.cacheDir = dir
	}
}

// WithEmptyLineCache shares an empty-line cache between facades of one run
func WithEmptyLineCache(cache *analysis.EmptyLineCache) Option {
	return func(c *CodeCoverage) {
		c.emptyLines = cache
	}
}

// CodeCoverage collects coverage for a sequence of tests and accumulates
// it. It is not safe for concurrent use: parallel workers each own one and
// their results are merged afterwards.
type CodeCoverage struct {
	driver   Driver
	filter   *Filter
	fs       afero.Fs
	cacheDir string

	analyser       analysis.Analyser
	customAnalyser bool
	emptyLines     *analysis.EmptyLineCache

	data  *ProcessedData
	tests *Tests

	currentID  string
	collecting bool

	includeUncoveredFiles              bool
	useAnnotationsForIgnoringCode      bool
	ignoreDeprecatedCode               bool
	checkForUnintentionallyCoveredCode bool
	executableLinesFilter              bool
}

// New creates a facade. driver may be nil for facades that only merge and
// report data collected elsewhere.
func New(driver Driver, filter *Filter, opts ...Option) *CodeCoverage {
	c := &CodeCoverage{
		driver:                        driver,
		filter:                        filter,
		fs:                            filter.Fs(),
		data:                          NewProcessedData(),
		tests:                         NewTests(),
		includeUncoveredFiles:         true,
		useAnnotationsForIgnoringCode: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.emptyLines == nil {
		c.emptyLines = analysis.NewEmptyLineCache(c.fs)
	}
	return c
}

// Filter returns the file filter
func (c *CodeCoverage) Filter() *Filter {
	return c.filter
}

// Driver returns the driver, nil for report-only facades
func (c *CodeCoverage) Driver() Driver {
	return c.driver
}

// Analyser returns the static analyser, building it on first use from the
// facade's annotation and deprecation settings
func (c *CodeCoverage) Analyser() analysis.Analyser {
	if c.analyser != nil {
		return c.analyser
	}
	opts := analysis.Options{
		UseAnnotationsForIgnoringCode: c.useAnnotationsForIgnoringCode,
		IgnoreDeprecatedCode:          c.ignoreDeprecatedCode,
	}
	var disk *analysis.DiskCache
	if c.cacheDir != "" {
		var err error
		if disk, err = analysis.OpenDiskCache(c.fs, c.cacheDir); err != nil {
			slog.Warn("static analysis cache disabled", "dir", c.cacheDir, "error", err)
		}
	}
	c.analyser = analysis.NewCachingAnalyser(c.fs, opts, disk)
	return c.analyser
}

// SharedCaches returns options that make another facade reuse the
// analyser and the empty-line cache of c. Both are safe for concurrent use.
func (c *CodeCoverage) SharedCaches() []Option {
	return []Option{WithAnalyser(c.Analyser()), WithEmptyLineCache(c.emptyLines)}
}

// Warm analyses the included files on jobs workers ahead of collection
func (c *CodeCoverage) Warm(ctx context.Context, jobs int) error {
	ca, ok := c.Analyser().(*analysis.CachingAnalyser)
	if !ok {
		return nil
	}
	return ca.Warm(ctx, c.filter.Files(), jobs)
}

func (c *CodeCoverage) resetAnalyser() {
	if !c.customAnalyser {
		c.analyser = nil
	}
}

// Clear forgets all collected data and the test ledger
func (c *CodeCoverage) Clear() {
	c.currentID = ""
	c.collecting = false
	c.data = NewProcessedData()
	c.tests = NewTests()
}

// CurrentID returns the id of the test being collected, "" when idle
func (c *CodeCoverage) CurrentID() string {
	return c.currentID
}

// Data returns the accumulated coverage. Unless raw is set and when
// enabled, included files no test executed are added first.
func (c *CodeCoverage) Data(raw bool) (*ProcessedData, error) {
	if !raw && c.includeUncoveredFiles {
		if err := c.addUncoveredFilesFromFilter(); err != nil {
			return nil, err
		}
	}
	return c.data, nil
}

// SetData replaces the accumulated coverage
func (c *CodeCoverage) SetData(data *ProcessedData) {
	c.data = data
}

// Tests returns the test ledger
func (c *CodeCoverage) Tests() *Tests {
	return c.tests
}

// SetTests replaces the test ledger
func (c *CodeCoverage) SetTests(tests *Tests) {
	c.tests = tests
}

// RecordTest stores the outcome of a test in the ledger
func (c *CodeCoverage) RecordTest(id string, info TestInfo) {
	c.tests.Set(id, info)
}

// UpdateTest stores the outcome of a test that contributed coverage. It
// reports false and records nothing for any other test.
func (c *CodeCoverage) UpdateTest(id string, info TestInfo) bool {
	return c.tests.Update(id, info)
}

// Start begins collecting for test id. Starting again for the test being
// collected is a no-op; starting for another one fails.
func (c *CodeCoverage) Start(id string, clear bool) error {
	if c.collecting {
		if c.currentID == id {
			return nil
		}
		return fmt.Errorf("%w: cannot start %q while collecting %q", ErrAlreadyCollecting, id, c.currentID)
	}
	if c.driver == nil {
		return ErrNoDriver
	}
	if clear {
		c.Clear()
	}
	if err := c.driver.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.driver.Name(), err)
	}
	c.currentID = id
	c.collecting = true
	slog.Debug("code coverage started", "id", id, "driver", c.driver.Name())
	return nil
}

// Stop ends collection and appends what was collected under the current
// test id. The raw data is returned after filtering.
func (c *CodeCoverage) Stop(appendData bool, scope Scope) (*RawData, error) {
	raw, id, err := c.stopDriver()
	if err != nil {
		return nil, err
	}
	if err := c.Append(raw, id, appendData, scope); err != nil {
		return nil, err
	}
	return raw, nil
}

// StopWithTargets stops collection and resolves the declared targets
// against the included files and the files the test executed. When a
// target does not exist the collected data is discarded and the error
// returned, so nothing of the test is recorded.
func (c *CodeCoverage) StopWithTargets(appendData bool, targets target.Set) (*RawData, error) {
	raw, id, err := c.stopDriver()
	if err != nil {
		return nil, err
	}
	scope, err := c.ScopeFor(targets, raw)
	if err != nil {
		return nil, err
	}
	if err := c.Append(raw, id, appendData, scope); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *CodeCoverage) stopDriver() (*RawData, string, error) {
	if c.driver == nil {
		return nil, "", ErrNoDriver
	}
	raw, err := c.driver.Stop()
	id := c.currentID
	c.currentID = ""
	c.collecting = false
	if err != nil {
		return nil, "", fmt.Errorf("failed to stop %s: %w", c.driver.Name(), err)
	}
	return raw, id, nil
}

// ScopeFor resolves a target set. Targets are looked up in the included
// files, the files covered so far and the existing files of raw, which may
// be nil.
func (c *CodeCoverage) ScopeFor(targets target.Set, raw *RawData) (Scope, error) {
	if targets.CoversNothing {
		return Scope{CoversNothing: true}, nil
	}
	if len(targets.Covers) == 0 {
		return Scope{}, nil
	}
	mapper := target.NewMapper(c.targetFiles(raw), c.Analyser())
	covered, err := mapper.Lines(targets.Covers)
	if err != nil {
		return Scope{}, err
	}
	used, err := mapper.Lines(targets.Uses)
	if err != nil {
		return Scope{}, err
	}
	return Scope{Covered: covered, Used: used}, nil
}

func (c *CodeCoverage) targetFiles(raw *RawData) []string {
	files := slices.Concat(c.filter.Files(), c.data.CoveredFiles())
	if raw != nil {
		files = append(files, raw.Files()...)
	}
	slices.Sort(files)
	// engines report eval()'d code and deleted files too
	return slices.DeleteFunc(slices.Compact(files), func(file string) bool {
		ok, err := afero.Exists(c.fs, file)
		return err != nil || !ok
	})
}

// Append merges raw data collected for test id into the accumulated data.
// An empty id falls back to the test being collected. With appendData
// unset nothing is recorded.
func (c *CodeCoverage) Append(raw *RawData, id string, appendData bool, scope Scope) error {
	if id == "" {
		id = c.currentID
	}
	if id == "" {
		return ErrTestIDMissing
	}
	if !appendData {
		return nil
	}

	raw.SkipEmptyLines(c.emptyLines)
	c.applyFilter(raw)
	if c.executableLinesFilter {
		if err := c.applyExecutableLinesFilter(raw); err != nil {
			return err
		}
	}
	if c.useAnnotationsForIgnoringCode {
		if err := c.applyIgnoredLinesFilter(raw); err != nil {
			return err
		}
	}

	data := c.data.InitializeUnseenData(raw)
	if id != UncoveredFilesID {
		if err := c.applyScope(raw, scope); err != nil {
			return err
		}
		if len(raw.LineCoverage()) == 0 {
			c.data = data
			return nil
		}
		c.tests.ensure(id)
	}
	c.data = data.MarkCodeAsExecutedByTestCase(id, raw)
	return nil
}

// Merge adds the data, ledger and included files of other
func (c *CodeCoverage) Merge(other *CodeCoverage) {
	c.filter.IncludeFiles(other.filter.Files())
	c.data = c.data.Merge(other.data)
	c.tests.Merge(other.tests)
}

func (c *CodeCoverage) applyFilter(raw *RawData) {
	for _, file := range raw.Files() {
		if !c.filter.IsFile(file) || (!c.filter.IsEmpty() && c.filter.IsExcluded(file)) {
			raw.RemoveCoverageDataForFile(file)
		}
	}
}

func (c *CodeCoverage) applyExecutableLinesFilter(raw *RawData) error {
	for _, file := range raw.Files() {
		fa, err := c.Analyser().Analyse(file)
		if err != nil {
			return err
		}
		raw.KeepLineCoverageDataOnlyForLines(file, slices.Sorted(maps.Keys(fa.ExecutableLines)))
		raw.MarkExecutableLineByBranch(file, fa.ExecutableLines)
	}
	return nil
}

func (c *CodeCoverage) applyIgnoredLinesFilter(raw *RawData) error {
	for _, file := range raw.Files() {
		fa, err := c.Analyser().Analyse(file)
		if err != nil {
			return err
		}
		raw.RemoveCoverageDataForLines(file, fa.IgnoredLines)
	}
	return nil
}

func (c *CodeCoverage) applyScope(raw *RawData, scope Scope) error {
	if scope.CoversNothing {
		raw.Clear()
		return nil
	}
	if len(scope.Covered) == 0 {
		return nil
	}
	if c.checkForUnintentionallyCoveredCode {
		if err := c.checkUnintentionallyCoveredCode(raw, scope); err != nil {
			return err
		}
	}
	for _, file := range raw.Files() {
		if _, ok := scope.Covered[file]; !ok {
			raw.RemoveCoverageDataForFile(file)
		}
	}
	for file, lines := range scope.Covered {
		raw.KeepLineCoverageDataOnlyForLines(file, lines)
		raw.KeepFunctionCoverageDataOnlyForLines(file, lines)
	}
	return nil
}

func (c *CodeCoverage) checkUnintentionallyCoveredCode(raw *RawData, scope Scope) error {
	allowed := make(map[string]map[int]bool)
	for _, lines := range []map[string][]int{scope.Covered, scope.Used} {
		for file, ls := range lines {
			if allowed[file] == nil {
				allowed[file] = make(map[int]bool)
			}
			for _, l := range ls {
				allowed[file][l] = true
			}
		}
	}

	units := make(map[string]bool)
	for file, lines := range raw.LineCoverage() {
		for line, status := range lines {
			if status != LineExecuted || allowed[file][line] {
				continue
			}
			unit := ""
			if fa, err := c.Analyser().Analyse(file); err == nil {
				unit = fa.UnitAt(line)
			}
			if unit == "" {
				unit = fmt.Sprintf("%s:%d", file, line)
			}
			units[unit] = true
		}
	}
	if len(units) == 0 {
		return nil
	}
	return &UnintentionallyCoveredCodeError{Units: slices.Sorted(maps.Keys(units))}
}

func (c *CodeCoverage) addUncoveredFilesFromFilter() error {
	covered := c.data.LineCoverage()
	for _, file := range c.filter.Files() {
		if _, ok := covered[file]; ok || !c.filter.IsFile(file) {
			continue
		}
		raw, err := FromUncoveredFile(file, c.Analyser())
		if err != nil {
			return err
		}
		if err := c.Append(raw, UncoveredFilesID, true, Scope{}); err != nil {
			return err
		}
	}
	return nil
}

// IncludeUncoveredFiles makes Data add included files no test executed
func (c *CodeCoverage) IncludeUncoveredFiles() { c.includeUncoveredFiles = true }

// ExcludeUncoveredFiles makes Data report executed files only
func (c *CodeCoverage) ExcludeUncoveredFiles() { c.includeUncoveredFiles = false }

// EnableAnnotationsForIgnoringCode honours @codeCoverageIgnore and drops ignored lines
func (c *CodeCoverage) EnableAnnotationsForIgnoringCode() {
	c.useAnnotationsForIgnoringCode = true
	c.resetAnalyser()
}

// DisableAnnotationsForIgnoringCode keeps ignored lines in the collected data
func (c *CodeCoverage) DisableAnnotationsForIgnoringCode() {
	c.useAnnotationsForIgnoringCode = false
	c.resetAnalyser()
}

// IgnoreDeprecatedCode treats units tagged @deprecated as ignored
func (c *CodeCoverage) IgnoreDeprecatedCode() {
	c.ignoreDeprecatedCode = true
	c.resetAnalyser()
}

// DoNotIgnoreDeprecatedCode counts deprecated units like any other
func (c *CodeCoverage) DoNotIgnoreDeprecatedCode() {
	c.ignoreDeprecatedCode = false
	c.resetAnalyser()
}

// EnableCheckForUnintentionallyCoveredCode makes Append fail for tests executing
// code outside what they cover or use
func (c *CodeCoverage) EnableCheckForUnintentionallyCoveredCode() {
	c.checkForUnintentionallyCoveredCode = true
}

// DisableCheckForUnintentionallyCoveredCode turns the check off
func (c *CodeCoverage) DisableCheckForUnintentionallyCoveredCode() {
	c.checkForUnintentionallyCoveredCode = false
}

// EnableExecutableLinesFilter keeps only lines the analyser considers
// executable and spreads statuses along branches
func (c *CodeCoverage) EnableExecutableLinesFilter() { c.executableLinesFilter = true }

// DisableExecutableLinesFilter keeps the lines as the engine reported them
func (c *CodeCoverage) DisableExecutableLinesFilter() { c.executableLinesFilter = false }

// CollectsBranchAndPathCoverage reports whether the driver traces branches
func (c *CodeCoverage) CollectsBranchAndPathCoverage() bool {
	return c.driver != nil && c.driver.CollectsBranchAndPathCoverage()
}

// EnableBranchAndPathCoverage asks the driver to trace branches and paths
func (c *CodeCoverage) EnableBranchAndPathCoverage() error {
	if c.driver == nil {
		return ErrNoDriver
	}
	return c.driver.EnableBranchAndPathCoverage()
}

// DetectsDeadCode reports whether the driver reports dead code
func (c *CodeCoverage) DetectsDeadCode() bool {
	return c.driver != nil && c.driver.DetectsDeadCode()
}

// DetectDeadCode asks the driver to report dead code
func (c *CodeCoverage) DetectDeadCode() error {
	if c.driver == nil {
		return ErrNoDriver
	}
	return c.driver.EnableDeadCodeDetection()
}
