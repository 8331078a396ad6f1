package coverage

import (
	"maps"
	"slices"

	"github.com/user/phpcov/internal/analysis"
)

// LineStatus is the state a tracing engine reports for one source line
type LineStatus int

const (
	LineExecuted      LineStatus = 1
	LineNotExecuted   LineStatus = -1
	LineNotExecutable LineStatus = -2
)

// BranchHit marks a branch or path that was taken at least once
const BranchHit = 1

// RawBranch is one branch of a function as reported by Xdebug
type RawBranch struct {
	OpStart   int
	OpEnd     int
	LineStart int
	LineEnd   int
	Hit       int
	Out       []int
	OutHit    []int
}

// RawPath is one execution path through a function: the ordered branch ids
type RawPath struct {
	Path []int
	Hit  int
}

// RawFunction holds the branches and paths of one function
type RawFunction struct {
	Branches map[int]RawBranch
	Paths    map[int]RawPath
}

// XdebugFileCoverage is the per-file shape Xdebug reports when path
// coverage is enabled. Functions is nil for files reported without it.
type XdebugFileCoverage struct {
	Lines     map[int]LineStatus
	Functions map[string]RawFunction
}

// RawData is the coverage collected during one start/stop cycle.
// It is trimmed in place by the filtering operations below.
type RawData struct {
	lineCoverage     map[string]map[int]LineStatus
	functionCoverage map[string]map[string]RawFunction
}

// FromXdebugWithoutPathCoverage wraps line-only coverage: file -> line -> status
func FromXdebugWithoutPathCoverage(files map[string]map[int]LineStatus) *RawData {
	d := newRawData()
	for file, lines := range files {
		d.lineCoverage[file] = maps.Clone(lines)
		if d.lineCoverage[file] == nil {
			d.lineCoverage[file] = make(map[int]LineStatus)
		}
	}
	return d
}

// FromXdebugWithPathCoverage wraps line, branch and path coverage.
// Every file gets a function map, even an empty one.
func FromXdebugWithPathCoverage(files map[string]XdebugFileCoverage) *RawData {
	d := newRawData()
	for file, fc := range files {
		d.lineCoverage[file] = cloneLines(fc.Lines)
		d.functionCoverage[file] = cloneFunctions(fc.Functions)
	}
	return d
}

// FromXdebugWithMixedCoverage accepts files with and without function data
func FromXdebugWithMixedCoverage(files map[string]XdebugFileCoverage) *RawData {
	d := newRawData()
	for file, fc := range files {
		d.lineCoverage[file] = cloneLines(fc.Lines)
		if fc.Functions != nil {
			d.functionCoverage[file] = cloneFunctions(fc.Functions)
		}
	}
	return d
}

// FromUncoveredFile reports every executable line of file as not executed
func FromUncoveredFile(file string, analyser analysis.Analyser) (*RawData, error) {
	fa, err := analyser.Analyse(file)
	if err != nil {
		return nil, err
	}
	lines := make(map[int]LineStatus, len(fa.ExecutableLines))
	for line := range fa.ExecutableLines {
		lines[line] = LineNotExecuted
	}
	d := newRawData()
	d.lineCoverage[file] = lines
	return d, nil
}

func newRawData() *RawData {
	return &RawData{
		lineCoverage:     make(map[string]map[int]LineStatus),
		functionCoverage: make(map[string]map[string]RawFunction),
	}
}

func cloneLines(lines map[int]LineStatus) map[int]LineStatus {
	out := make(map[int]LineStatus, len(lines))
	maps.Copy(out, lines)
	return out
}

func cloneFunctions(functions map[string]RawFunction) map[string]RawFunction {
	out := make(map[string]RawFunction, len(functions))
	for name, fn := range functions {
		out[name] = RawFunction{
			Branches: cloneBranches(fn.Branches),
			Paths:    clonePaths(fn.Paths),
		}
	}
	return out
}

func cloneBranches(branches map[int]RawBranch) map[int]RawBranch {
	out := make(map[int]RawBranch, len(branches))
	for id, b := range branches {
		b.Out = slices.Clone(b.Out)
		b.OutHit = slices.Clone(b.OutHit)
		out[id] = b
	}
	return out
}

func clonePaths(paths map[int]RawPath) map[int]RawPath {
	out := make(map[int]RawPath, len(paths))
	for id, p := range paths {
		p.Path = slices.Clone(p.Path)
		out[id] = p
	}
	return out
}

// Clear drops all collected data
func (d *RawData) Clear() {
	d.lineCoverage = make(map[string]map[int]LineStatus)
	d.functionCoverage = make(map[string]map[string]RawFunction)
}

// LineCoverage returns file -> line -> status. The map is owned by d.
func (d *RawData) LineCoverage() map[string]map[int]LineStatus {
	return d.lineCoverage
}

// FunctionCoverage returns file -> function -> branches and paths. The map is owned by d.
func (d *RawData) FunctionCoverage() map[string]map[string]RawFunction {
	return d.functionCoverage
}

// Files returns the covered file names in sorted order
func (d *RawData) Files() []string {
	return slices.Sorted(maps.Keys(d.lineCoverage))
}

// RemoveCoverageDataForFile forgets everything about file
func (d *RawData) RemoveCoverageDataForFile(file string) {
	delete(d.lineCoverage, file)
	delete(d.functionCoverage, file)
}

// KeepLineCoverageDataOnlyForLines drops every line of file not in lines
func (d *RawData) KeepLineCoverageDataOnlyForLines(file string, lines []int) {
	current, ok := d.lineCoverage[file]
	if !ok {
		return
	}
	keep := lineSet(lines)
	for line := range current {
		if !keep[line] {
			delete(current, line)
		}
	}
}

// KeepFunctionCoverageDataOnlyForLines drops every branch of file that
// spans a line outside lines, together with the paths through it.
func (d *RawData) KeepFunctionCoverageDataOnlyForLines(file string, lines []int) {
	functions, ok := d.functionCoverage[file]
	if !ok {
		return
	}
	keep := lineSet(lines)
	for _, fn := range functions {
		for id, b := range fn.Branches {
			for line := b.LineStart; line <= b.LineEnd; line++ {
				if !keep[line] {
					fn.removeBranch(id)
					break
				}
			}
		}
	}
}

// RemoveCoverageDataForLines drops lines of file. Branches overlapping a
// removed line go too, and so does every path that runs through them.
func (d *RawData) RemoveCoverageDataForLines(file string, lines []int) {
	if len(lines) == 0 {
		return
	}
	current, ok := d.lineCoverage[file]
	if !ok {
		return
	}
	remove := lineSet(lines)
	for line := range remove {
		delete(current, line)
	}
	for _, fn := range d.functionCoverage[file] {
		for id, b := range fn.Branches {
			for line := b.LineStart; line <= b.LineEnd; line++ {
				if remove[line] {
					fn.removeBranch(id)
					break
				}
			}
		}
	}
}

func (fn RawFunction) removeBranch(id int) {
	delete(fn.Branches, id)
	for pid, p := range fn.Paths {
		if slices.Contains(p.Path, id) {
			delete(fn.Paths, pid)
		}
	}
}

// MarkExecutableLineByBranch spreads the status of every reported line to
// the other lines of its branch. lineToBranch maps executable lines to
// branch ids. Unreported lines take the first status seen for their branch;
// an executed status always wins.
func (d *RawData) MarkExecutableLineByBranch(file string, lineToBranch map[int]int) {
	current, ok := d.lineCoverage[file]
	if !ok {
		return
	}
	linesByBranch := make(map[int][]int)
	for _, line := range slices.Sorted(maps.Keys(lineToBranch)) {
		branch := lineToBranch[line]
		linesByBranch[branch] = append(linesByBranch[branch], line)
	}

	reported := maps.Clone(current)
	for _, line := range slices.Sorted(maps.Keys(reported)) {
		branch, ok := lineToBranch[line]
		if !ok {
			continue
		}
		status := reported[line]
		for _, other := range linesByBranch[branch] {
			if _, seen := current[other]; !seen || status == LineExecuted {
				current[other] = status
			}
		}
	}
}

// SkipEmptyLines drops rows for lines whose source is whitespace only.
// Engines report the implicit trailing return on such lines.
func (d *RawData) SkipEmptyLines(cache *analysis.EmptyLineCache) {
	if cache == nil {
		return
	}
	for file, lines := range d.lineCoverage {
		for _, empty := range cache.EmptyLines(file) {
			delete(lines, empty)
		}
	}
}

// CombineRaw folds the payloads of one stop cycle into a single RawData.
// An executed line beats a not executed one, which beats not executable;
// branch and path hits are or-ed.
func CombineRaw(parts ...*RawData) *RawData {
	out := newRawData()
	for _, part := range parts {
		if part == nil {
			continue
		}
		for file, lines := range part.lineCoverage {
			dst, ok := out.lineCoverage[file]
			if !ok {
				dst = make(map[int]LineStatus, len(lines))
				out.lineCoverage[file] = dst
			}
			for line, status := range lines {
				if prev, seen := dst[line]; !seen || status > prev {
					dst[line] = status
				}
			}
		}
		for file, functions := range part.functionCoverage {
			dst, ok := out.functionCoverage[file]
			if !ok {
				dst = make(map[string]RawFunction, len(functions))
				out.functionCoverage[file] = dst
			}
			for name, fn := range functions {
				prev, ok := dst[name]
				if !ok {
					dst[name] = RawFunction{Branches: cloneBranches(fn.Branches), Paths: clonePaths(fn.Paths)}
					continue
				}
				for id, b := range fn.Branches {
					if have, ok := prev.Branches[id]; ok {
						have.Hit = max(have.Hit, b.Hit)
						prev.Branches[id] = have
					} else {
						b.Out = slices.Clone(b.Out)
						b.OutHit = slices.Clone(b.OutHit)
						prev.Branches[id] = b
					}
				}
				for id, p := range fn.Paths {
					if have, ok := prev.Paths[id]; ok {
						have.Hit = max(have.Hit, p.Hit)
						prev.Paths[id] = have
					} else {
						p.Path = slices.Clone(p.Path)
						prev.Paths[id] = p
					}
				}
			}
		}
	}
	return out
}

func lineSet(lines []int) map[int]bool {
	set := make(map[int]bool, len(lines))
	for _, l := range lines {
		set[l] = true
	}
	return set
}
