package coverage

import (
	"maps"
	"slices"
)

// LineTests lists, in execution order, the tests that executed a line.
// A nil *LineTests in ProcessedData marks a line that is not executable.
type LineTests struct {
	IDs []string
}

func (lt *LineTests) with(id string) *LineTests {
	ids := make([]string, 0, len(lt.ids())+1)
	return &LineTests{IDs: append(append(ids, lt.ids()...), id)}
}

func (lt *LineTests) ids() []string {
	if lt == nil {
		return nil
	}
	return lt.IDs
}

// Len is the number of tests that executed the line
func (lt *LineTests) Len() int {
	return len(lt.ids())
}

// ProcessedBranch is a branch together with the tests that took it
type ProcessedBranch struct {
	OpStart   int
	OpEnd     int
	LineStart int
	LineEnd   int
	Out       []int
	OutHit    []int
	Hit       []string
}

// ProcessedPath is a path together with the tests that took it
type ProcessedPath struct {
	Path []int
	Hit  []string
}

// ProcessedFunction holds the processed branches and paths of one function
type ProcessedFunction struct {
	Branches map[int]ProcessedBranch
	Paths    map[int]ProcessedPath
}

// ProcessedData is the coverage accumulated over a whole run: per line the
// ids of the tests that executed it. It is a value: every operation that
// changes it returns a new instance and leaves the receiver untouched.
// Per-file maps are shared between instances and copied before writing.
type ProcessedData struct {
	lines     map[string]map[int]*LineTests
	functions map[string]map[string]ProcessedFunction
}

// NewProcessedData returns an empty instance
func NewProcessedData() *ProcessedData {
	return &ProcessedData{
		lines:     make(map[string]map[int]*LineTests),
		functions: make(map[string]map[string]ProcessedFunction),
	}
}

// NewProcessedDataFrom builds an instance owning the given maps
func NewProcessedDataFrom(lines map[string]map[int]*LineTests, functions map[string]map[string]ProcessedFunction) *ProcessedData {
	d := NewProcessedData()
	if lines != nil {
		d.lines = lines
	}
	if functions != nil {
		d.functions = functions
	}
	return d
}

func (d *ProcessedData) shallowCopy() *ProcessedData {
	return &ProcessedData{
		lines:     maps.Clone(d.lines),
		functions: maps.Clone(d.functions),
	}
}

// LineCoverage returns file -> line -> tests. Callers must not modify it.
func (d *ProcessedData) LineCoverage() map[string]map[int]*LineTests {
	return d.lines
}

// FunctionCoverage returns file -> function -> branches and paths. Callers must not modify it.
func (d *ProcessedData) FunctionCoverage() map[string]map[string]ProcessedFunction {
	return d.functions
}

// CoveredFiles returns the files with line data in sorted order
func (d *ProcessedData) CoveredFiles() []string {
	return slices.Sorted(maps.Keys(d.lines))
}

// FileLines returns the line data of file
func (d *ProcessedData) FileLines(file string) (map[int]*LineTests, bool) {
	lines, ok := d.lines[file]
	return lines, ok
}

// FileFunctions returns the function data of file
func (d *ProcessedData) FileFunctions(file string) map[string]ProcessedFunction {
	return d.functions[file]
}

// RenameFile moves the data of oldFile to newFile
func (d *ProcessedData) RenameFile(oldFile, newFile string) *ProcessedData {
	out := d.shallowCopy()
	if lines, ok := out.lines[oldFile]; ok {
		delete(out.lines, oldFile)
		out.lines[newFile] = lines
	}
	if functions, ok := out.functions[oldFile]; ok {
		delete(out.functions, oldFile)
		out.functions[newFile] = functions
	}
	return out
}

// InitializeUnseenData records the executable lines, branches and paths of
// files this instance has not seen yet, each with no covering tests.
func (d *ProcessedData) InitializeUnseenData(raw *RawData) *ProcessedData {
	out := d.shallowCopy()
	for file, lines := range raw.LineCoverage() {
		if _, seen := out.lines[file]; seen {
			continue
		}
		init := make(map[int]*LineTests, len(lines))
		for line, status := range lines {
			if status == LineNotExecutable {
				init[line] = nil
			} else {
				init[line] = &LineTests{}
			}
		}
		out.lines[file] = init
	}
	for file, functions := range raw.FunctionCoverage() {
		dst := maps.Clone(out.functions[file])
		if dst == nil {
			dst = make(map[string]ProcessedFunction, len(functions))
		}
		for name, fn := range functions {
			dst[name] = initFunction(dst[name], fn)
		}
		out.functions[file] = dst
	}
	return out
}

// initFunction adds the branches and paths of fn that have not been seen
func initFunction(seen ProcessedFunction, fn RawFunction) ProcessedFunction {
	out := ProcessedFunction{
		Branches: maps.Clone(seen.Branches),
		Paths:    maps.Clone(seen.Paths),
	}
	if out.Branches == nil {
		out.Branches = make(map[int]ProcessedBranch, len(fn.Branches))
	}
	if out.Paths == nil {
		out.Paths = make(map[int]ProcessedPath, len(fn.Paths))
	}
	for id, b := range fn.Branches {
		if _, ok := out.Branches[id]; ok {
			continue
		}
		out.Branches[id] = ProcessedBranch{
			OpStart:   b.OpStart,
			OpEnd:     b.OpEnd,
			LineStart: b.LineStart,
			LineEnd:   b.LineEnd,
			Out:       slices.Clone(b.Out),
			OutHit:    slices.Clone(b.OutHit),
			Hit:       []string{},
		}
	}
	for id, p := range fn.Paths {
		if _, ok := out.Paths[id]; ok {
			continue
		}
		out.Paths[id] = ProcessedPath{Path: slices.Clone(p.Path), Hit: []string{}}
	}
	return out
}

// MarkCodeAsExecutedByTestCase appends id to every executed line, taken
// branch and taken path of raw. The same id appended twice is kept twice.
func (d *ProcessedData) MarkCodeAsExecutedByTestCase(id string, raw *RawData) *ProcessedData {
	out := d.shallowCopy()
	for file, lines := range raw.LineCoverage() {
		var dst map[int]*LineTests
		for line, status := range lines {
			if status != LineExecuted {
				continue
			}
			if dst == nil {
				dst = maps.Clone(out.lines[file])
				if dst == nil {
					dst = make(map[int]*LineTests)
				}
				out.lines[file] = dst
			}
			dst[line] = dst[line].with(id)
		}
	}
	for file, functions := range raw.FunctionCoverage() {
		var dst map[string]ProcessedFunction
		for name, fn := range functions {
			var pf ProcessedFunction
			copied := false
			touch := func() {
				if copied {
					return
				}
				if dst == nil {
					dst = maps.Clone(out.functions[file])
					if dst == nil {
						dst = make(map[string]ProcessedFunction)
					}
					out.functions[file] = dst
				}
				pf = dst[name]
				pf.Branches = maps.Clone(pf.Branches)
				pf.Paths = maps.Clone(pf.Paths)
				if pf.Branches == nil {
					pf.Branches = make(map[int]ProcessedBranch)
				}
				if pf.Paths == nil {
					pf.Paths = make(map[int]ProcessedPath)
				}
				copied = true
			}
			for bid, b := range fn.Branches {
				if b.Hit != BranchHit {
					continue
				}
				touch()
				pb := pf.Branches[bid]
				pb.Hit = append(slices.Clone(pb.Hit), id)
				pf.Branches[bid] = pb
			}
			for pid, p := range fn.Paths {
				if p.Hit != BranchHit {
					continue
				}
				touch()
				pp := pf.Paths[pid]
				pp.Hit = append(slices.Clone(pp.Hit), id)
				pf.Paths[pid] = pp
			}
			if copied {
				dst[name] = pf
			}
		}
	}
	return out
}

// line priorities used by Merge
const (
	priorityUnset = iota + 1
	priorityNotExecutable
	priorityNotCovered
	priorityCovered
)

func linePriority(lines map[int]*LineTests, line int) int {
	tests, ok := lines[line]
	switch {
	case !ok:
		return priorityUnset
	case tests == nil:
		return priorityNotExecutable
	case tests.Len() == 0:
		return priorityNotCovered
	}
	return priorityCovered
}

// Merge combines d with other. Files d has not seen are adopted as they
// are; otherwise every line takes the more informative value of the two,
// and equally informative test lists are united without duplicates.
func (d *ProcessedData) Merge(other *ProcessedData) *ProcessedData {
	out := d.shallowCopy()
	for file, theirs := range other.lines {
		ours, seen := out.lines[file]
		if !seen {
			out.lines[file] = theirs
			continue
		}
		merged := maps.Clone(ours)
		for line, tests := range theirs {
			thatPriority := linePriority(theirs, line)
			thisPriority := linePriority(ours, line)
			switch {
			case thatPriority > thisPriority:
				merged[line] = tests
			case thatPriority == thisPriority && ours[line] != nil:
				merged[line] = &LineTests{IDs: unique(ours[line].IDs, tests.IDs)}
			}
		}
		out.lines[file] = merged
	}

	for file, theirs := range other.functions {
		ours, seen := out.functions[file]
		if !seen {
			out.functions[file] = theirs
			continue
		}
		merged := maps.Clone(ours)
		for name, fn := range theirs {
			pf := initProcessedFunction(merged[name], fn)
			for id, b := range fn.Branches {
				pb := pf.Branches[id]
				pb.Hit = unique(pb.Hit, b.Hit)
				pf.Branches[id] = pb
			}
			for id, p := range fn.Paths {
				pp := pf.Paths[id]
				pp.Hit = unique(pp.Hit, p.Hit)
				pf.Paths[id] = pp
			}
			merged[name] = pf
		}
		out.functions[file] = merged
	}
	return out
}

// initProcessedFunction copies seen and adds the branches and paths of fn
// it lacks, with no covering tests
func initProcessedFunction(seen, fn ProcessedFunction) ProcessedFunction {
	out := ProcessedFunction{
		Branches: maps.Clone(seen.Branches),
		Paths:    maps.Clone(seen.Paths),
	}
	if out.Branches == nil {
		out.Branches = make(map[int]ProcessedBranch, len(fn.Branches))
	}
	if out.Paths == nil {
		out.Paths = make(map[int]ProcessedPath, len(fn.Paths))
	}
	for id, b := range fn.Branches {
		if _, ok := out.Branches[id]; !ok {
			b.Hit = []string{}
			out.Branches[id] = b
		}
	}
	for id, p := range fn.Paths {
		if _, ok := out.Paths[id]; !ok {
			p.Hit = []string{}
			out.Paths[id] = p
		}
	}
	return out
}

// unique concatenates a and b keeping the first occurrence of every id
func unique(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
