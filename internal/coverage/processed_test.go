package coverage

import (
	"reflect"
	"testing"
)

func ids(lt *LineTests) []string {
	if lt == nil {
		return nil
	}
	return lt.IDs
}

func TestProcessedData_InitializeUnseenData(t *testing.T) {
	raw := sampleRaw()
	d := NewProcessedData().InitializeUnseenData(raw)

	lines := d.LineCoverage()[fooFile]
	if len(lines) != 5 {
		t.Fatalf("len(lines) = %d, want 5", len(lines))
	}
	if lines[4] != nil {
		t.Errorf("line 4 = %v, want nil (not executable)", lines[4])
	}
	for _, l := range []int{1, 2, 3, 5} {
		if lines[l] == nil || lines[l].Len() != 0 {
			t.Errorf("line %d = %v, want empty list", l, lines[l])
		}
	}
	fn := d.FunctionCoverage()[fooFile]["foo"]
	if len(fn.Branches) != 3 || len(fn.Paths) != 2 {
		t.Errorf("function = %+v, want 3 branches and 2 paths", fn)
	}
	for id, b := range fn.Branches {
		if b.Hit == nil || len(b.Hit) != 0 {
			t.Errorf("branch %d Hit = %v, want empty", id, b.Hit)
		}
	}

	// a file seen before keeps its lines
	again := d.MarkCodeAsExecutedByTestCase("T1", raw).InitializeUnseenData(raw)
	if got := ids(again.LineCoverage()[fooFile][1]); !reflect.DeepEqual(got, []string{"T1"}) {
		t.Errorf("line 1 after re-initialization = %v, want [T1]", got)
	}
}

func TestProcessedData_MarkCodeAsExecutedByTestCase(t *testing.T) {
	raw := sampleRaw()
	d := NewProcessedData().InitializeUnseenData(raw).
		MarkCodeAsExecutedByTestCase("T1", raw).
		MarkCodeAsExecutedByTestCase("T2", raw)

	tests := []struct {
		line int
		want []string
	}{
		{1, []string{"T1", "T2"}},
		{2, []string{}},
		{3, []string{"T1", "T2"}},
		{4, nil},
	}
	for _, tt := range tests {
		got := ids(d.LineCoverage()[fooFile][tt.line])
		if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("line %d = %v, want %v", tt.line, got, tt.want)
		}
	}

	fn := d.FunctionCoverage()[fooFile]["foo"]
	if got := fn.Branches[0].Hit; !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Errorf("branch 0 Hit = %v, want [T1 T2]", got)
	}
	if got := fn.Branches[2].Hit; len(got) != 0 {
		t.Errorf("branch 2 Hit = %v, want none", got)
	}
	if got := fn.Paths[0].Hit; !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Errorf("path 0 Hit = %v, want [T1 T2]", got)
	}
}

func TestProcessedData_Immutable(t *testing.T) {
	raw := sampleRaw()
	base := NewProcessedData().InitializeUnseenData(raw)
	marked := base.MarkCodeAsExecutedByTestCase("T1", raw)

	if got := base.LineCoverage()[fooFile][1].Len(); got != 0 {
		t.Errorf("receiver changed: line 1 has %d tests, want 0", got)
	}
	if got := base.FunctionCoverage()[fooFile]["foo"].Branches[0].Hit; len(got) != 0 {
		t.Errorf("receiver changed: branch 0 Hit = %v", got)
	}
	if got := marked.LineCoverage()[fooFile][1].Len(); got != 1 {
		t.Errorf("line 1 has %d tests, want 1", got)
	}

	other := NewProcessedDataFrom(map[string]map[int]*LineTests{
		fooFile: {1: {IDs: []string{"T9"}}},
	}, nil)
	merged := marked.Merge(other)
	if got := ids(marked.LineCoverage()[fooFile][1]); !reflect.DeepEqual(got, []string{"T1"}) {
		t.Errorf("Merge changed receiver: line 1 = %v", got)
	}
	if got := ids(merged.LineCoverage()[fooFile][1]); !reflect.DeepEqual(got, []string{"T1", "T9"}) {
		t.Errorf("merged line 1 = %v, want [T1 T9]", got)
	}
}

func TestProcessedData_Merge(t *testing.T) {
	a := NewProcessedDataFrom(map[string]map[int]*LineTests{
		"/a.php": {5: {IDs: []string{"T1"}}, 6: {IDs: []string{}}, 7: nil, 8: {IDs: []string{"T1"}}},
	}, nil)
	b := NewProcessedDataFrom(map[string]map[int]*LineTests{
		"/a.php": {5: {IDs: []string{"T2"}}, 6: {IDs: []string{"T2"}}, 7: {IDs: []string{}}, 9: nil},
		"/b.php": {1: {IDs: []string{"T2"}}},
	}, nil)

	merged := a.Merge(b)
	tests := []struct {
		file string
		line int
		want *LineTests
	}{
		{"/a.php", 5, &LineTests{IDs: []string{"T1", "T2"}}},
		{"/a.php", 6, &LineTests{IDs: []string{"T2"}}},
		{"/a.php", 7, &LineTests{IDs: []string{}}},
		{"/a.php", 8, &LineTests{IDs: []string{"T1"}}},
		{"/a.php", 9, nil},
		{"/b.php", 1, &LineTests{IDs: []string{"T2"}}},
	}
	for _, tt := range tests {
		got := merged.LineCoverage()[tt.file][tt.line]
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s:%d = %v, want %v", tt.file, tt.line, got, tt.want)
		}
	}

	// re-merging the same data adds nothing
	twice := merged.Merge(b)
	if got := ids(twice.LineCoverage()["/a.php"][5]); !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Errorf("line 5 after second merge = %v, want [T1 T2]", got)
	}
	if !reflect.DeepEqual(twice.LineCoverage(), merged.LineCoverage()) {
		t.Error("second merge changed the data")
	}
}

func TestProcessedData_MergeFunctions(t *testing.T) {
	a := NewProcessedDataFrom(nil, map[string]map[string]ProcessedFunction{
		"/a.php": {"f": {
			Branches: map[int]ProcessedBranch{0: {Hit: []string{"T1"}}},
			Paths:    map[int]ProcessedPath{0: {Path: []int{0}, Hit: []string{"T1"}}},
		}},
	})
	b := NewProcessedDataFrom(nil, map[string]map[string]ProcessedFunction{
		"/a.php": {
			"f": {
				Branches: map[int]ProcessedBranch{0: {Hit: []string{"T1", "T2"}}, 1: {Hit: []string{"T2"}}},
				Paths:    map[int]ProcessedPath{0: {Path: []int{0}, Hit: []string{"T2"}}},
			},
			"g": {Branches: map[int]ProcessedBranch{0: {Hit: []string{}}}},
		},
	})

	fns := a.Merge(b).FunctionCoverage()["/a.php"]
	if got := fns["f"].Branches[0].Hit; !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Errorf("f branch 0 = %v, want [T1 T2]", got)
	}
	if got := fns["f"].Branches[1].Hit; !reflect.DeepEqual(got, []string{"T2"}) {
		t.Errorf("f branch 1 = %v, want [T2]", got)
	}
	if got := fns["f"].Paths[0].Hit; !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Errorf("f path 0 = %v, want [T1 T2]", got)
	}
	if _, ok := fns["g"]; !ok {
		t.Error("function g not adopted")
	}
}

func TestProcessedData_RenameFile(t *testing.T) {
	d := NewProcessedData().InitializeUnseenData(sampleRaw())
	renamed := d.RenameFile(fooFile, "Foo.php")
	if _, ok := renamed.LineCoverage()["Foo.php"]; !ok {
		t.Error("renamed file missing")
	}
	if _, ok := renamed.FunctionCoverage()[fooFile]; ok {
		t.Error("old function key still present")
	}
	if _, ok := d.LineCoverage()[fooFile]; !ok {
		t.Error("RenameFile changed its receiver")
	}
}
