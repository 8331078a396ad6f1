// Package nodetest builds small report trees for renderer tests.
package nodetest

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/node"
)

// CalcFile holds a class whose add method is tested and whose sub method is not
const CalcFile = "/src/Calc.php"

const CalcSource = `<?php
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

// Test ids used by the fixtures
const (
	AddTest   = "CalcTest::testAdd"
	TwiceTest = "HelpersTest::testTwice"
)

const helpersSource = `<?php
namespace App\Util;

function twice($x)
{
    return $x * 2;
}
`

const greetsSource = `<?php
trait Greets
{
    public function hello()
    {
        return 'hi';
    }
}
`

func write(t testing.TB, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, src := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(src), 0o644))
	}
}

// Calc returns a facade where one passing test ran Calc::add
func Calc(t testing.TB) *coverage.CodeCoverage {
	t.Helper()
	fs := afero.NewMemMapFs()
	write(t, fs, map[string]string{CalcFile: CalcSource})
	filter := coverage.NewFilter(fs)
	filter.IncludeFile(CalcFile)

	cc := coverage.New(nil, filter)
	raw := coverage.FromXdebugWithoutPathCoverage(map[string]map[int]coverage.LineStatus{
		CalcFile: {6: coverage.LineExecuted, 11: coverage.LineNotExecuted},
	})
	require.NoError(t, cc.Append(raw, AddTest, true, coverage.Scope{}))
	cc.RecordTest(AddTest, coverage.TestInfo{Size: coverage.SizeSmall, Status: coverage.StatusPassed, Duration: 12 * time.Millisecond})
	return cc
}

// CalcTree is the report tree of Calc
func CalcTree(t testing.TB) *node.Directory {
	t.Helper()
	root, err := node.Build(Calc(t))
	require.NoError(t, err)
	return root
}

// Project files
const (
	ProjectCalc    = "/app/src/Calc.php"
	ProjectHelpers = "/app/src/Util/helpers.php"
	ProjectGreets  = "/app/src/Util/Greets.php"
)

// Project returns a facade over a class with branch data, a namespaced
// function run by a failing test, and a trait nothing executed
func Project(t testing.TB) *coverage.CodeCoverage {
	t.Helper()
	fs := afero.NewMemMapFs()
	write(t, fs, map[string]string{
		ProjectCalc:    CalcSource,
		ProjectHelpers: helpersSource,
		ProjectGreets:  greetsSource,
	})
	filter := coverage.NewFilter(fs)
	require.NoError(t, filter.IncludeDirectory("/app/src", ".php", ""))

	cc := coverage.New(nil, filter)
	first := coverage.FromXdebugWithMixedCoverage(map[string]coverage.XdebugFileCoverage{
		ProjectCalc: {
			Lines: map[int]coverage.LineStatus{6: coverage.LineExecuted, 11: coverage.LineNotExecuted},
			Functions: map[string]coverage.RawFunction{
				"Calc->add": {
					Branches: map[int]coverage.RawBranch{0: {LineStart: 6, LineEnd: 6, Hit: 1}},
					Paths:    map[int]coverage.RawPath{0: {Path: []int{0}, Hit: 1}},
				},
				"Calc->sub": {
					Branches: map[int]coverage.RawBranch{0: {LineStart: 11, LineEnd: 11, Hit: 0}},
					Paths:    map[int]coverage.RawPath{0: {Path: []int{0}, Hit: 0}},
				},
			},
		},
	})
	require.NoError(t, cc.Append(first, AddTest, true, coverage.Scope{}))
	cc.RecordTest(AddTest, coverage.TestInfo{Size: coverage.SizeSmall, Status: coverage.StatusPassed, Duration: 12 * time.Millisecond})

	second := coverage.FromXdebugWithoutPathCoverage(map[string]map[int]coverage.LineStatus{
		ProjectHelpers: {6: coverage.LineExecuted},
	})
	require.NoError(t, cc.Append(second, TwiceTest, true, coverage.Scope{}))
	cc.RecordTest(TwiceTest, coverage.TestInfo{Size: coverage.SizeMedium, Status: coverage.StatusFailure, Duration: 40 * time.Millisecond})
	return cc
}

// ProjectTree is the report tree of Project
func ProjectTree(t testing.TB) *node.Directory {
	t.Helper()
	root, err := node.Build(Project(t))
	require.NoError(t, err)
	return root
}
