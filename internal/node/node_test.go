package node_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/phpcov/internal/analysis"
	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/node/nodetest"
)

func analysedCalc(t *testing.T) *analysis.FileAnalysis {
	t.Helper()
	return analysis.AnalyseSource(nodetest.CalcFile, []byte(nodetest.CalcSource), analysis.DefaultOptions())
}

func TestBuild_TwoMethodClass(t *testing.T) {
	root := nodetest.CalcTree(t)

	assert.Equal(t, "/src", root.Name())
	assert.Equal(t, "index", root.ID())
	require.Len(t, root.Files(), 1)

	file := root.Files()[0]
	assert.Equal(t, "Calc.php", file.Name())
	assert.Equal(t, "Calc.php", file.ID())
	assert.Equal(t, "/src/Calc.php", file.PathAsString())
	assert.Equal(t, nodetest.CalcFile, file.Source())
	assert.Len(t, file.PathAsArray(), 2)

	s := root.Stats()
	assert.Equal(t, 1, s.Files)
	assert.Equal(t, 2, s.Methods)
	assert.Equal(t, 1, s.TestedMethods)
	assert.Equal(t, 1, s.Classes)
	assert.Equal(t, 0, s.TestedClasses)
	assert.Equal(t, 2, s.ExecutableLines)
	assert.Equal(t, 1, s.ExecutedLines)
	assert.Equal(t, "50.00%", s.Lines().AsString())
	assert.Equal(t, "50.00%", s.TestedMethodsPercent().AsString())
	assert.Equal(t, 14, s.LinesOfCode.LinesOfCode)

	require.Len(t, root.Classes(), 1)
	class := root.Classes()[0]
	assert.Equal(t, "Calc", class.Name)
	assert.Equal(t, 50.0, class.Coverage)
	assert.Equal(t, 2, class.CCN)
	assert.Equal(t, "2.50", class.CRAP.String())
	assert.Equal(t, "Calc.php.html#2", class.Link)

	require.Len(t, class.Methods, 2)
	add, sub := class.Methods[0], class.Methods[1]
	assert.Equal(t, "add", add.Name)
	assert.True(t, add.Tested())
	assert.Equal(t, 100.0, add.Coverage)
	assert.Equal(t, "1", add.CRAP.String())
	assert.Equal(t, "sub", sub.Name)
	assert.False(t, sub.Tested())
	assert.Equal(t, 0.0, sub.Coverage)
	assert.Equal(t, "2", sub.CRAP.String())

	assert.Equal(t, []string{nodetest.AddTest}, file.CoveringTests(6))
	assert.Empty(t, file.CoveringTests(11))
	assert.Nil(t, file.CoveringTests(3))
}

func TestBuild_Project(t *testing.T) {
	root := nodetest.ProjectTree(t)

	assert.Equal(t, "/app/src", root.Name())
	require.Len(t, root.Directories(), 1)
	util := root.Directories()[0]
	assert.Equal(t, "Util", util.Name())
	assert.Equal(t, "Util", util.ID())
	assert.Equal(t, "/app/src/Util", util.PathAsString())

	var names []string
	for _, f := range util.Files() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"Greets.php", "helpers.php"}, names)
	assert.Equal(t, "Util/helpers.php", util.Files()[1].ID())

	children := root.Children()
	require.Len(t, children, 2)
	assert.IsType(t, &node.Directory{}, children[0])
	assert.IsType(t, &node.File{}, children[1])
	assert.Len(t, root.AllFiles(), 3)

	s := root.Stats()
	assert.Equal(t, 3, s.Files)
	assert.Equal(t, 4, s.ExecutableLines)
	assert.Equal(t, 2, s.ExecutedLines)
	assert.Equal(t, 1, s.Classes)
	assert.Equal(t, 1, s.Traits)
	assert.Equal(t, 0, s.TestedTraits)
	assert.Equal(t, 3, s.Methods)
	assert.Equal(t, 1, s.TestedMethods)
	assert.Equal(t, 1, s.Functions)
	assert.Equal(t, 1, s.TestedFunctions)
	assert.Equal(t, 2, s.ExecutableBranches)
	assert.Equal(t, 1, s.ExecutedBranches)
	assert.Equal(t, 2, s.ExecutablePaths)
	assert.Equal(t, 1, s.ExecutedPaths)
	assert.Equal(t, "50.00%", s.TestedFunctionsAndMethodsPercent().AsString())

	require.Len(t, root.Functions(), 1)
	twice := root.Functions()[0]
	assert.Equal(t, "twice", twice.Name)
	assert.Equal(t, `App\Util`, twice.Namespace)
	assert.True(t, twice.Tested())

	require.Len(t, root.Traits(), 1)
	assert.Equal(t, "Greets", root.Traits()[0].Name)
	assert.Equal(t, 0.0, root.Traits()[0].Coverage)

	calc := root.Classes()[0]
	assert.Equal(t, 1, calc.Methods[0].ExecutedBranches)
	assert.Equal(t, 0, calc.Methods[1].ExecutedBranches)
}

func TestDirectory_Invalidation(t *testing.T) {
	root := nodetest.ProjectTree(t)
	util := root.Directories()[0]
	before := root.Stats()
	_ = util.Stats()
	_ = root.Classes()

	calc := root.Files()[0]
	deep := util.AddDirectory("Deep")
	deep.AddFile(node.NewFile("Copy.php", deep, calc.Source(), analysedCalc(t), calc.LineCoverage(), calc.FunctionCoverage(), calc.Tests()))

	after := root.Stats()
	assert.Equal(t, before.Files+1, after.Files)
	assert.Equal(t, before.ExecutableLines+2, after.ExecutableLines)
	assert.Equal(t, 3, util.Stats().Files)
	assert.Len(t, root.Classes(), 2)
	assert.Equal(t, "Util/Deep/Copy.php", deep.Files()[0].ID())
}
