package serialized

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/node/nodetest"
)

func TestWriteRead(t *testing.T) {
	cc := nodetest.Calc(t)
	fs := cc.Filter().Fs()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Writer{Time: created}.Write(fs, cc, "/out/calc.cov"))

	s, err := Decode(fs, "/out/calc.cov")
	require.NoError(t, err)
	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.True(t, created.Equal(s.Created))
	assert.Equal(t, []string{nodetest.CalcFile}, s.Files)

	restored, err := Read(fs, "/out/calc.cov", fs)
	require.NoError(t, err)
	data, err := restored.Data(true)
	require.NoError(t, err)
	lines, ok := data.FileLines(nodetest.CalcFile)
	require.True(t, ok)
	assert.Equal(t, []string{nodetest.AddTest}, lines[6].IDs)
	assert.Equal(t, 0, lines[11].Len())
	assert.NotNil(t, lines[11])

	info, ok := restored.Tests().Get(nodetest.AddTest)
	require.True(t, ok)
	assert.Equal(t, coverage.TestInfo{Size: coverage.SizeSmall, Status: coverage.StatusPassed, Duration: 12 * time.Millisecond}, info)

	// the restored facade reports the same tree
	root, err := node.Build(restored)
	require.NoError(t, err)
	assert.Equal(t, 1, root.Stats().ExecutedLines)
	assert.Equal(t, 2, root.Stats().ExecutableLines)
}

func TestRead_Merge(t *testing.T) {
	project := nodetest.Project(t)
	fs := project.Filter().Fs()
	require.NoError(t, Writer{}.Write(fs, project, "/out/a.cov"))

	restored, err := Read(fs, "/out/a.cov", fs)
	require.NoError(t, err)
	merged := coverage.New(nil, coverage.NewFilter(fs))
	merged.Merge(restored)
	merged.Merge(restored)

	assert.Equal(t, []string{nodetest.AddTest, nodetest.TwiceTest}, merged.Tests().IDs())
	data, err := merged.Data(true)
	require.NoError(t, err)
	lines, _ := data.FileLines(nodetest.ProjectHelpers)
	assert.Equal(t, []string{nodetest.TwiceTest}, lines[6].IDs)
	fn := data.FileFunctions(nodetest.ProjectCalc)["Calc->add"]
	assert.Equal(t, []string{nodetest.AddTest}, fn.Branches[0].Hit)
}

func TestDecode_Invalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/junk.cov", []byte("not msgpack"), 0o644))
	_, err := Decode(fs, "/junk.cov")
	assert.ErrorIs(t, err, ErrUnsupportedSnapshot)

	_, err = Decode(fs, "/missing.cov")
	assert.Error(t, err)
}
