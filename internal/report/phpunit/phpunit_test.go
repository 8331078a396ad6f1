package phpunit

import (
	"encoding/xml"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/node/nodetest"
)

func render(t *testing.T) afero.Fs {
	t.Helper()
	cc := nodetest.Calc(t)
	root, err := node.Build(cc)
	require.NoError(t, err)
	fs := cc.Filter().Fs()
	r := Renderer{Build: BuildInfo{
		Time:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Version:        "1.0.0",
		RuntimeName:    "PHP",
		RuntimeVersion: "8.3.4",
		DriverName:     "xdebug",
		DriverVersion:  "3.3.1",
	}}
	require.NoError(t, r.Write(fs, root, "/out/xml"))
	return fs
}

func readXML(t *testing.T, fs afero.Fs, path string, v any) {
	t.Helper()
	out, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.NoError(t, xml.Unmarshal(out, v))
}

func TestWrite_Index(t *testing.T) {
	fs := render(t)
	var index indexXML
	readXML(t, fs, "/out/xml/index.xml", &index)

	assert.Equal(t, Namespace, index.XMLName.Space)
	assert.Equal(t, "Sun Mar 1 12:00:00 UTC 2026", index.Build.Time)
	assert.Equal(t, "8.3.4", index.Build.Runtime.Version)
	assert.Equal(t, "/src", index.Project.Source)
	assert.Equal(t, []testXML{{Name: nodetest.AddTest, Size: "small", Result: 0, Status: "success"}}, index.Project.Tests)

	dir := index.Project.Directory
	assert.Equal(t, "/", dir.Name)
	assert.Equal(t, linesXML{Total: 14, Comments: 0, Code: 14, Executable: 2, Executed: 1, Percent: "50.00"}, dir.Totals.Lines)
	assert.Equal(t, countXML{Count: 2, Tested: 1, Percent: "50.00"}, dir.Totals.Methods)
	assert.Equal(t, countXML{Count: 1, Tested: 0, Percent: "0.00"}, dir.Totals.Classes)
	assert.Equal(t, countXML{Percent: "0"}, dir.Totals.Functions)
	require.Len(t, dir.Files, 1)
	assert.Equal(t, "Calc.php", dir.Files[0].Name)
	assert.Equal(t, "Calc.php.xml", dir.Files[0].Href)
}

func TestWrite_File(t *testing.T) {
	fs := render(t)
	var doc fileDocXML
	readXML(t, fs, "/out/xml/Calc.php.xml", &doc)

	f := doc.File
	assert.Equal(t, "Calc.php", f.Name)
	assert.Equal(t, "/", f.Path)
	require.Len(t, f.Classes, 1)
	class := f.Classes[0]
	assert.Equal(t, "Calc", class.Name)
	assert.Equal(t, 2, class.Start)
	assert.Equal(t, "2.50", class.Crap)
	require.Len(t, class.Methods, 2)
	assert.Equal(t, methodXML{Name: "add", Signature: class.Methods[0].Signature, Start: 4, End: 7, Crap: "1", Executable: 1, Executed: 1, Coverage: "100"}, class.Methods[0])
	assert.Equal(t, "0", class.Methods[1].Coverage)

	assert.Equal(t, []coveredLineXML{{Nr: 6, Covered: []coveredXML{{By: nodetest.AddTest}}}}, f.Coverage)

	require.Len(t, f.Source, 13)
	assert.Equal(t, []tokenXML{{Name: "T_OPEN_TAG", Text: "<?php"}}, f.Source[0].Tokens)
	assert.Equal(t, 6, f.Source[5].No)
}

func TestWrite_Nested(t *testing.T) {
	cc := nodetest.Project(t)
	root, err := node.Build(cc)
	require.NoError(t, err)
	fs := cc.Filter().Fs()
	require.NoError(t, Renderer{}.Write(fs, root, "/out"))

	var index indexXML
	readXML(t, fs, "/out/index.xml", &index)
	require.Len(t, index.Project.Directory.Directories, 1)
	util := index.Project.Directory.Directories[0]
	assert.Equal(t, "Util", util.Name)
	require.Len(t, util.Files, 2)
	assert.Equal(t, "Util/helpers.php.xml", util.Files[1].Href)

	var doc fileDocXML
	readXML(t, fs, "/out/Util/helpers.php.xml", &doc)
	assert.Equal(t, "/Util", doc.File.Path)
	require.Len(t, doc.File.Functions, 1)
	assert.Equal(t, "twice", doc.File.Functions[0].Name)

	var greets fileDocXML
	readXML(t, fs, "/out/Util/Greets.php.xml", &greets)
	require.Len(t, greets.File.Traits, 1)
	assert.Equal(t, "Greets", greets.File.Traits[0].Name)
}
