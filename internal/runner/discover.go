package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/analysis"
	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/target"
)

var sizePattern = regexp.MustCompile(`@(small|medium|large)\b|#\[\s*\\?(?:PHPUnit\\Framework\\Attributes\\)?(Small|Medium|Large)\b`)

// Test is one PHPUnit test file and what it declares
type Test struct {
	File    string
	ID      string
	Size    coverage.TestSize
	Targets target.Set
}

// Discover finds test files below paths. A path naming a file is taken as
// is; directories are searched recursively for files ending in suffix.
func Discover(fs afero.Fs, paths []string, suffix string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := fs.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = afero.Walk(fs, p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.HasSuffix(info.Name(), suffix) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", p, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// Load reads a test file. The test id is the first class declared in it,
// or the file name without .php when there is none; the targets are the
// @covers, @uses and attribute declarations of the whole file.
func Load(fs afero.Fs, file string) (Test, error) {
	src, err := afero.ReadFile(fs, file)
	if err != nil {
		return Test{}, fmt.Errorf("failed to read test %s: %w", file, err)
	}
	t := Test{File: file, ID: testID(file, src), Size: coverage.SizeUnknown}
	if m := sizePattern.FindStringSubmatch(string(src)); m != nil {
		t.Size = coverage.TestSize(strings.ToLower(m[1] + m[2]))
	}
	t.Targets, err = target.ParseAnnotations(string(src))
	if err != nil {
		return Test{}, fmt.Errorf("%s: %w", file, err)
	}
	return t, nil
}

// LoadAll loads every file of files
func LoadAll(fs afero.Fs, files []string) ([]Test, error) {
	tests := make([]Test, 0, len(files))
	for _, f := range files {
		t, err := Load(fs, f)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, nil
}

func testID(file string, src []byte) string {
	fa := analysis.AnalyseSource(file, src, analysis.DefaultOptions())
	if len(fa.Classes) > 0 {
		return fa.Classes[0].NamespacedName
	}
	return strings.TrimSuffix(filepath.Base(file), ".php")
}
