package node

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/user/phpcov/internal/coverage"
)

// Build turns the data a facade collected into a report tree. The root is
// named after the directory all files share; files that no longer exist
// are left out.
func Build(cc *coverage.CodeCoverage) (*Directory, error) {
	data, err := cc.Data(false)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, file := range data.CoveredFiles() {
		if !cc.Filter().IsFile(file) {
			slog.Debug("skipping missing file", "file", file)
			continue
		}
		files = append(files, file)
	}

	common, rel := reducePaths(files)
	root := NewDirectory(common, nil)
	dirs := map[string]*Directory{"": root}
	var dirFor func(path string) *Directory
	dirFor = func(path string) *Directory {
		if d, ok := dirs[path]; ok {
			return d
		}
		parent, name := "", path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			parent, name = path[:i], path[i+1:]
		}
		d := dirFor(parent).AddDirectory(name)
		dirs[path] = d
		return d
	}

	analyser := cc.Analyser()
	tests := cc.Tests()
	for i, source := range files {
		fa, err := analyser.Analyse(source)
		if err != nil {
			return nil, fmt.Errorf("failed to analyse %s: %w", source, err)
		}
		dir, name := "", rel[i]
		if j := strings.LastIndex(rel[i], "/"); j >= 0 {
			dir, name = rel[i][:j], rel[i][j+1:]
		}
		parent := dirFor(dir)
		lines, _ := data.FileLines(source)
		parent.AddFile(NewFile(name, parent, source, fa, lines, data.FileFunctions(source), tests))
	}
	return root, nil
}

// reducePaths strips the longest directory prefix the paths share. It
// returns that prefix and the remaining slash separated paths.
func reducePaths(paths []string) (string, []string) {
	if len(paths) == 0 {
		return ".", nil
	}
	if len(paths) == 1 {
		return filepath.Dir(paths[0]), []string{filepath.Base(paths[0])}
	}

	parts := make([][]string, len(paths))
	for i, p := range paths {
		parts[i] = strings.Split(filepath.ToSlash(p), "/")
	}
	n := 0
	for {
		// never consume the file name itself
		if n >= len(parts[0])-1 {
			break
		}
		same := true
		for _, p := range parts[1:] {
			if n >= len(p)-1 || p[n] != parts[0][n] {
				same = false
				break
			}
		}
		if !same {
			break
		}
		n++
	}

	common := strings.Join(parts[0][:n], "/")
	if common == "" && n > 0 {
		common = "/"
	}
	rel := make([]string, len(paths))
	for i, p := range parts {
		rel[i] = strings.Join(p[n:], "/")
	}
	return filepath.FromSlash(common), rel
}
