package coverage

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// Filter decides which source files count. Only included files count and
// an exclusion always wins over an inclusion.
type Filter struct {
	fs       afero.Fs
	included map[string]bool
	excluded map[string]bool
	isFile   map[string]bool
}

// NewFilter creates an empty filter resolving paths on fs
func NewFilter(fs afero.Fs) *Filter {
	return &Filter{
		fs:       fs,
		included: make(map[string]bool),
		excluded: make(map[string]bool),
		isFile:   make(map[string]bool),
	}
}

// Clone returns an independent copy of the filter
func (f *Filter) Clone() *Filter {
	return &Filter{
		fs:       f.fs,
		included: maps.Clone(f.included),
		excluded: maps.Clone(f.excluded),
		isFile:   maps.Clone(f.isFile),
	}
}

// Fs returns the filesystem the filter checks files on
func (f *Filter) Fs() afero.Fs {
	return f.fs
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// IncludeFile adds one file. Files that do not exist are ignored.
func (f *Filter) IncludeFile(path string) {
	path = normalize(path)
	if !f.IsFile(path) {
		return
	}
	f.included[path] = true
	delete(f.excluded, path)
}

// IncludeFiles adds every file of paths
func (f *Filter) IncludeFiles(paths []string) {
	for _, p := range paths {
		f.IncludeFile(p)
	}
}

// IncludeDirectory adds every file below dir whose name has the given
// prefix and suffix. An empty suffix means ".php".
func (f *Filter) IncludeDirectory(dir, suffix, prefix string) error {
	files, err := f.filesIn(dir, suffix, prefix)
	if err != nil {
		return err
	}
	f.IncludeFiles(files)
	return nil
}

// IncludePattern adds every file matching a doublestar glob such as
// "/app/src/**/*.php"
func (f *Filter) IncludePattern(pattern string) error {
	files, err := f.filesMatching(pattern)
	if err != nil {
		return err
	}
	f.IncludeFiles(files)
	return nil
}

// ExcludeFile removes one file for good
func (f *Filter) ExcludeFile(path string) {
	path = normalize(path)
	delete(f.included, path)
	f.excluded[path] = true
}

// ExcludeDirectory removes every file below dir with the given prefix and suffix
func (f *Filter) ExcludeDirectory(dir, suffix, prefix string) error {
	files, err := f.filesIn(dir, suffix, prefix)
	if err != nil {
		return err
	}
	for _, p := range files {
		f.ExcludeFile(p)
	}
	return nil
}

// ExcludePattern removes every file matching a doublestar glob
func (f *Filter) ExcludePattern(pattern string) error {
	files, err := f.filesMatching(pattern)
	if err != nil {
		return err
	}
	for _, p := range files {
		f.ExcludeFile(p)
	}
	return nil
}

func (f *Filter) filesIn(dir, suffix, prefix string) ([]string, error) {
	if suffix == "" {
		suffix = ".php"
	}
	dir = normalize(dir)
	var out []string
	err := afero.Walk(f.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}
	return out, nil
}

func (f *Filter) filesMatching(pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	base, _ := doublestar.SplitPattern(pattern)
	root := normalize(filepath.FromSlash(base))
	if !filepath.IsAbs(filepath.FromSlash(pattern)) {
		pattern = filepath.ToSlash(filepath.Join(root, strings.TrimPrefix(pattern, base)))
	}
	if _, err := f.fs.Stat(root); err != nil {
		return nil, nil
	}

	var out []string
	err := afero.Walk(f.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ok, err := doublestar.Match(pattern, filepath.ToSlash(path))
		if err != nil {
			return err
		}
		if ok {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to match pattern %s: %w", pattern, err)
	}
	return out, nil
}

// IsFile reports whether path names a regular file on disk. Pseudo files
// reported by the engine, such as eval()'d code, are never files.
func (f *Filter) IsFile(path string) bool {
	if ok, cached := f.isFile[path]; cached {
		return ok
	}
	ok := !pseudoFile(path)
	if ok {
		info, err := f.fs.Stat(path)
		ok = err == nil && info.Mode().IsRegular()
	}
	f.isFile[path] = ok
	return ok
}

func pseudoFile(path string) bool {
	if path == "-" || strings.HasPrefix(path, "vfs://") {
		return true
	}
	for _, marker := range []string{
		"xdebug://debug-eval",
		"eval()'d code",
		"runtime-created function",
		"runkit created function",
		"assert code",
		"regexp code",
		"Standard input code",
	} {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether path does not count: it was never included,
// it was excluded, or it is not a file on disk
func (f *Filter) IsExcluded(path string) bool {
	if f.excluded[path] || !f.included[path] {
		return true
	}
	return !f.IsFile(path)
}

// Files returns the included files in sorted order
func (f *Filter) Files() []string {
	return slices.Sorted(maps.Keys(f.included))
}

// IsEmpty reports whether no file has been included
func (f *Filter) IsEmpty() bool {
	return len(f.included) == 0
}
