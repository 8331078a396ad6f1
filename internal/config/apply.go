package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/coverage"
)

// Filter builds the file filter the source section describes. Relative
// entries are resolved against base.
func (s Source) Filter(fs afero.Fs, base string) (*coverage.Filter, error) {
	abs := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = resolve(base, p)
		}
		return out
	}
	f := coverage.NewFilter(fs)
	for _, dir := range abs(s.IncludeDirectories) {
		if err := f.IncludeDirectory(dir, s.Suffix, ""); err != nil {
			return nil, fmt.Errorf("failed to include %s: %w", dir, err)
		}
	}
	f.IncludeFiles(abs(s.IncludeFiles))
	for _, p := range abs(s.IncludePatterns) {
		if err := f.IncludePattern(p); err != nil {
			return nil, fmt.Errorf("failed to include %s: %w", p, err)
		}
	}
	for _, dir := range abs(s.ExcludeDirectories) {
		if err := f.ExcludeDirectory(dir, s.Suffix, ""); err != nil {
			return nil, fmt.Errorf("failed to exclude %s: %w", dir, err)
		}
	}
	for _, file := range abs(s.ExcludeFiles) {
		f.ExcludeFile(file)
	}
	for _, p := range abs(s.ExcludePatterns) {
		if err := f.ExcludePattern(p); err != nil {
			return nil, fmt.Errorf("failed to exclude %s: %w", p, err)
		}
	}
	return f, nil
}

// resolve makes p absolute below base
func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Options returns the facade options of the coverage section
func (c Coverage) Options() []coverage.Option {
	if c.CacheDir == "" {
		return nil
	}
	return []coverage.Option{coverage.WithCacheDirectory(c.CacheDir)}
}

// Apply switches the facade settings of the coverage section on cc.
// Path coverage and dead code detection fail on drivers without them and
// are left alone on facades without a driver.
func (c Coverage) Apply(cc *coverage.CodeCoverage) error {
	if c.IncludeUncovered {
		cc.IncludeUncoveredFiles()
	} else {
		cc.ExcludeUncoveredFiles()
	}
	if c.Annotations {
		cc.EnableAnnotationsForIgnoringCode()
	} else {
		cc.DisableAnnotationsForIgnoringCode()
	}
	if c.IgnoreDeprecated {
		cc.IgnoreDeprecatedCode()
	} else {
		cc.DoNotIgnoreDeprecatedCode()
	}
	if c.CheckUnintentional {
		cc.EnableCheckForUnintentionallyCoveredCode()
	} else {
		cc.DisableCheckForUnintentionallyCoveredCode()
	}
	if c.ExecutableLinesFilter {
		cc.EnableExecutableLinesFilter()
	} else {
		cc.DisableExecutableLinesFilter()
	}
	if cc.Driver() == nil {
		return nil
	}
	if c.PathCoverage {
		if err := cc.EnableBranchAndPathCoverage(); err != nil {
			return err
		}
	}
	if c.DeadCode {
		if err := cc.DetectDeadCode(); err != nil {
			return err
		}
	}
	return nil
}
