package analysis

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Analyser produces the static analysis of a source file
type Analyser interface {
	Analyse(path string) (*FileAnalysis, error)
}

// ParsingAnalyser reads and parses a file on every call
type ParsingAnalyser struct {
	fs   afero.Fs
	opts Options
}

// NewParsingAnalyser creates an analyser reading sources from fs
func NewParsingAnalyser(fs afero.Fs, opts Options) *ParsingAnalyser {
	return &ParsingAnalyser{fs: fs, opts: opts}
}

// Options returns the options the analyser was created with
func (a *ParsingAnalyser) Options() Options {
	return a.opts
}

// Analyse reads path and returns its analysis
func (a *ParsingAnalyser) Analyse(path string) (*FileAnalysis, error) {
	src, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return AnalyseSource(path, src, a.opts), nil
}

// CachingAnalyser memoizes analyses per path for its own lifetime and
// optionally persists them in a DiskCache across processes.
type CachingAnalyser struct {
	fs   afero.Fs
	opts Options
	next *ParsingAnalyser
	disk *DiskCache

	mu     sync.Mutex
	memory map[string]*FileAnalysis
}

// NewCachingAnalyser creates a caching analyser. disk may be nil.
func NewCachingAnalyser(fs afero.Fs, opts Options, disk *DiskCache) *CachingAnalyser {
	return &CachingAnalyser{
		fs:     fs,
		opts:   opts,
		next:   NewParsingAnalyser(fs, opts),
		disk:   disk,
		memory: make(map[string]*FileAnalysis),
	}
}

// Analyse returns the cached analysis of path, computing it on first use
func (a *CachingAnalyser) Analyse(path string) (*FileAnalysis, error) {
	a.mu.Lock()
	if fa, ok := a.memory[path]; ok {
		a.mu.Unlock()
		return fa, nil
	}
	a.mu.Unlock()

	src, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var key Digest
	if a.disk != nil {
		key = a.cacheKey(path, src)
		if fa, ok, err := a.disk.Get(key); err != nil {
			slog.Warn("static analysis cache read failed", "path", path, "error", err)
		} else if ok {
			a.store(path, fa)
			return fa, nil
		}
	}

	fa := AnalyseSource(path, src, a.opts)
	if a.disk != nil {
		if err := a.disk.Put(key, fa); err != nil {
			slog.Warn("static analysis cache write failed", "path", path, "error", err)
		}
	}
	a.store(path, fa)
	return fa, nil
}

func (a *CachingAnalyser) store(path string, fa *FileAnalysis) {
	a.mu.Lock()
	a.memory[path] = fa
	a.mu.Unlock()
}

func (a *CachingAnalyser) cacheKey(path string, src []byte) Digest {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%t\x00%t\x00", path, a.opts.UseAnnotationsForIgnoringCode, a.opts.IgnoreDeprecatedCode)
	h.Write(src)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Warm analyses files in parallel so later lookups hit the cache.
// jobs <= 0 uses one worker per CPU.
func (a *CachingAnalyser) Warm(ctx context.Context, files []string, jobs int) error {
	if len(files) == 0 {
		return nil
	}
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for _, path := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			_, err := a.Analyse(path)
			return err
		})
	}
	return g.Wait()
}

// EmptyLineCache remembers which lines of a file are blank. Entries are
// filled on first use and never invalidated, so one cache must not
// outlive a run in which sources may change.
type EmptyLineCache struct {
	fs afero.Fs

	mu    sync.Mutex
	lines map[string][]int
}

// NewEmptyLineCache creates an empty cache reading sources from fs
func NewEmptyLineCache(fs afero.Fs) *EmptyLineCache {
	return &EmptyLineCache{fs: fs, lines: make(map[string][]int)}
}

// EmptyLines returns the 1-based numbers of whitespace-only lines of path.
// A missing file has no empty lines.
func (c *EmptyLineCache) EmptyLines(path string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lines, ok := c.lines[path]; ok {
		return lines
	}
	var lines []int
	if src, err := afero.ReadFile(c.fs, path); err == nil {
		lines = blankLines(src)
	}
	c.lines[path] = lines
	return lines
}

func blankLines(src []byte) []int {
	var out []int
	line := 1
	blank := true
	for _, b := range src {
		switch b {
		case '\n':
			if blank {
				out = append(out, line)
			}
			line++
			blank = true
		case ' ', '\t', '\r', '\v', '\f', 0:
		default:
			blank = false
		}
	}
	if blank {
		out = append(out, line)
	}
	return out
}
