package analysis

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

func TestParsingAnalyser_MissingFile(t *testing.T) {
	a := NewParsingAnalyser(afero.NewMemMapFs(), DefaultOptions())
	if _, err := a.Analyse("/nope.php"); err == nil {
		t.Error("Analyse() error = nil, want error for missing file")
	}
}

func TestCachingAnalyser_Memoizes(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/src/a.php", []byte("<?php\nfunction a() {\n    return 1;\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := NewCachingAnalyser(fs, DefaultOptions(), nil)

	first, err := a.Analyse("/src/a.php")
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	// the memory cache must not notice source changes
	if err := afero.WriteFile(fs, "/src/a.php", []byte("<?php\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := a.Analyse("/src/a.php")
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	if first != second {
		t.Error("second Analyse() returned a fresh analysis, want cached one")
	}
}

func TestCachingAnalyser_DiskCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := []byte(greeterSource)
	if err := afero.WriteFile(fs, "/src/Greeter.php", src, 0o644); err != nil {
		t.Fatal(err)
	}
	disk, err := OpenDiskCache(fs, "/cache")
	if err != nil {
		t.Fatalf("OpenDiskCache() error = %v", err)
	}

	want, err := NewCachingAnalyser(fs, DefaultOptions(), disk).Analyse("/src/Greeter.php")
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	entries, _ := afero.ReadDir(fs, "/cache")
	if len(entries) != 1 {
		t.Fatalf("cache holds %d entries, want 1", len(entries))
	}

	// a fresh analyser must be served from disk
	got, err := NewCachingAnalyser(fs, DefaultOptions(), disk).Analyse("/src/Greeter.php")
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	if !reflect.DeepEqual(got.IgnoredLines, want.IgnoredLines) {
		t.Errorf("IgnoredLines = %v, want %v", got.IgnoredLines, want.IgnoredLines)
	}
	if !reflect.DeepEqual(got.ExecutableLines, want.ExecutableLines) {
		t.Errorf("ExecutableLines = %v, want %v", got.ExecutableLines, want.ExecutableLines)
	}
	if len(got.Classes) != 1 || got.Classes[0].Methods[0].Signature != want.Classes[0].Methods[0].Signature {
		t.Errorf("Classes = %+v", got.Classes)
	}

	// different options produce a different key
	if _, err := NewCachingAnalyser(fs, Options{}, disk).Analyse("/src/Greeter.php"); err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	entries, _ = afero.ReadDir(fs, "/cache")
	if len(entries) != 2 {
		t.Errorf("cache holds %d entries, want 2", len(entries))
	}
}

func TestOpenDiskCache_NotADirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/cache", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenDiskCache(fs, "/cache"); err == nil {
		t.Error("OpenDiskCache() error = nil, want error")
	}
}

func TestDiskCache_Miss(t *testing.T) {
	disk, err := OpenDiskCache(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatal(err)
	}
	fa, ok, err := disk.Get(Digest{1})
	if err != nil || ok || fa != nil {
		t.Errorf("Get() = %v, %v, %v, want nil, false, nil", fa, ok, err)
	}

	var nilCache *DiskCache
	if err := nilCache.Put(Digest{}, &FileAnalysis{}); err != nil {
		t.Errorf("nil Put() error = %v", err)
	}
}

func TestDiskCache_ConcurrentPut(t *testing.T) {
	fs := afero.NewMemMapFs()
	fa := &FileAnalysis{IgnoredLines: []int{1, 2}}
	var wg sync.WaitGroup
	for range 4 {
		disk, err := OpenDiskCache(fs, "/cache")
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if err := disk.Put(Digest{7}, fa); err != nil {
					t.Errorf("Put() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	entries, _ := afero.ReadDir(fs, "/cache")
	if len(entries) != 1 {
		t.Errorf("cache holds %d entries, want 1 without leftover temp files", len(entries))
	}
	disk, _ := OpenDiskCache(fs, "/cache")
	got, ok, err := disk.Get(Digest{7})
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got.IgnoredLines, fa.IgnoredLines) {
		t.Errorf("IgnoredLines = %v, want %v", got.IgnoredLines, fa.IgnoredLines)
	}
}

func TestCachingAnalyser_Warm(t *testing.T) {
	fs := afero.NewMemMapFs()
	var files []string
	for i := range 8 {
		path := fmt.Sprintf("/src/f%d.php", i)
		src := fmt.Sprintf("<?php\nfunction f%d() {\n    return %d;\n}\n", i, i)
		if err := afero.WriteFile(fs, path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
		files = append(files, path)
	}
	a := NewCachingAnalyser(fs, DefaultOptions(), nil)
	if err := a.Warm(context.Background(), files, 3); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if len(a.memory) != len(files) {
		t.Errorf("memory holds %d analyses, want %d", len(a.memory), len(files))
	}

	if err := a.Warm(context.Background(), append(files, "/src/missing.php"), 2); err == nil {
		t.Error("Warm() error = nil, want error for missing file")
	}
}

func TestEmptyLineCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/a.php", []byte("<?php\n\n  \n$a = 1;\n\t\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewEmptyLineCache(fs)
	want := []int{2, 3, 5, 6}
	if got := c.EmptyLines("/a.php"); !reflect.DeepEqual(got, want) {
		t.Errorf("EmptyLines() = %v, want %v", got, want)
	}
	if got := c.EmptyLines("/missing.php"); got != nil {
		t.Errorf("EmptyLines(missing) = %v, want nil", got)
	}
}
