// Package serialized stores a facade's collected data in a msgpack
// snapshot that a later process reads back to merge or report.
package serialized

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/report"
)

// bump when the snapshot layout changes
const schemaVersion uint16 = 1

// ErrUnsupportedSnapshot is returned for files that are not snapshots of
// this schema
var ErrUnsupportedSnapshot = errors.New("unsupported coverage snapshot")

// TestEntry is one ledger row of a snapshot
type TestEntry struct {
	ID       string
	Size     coverage.TestSize
	Status   coverage.TestStatus
	Duration time.Duration
}

// Snapshot is the serialized form of a facade
type Snapshot struct {
	Schema    uint16
	ID        string
	Created   time.Time
	Files     []string
	Lines     map[string]map[int]*coverage.LineTests
	Functions map[string]map[string]coverage.ProcessedFunction
	Tests     []TestEntry
}

// Writer stores snapshots; Time defaults to now
type Writer struct {
	Time time.Time
}

// Snapshot captures the data, filter and ledger of cc
func (w Writer) Snapshot(cc *coverage.CodeCoverage) (*Snapshot, error) {
	data, err := cc.Data(true)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{
		Schema:    schemaVersion,
		ID:        uuid.NewString(),
		Created:   report.Time(w.Time).UTC(),
		Files:     cc.Filter().Files(),
		Lines:     data.LineCoverage(),
		Functions: data.FunctionCoverage(),
	}
	tests := cc.Tests()
	for _, id := range tests.IDs() {
		info, _ := tests.Get(id)
		s.Tests = append(s.Tests, TestEntry{ID: id, Size: info.Size, Status: info.Status, Duration: info.Duration})
	}
	return s, nil
}

// Write stores the snapshot of cc in the file target
func (w Writer) Write(fs afero.Fs, cc *coverage.CodeCoverage, target string) error {
	s, err := w.Snapshot(cc)
	if err != nil {
		return err
	}
	out, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return report.WriteFile(fs, target, out)
}

// Decode parses a snapshot file
func Decode(fs afero.Fs, path string) (*Snapshot, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedSnapshot, path, err)
	}
	if s.Schema != schemaVersion {
		return nil, fmt.Errorf("%w: %s has schema %d, want %d", ErrUnsupportedSnapshot, path, s.Schema, schemaVersion)
	}
	return &s, nil
}

// Read restores the facade stored at path. Sources are looked up on
// sources; opts configure the new facade.
func Read(fs afero.Fs, path string, sources afero.Fs, opts ...coverage.Option) (*coverage.CodeCoverage, error) {
	s, err := Decode(fs, path)
	if err != nil {
		return nil, err
	}
	return s.Facade(sources, opts...), nil
}

// Facade restores the facade the snapshot was taken of
func (s *Snapshot) Facade(sources afero.Fs, opts ...coverage.Option) *coverage.CodeCoverage {
	filter := coverage.NewFilter(sources)
	filter.IncludeFiles(s.Files)

	cc := coverage.New(nil, filter, opts...)
	cc.SetData(coverage.NewProcessedDataFrom(s.Lines, s.Functions))
	tests := coverage.NewTests()
	for _, t := range s.Tests {
		tests.Set(t.ID, coverage.TestInfo{Size: t.Size, Status: t.Status, Duration: t.Duration})
	}
	cc.SetTests(tests)
	return cc
}
