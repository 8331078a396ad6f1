package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

const (
	// RuntimeFile describes the PHP runtime and its loaded extensions
	RuntimeFile = "runtime.json"
	// ControlFile tells the prepend script which engine to start and how
	ControlFile = "control.json"
)

// Runtime is the content of RuntimeFile as the prepend script writes it
type Runtime struct {
	PHPVersion string       `json:"php_version"`
	SAPI       string       `json:"sapi"`
	Extensions []EngineInfo `json:"extensions"`
}

// Control is the content of ControlFile
type Control struct {
	Engine string   `json:"engine"`
	Flags  []string `json:"flags"`
}

// DumpEngine exchanges coverage with PHP processes through a directory.
// Start writes ControlFile; every traced process then dumps its coverage as
// one JSON file, which CodeCoverage reads back in name order.
type DumpEngine struct {
	fs   afero.Fs
	dir  string
	info EngineInfo
}

// NewDumpEngine creates an engine exchanging data below dir
func NewDumpEngine(fsys afero.Fs, dir string, info EngineInfo) *DumpEngine {
	return &DumpEngine{fs: fsys, dir: dir, info: info}
}

// OpenDumpEngines reads RuntimeFile from dir and returns one engine per
// extension listed there. A missing file yields no engines.
func OpenDumpEngines(fsys afero.Fs, dir string) (Engines, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(dir, RuntimeFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime description: %w", err)
	}
	var rt Runtime
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RuntimeFile, err)
	}
	engines := make(Engines, 0, len(rt.Extensions))
	for _, ext := range rt.Extensions {
		if ext.SAPI == "" {
			ext.SAPI = rt.SAPI
		}
		engines = append(engines, NewDumpEngine(fsys, dir, ext))
	}
	return engines, nil
}

// Dir is the exchange directory
func (e *DumpEngine) Dir() string { return e.dir }

// Info describes the extension
func (e *DumpEngine) Info() EngineInfo { return e.info }

// StartCodeCoverage clears stale payloads and writes ControlFile
func (e *DumpEngine) StartCodeCoverage(flags Flag) error {
	if err := e.fs.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory %s: %w", e.dir, err)
	}
	if err := e.removePayloads(); err != nil {
		return err
	}
	data, err := json.Marshal(Control{Engine: e.info.Name, Flags: flags.names()})
	if err != nil {
		return err
	}
	if err := afero.WriteFile(e.fs, filepath.Join(e.dir, ControlFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ControlFile, err)
	}
	slog.Debug("engine started", "engine", e.info.Name, "dir", e.dir, "flags", flags.String())
	return nil
}

// CodeCoverage returns the payloads dumped since the last start
func (e *DumpEngine) CodeCoverage() ([]Payload, error) {
	files, err := e.payloadFiles()
	if err != nil {
		return nil, err
	}
	payloads := make([]Payload, 0, len(files))
	for _, f := range files {
		data, err := afero.ReadFile(e.fs, f)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		payloads = append(payloads, data)
	}
	return payloads, nil
}

// StopCodeCoverage removes ControlFile and the payloads
func (e *DumpEngine) StopCodeCoverage() error {
	if err := e.fs.Remove(filepath.Join(e.dir, ControlFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", ControlFile, err)
	}
	return e.removePayloads()
}

func (e *DumpEngine) payloadFiles() ([]string, error) {
	matches, err := afero.Glob(e.fs, filepath.Join(e.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		switch filepath.Base(m) {
		case RuntimeFile, ControlFile:
			continue
		}
		if strings.HasPrefix(filepath.Base(m), ".") {
			continue
		}
		out = append(out, m)
	}
	slices.Sort(out)
	return out, nil
}

func (e *DumpEngine) removePayloads() error {
	files, err := e.payloadFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.fs.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove payload: %w", err)
		}
	}
	return nil
}
