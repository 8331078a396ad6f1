// Package driver adapts the tracing engines of a PHP runtime (Xdebug, PCOV
// and PHPDBG) to the coverage.Driver contract.
package driver

import (
	"strings"
)

// Flag selects what an engine instruments when coverage starts
type Flag int

const (
	// FlagUnused reports executable lines that did not run
	FlagUnused Flag = 1 << iota
	// FlagDeadCode reports lines that can never run
	FlagDeadCode
	// FlagBranchCheck traces branches and paths
	FlagBranchCheck
)

func (f Flag) names() []string {
	var out []string
	if f&FlagUnused != 0 {
		out = append(out, "unused")
	}
	if f&FlagDeadCode != 0 {
		out = append(out, "dead_code")
	}
	if f&FlagBranchCheck != 0 {
		out = append(out, "branch_check")
	}
	return out
}

func (f Flag) String() string {
	if names := f.names(); len(names) > 0 {
		return strings.Join(names, "|")
	}
	return "none"
}

// EngineInfo describes the runtime an engine lives in
type EngineInfo struct {
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Loaded   bool              `json:"loaded"`
	SAPI     string            `json:"sapi"`
	Settings map[string]string `json:"settings"`
}

// Setting returns an ini setting, "" when unset
func (i EngineInfo) Setting(name string) string {
	return i.Settings[name]
}

// enabled reads an ini switch the way PHP does
func (i EngineInfo) enabled(name string) bool {
	switch strings.ToLower(strings.TrimSpace(i.Setting(name))) {
	case "1", "on", "yes", "true":
		return true
	}
	return false
}

// Payload is what one traced process reported, in the engine's own JSON shape
type Payload []byte

// Engine is the tracing extension as the Go side sees it: the start, get
// and stop calls of the extension API.
type Engine interface {
	Info() EngineInfo
	StartCodeCoverage(flags Flag) error
	CodeCoverage() ([]Payload, error)
	StopCodeCoverage() error
}

// Engines is the set of engines a runtime offers
type Engines []Engine

// Find returns the loaded engine called name
func (e Engines) Find(name string) (Engine, bool) {
	for _, engine := range e {
		info := engine.Info()
		if strings.EqualFold(info.Name, name) && info.Loaded {
			return engine, true
		}
	}
	return nil, false
}
