package driver

import (
	"strings"

	"github.com/user/phpcov/internal/coverage"
)

const xdebugMinimumVersion = "2.2.1"

// Xdebug drives the Xdebug extension. It is the only engine that traces
// branches and paths and reports dead code.
type Xdebug struct {
	capabilities
	engine Engine
}

// NewXdebug checks that engine is a usable Xdebug: loaded, recent enough
// and with coverage enabled in its mode settings
func NewXdebug(engine Engine) (*Xdebug, error) {
	info := engine.Info()
	if !info.Loaded {
		return nil, &ExtensionNotLoadedError{Extension: "xdebug"}
	}
	if compareVersions(info.Version, xdebugMinimumVersion) < 0 {
		return nil, &WrongVersionError{Extension: "xdebug", Version: info.Version, Minimum: xdebugMinimumVersion}
	}
	if compareVersions(info.Version, "3") >= 0 {
		if !xdebugModeHasCoverage(info) {
			return nil, ErrXdebugNotEnabled
		}
	} else if _, set := info.Settings["xdebug.coverage_enable"]; set && !info.enabled("xdebug.coverage_enable") {
		return nil, ErrXdebug2NotEnabled
	}
	return &Xdebug{
		capabilities: capabilities{canBranch: true, canDeadCode: true},
		engine:       engine,
	}, nil
}

// XDEBUG_MODE takes precedence over the ini setting
func xdebugModeHasCoverage(info EngineInfo) bool {
	mode := info.Setting("XDEBUG_MODE")
	if mode == "" {
		mode = info.Setting("xdebug.mode")
	}
	for _, m := range strings.Split(mode, ",") {
		if strings.TrimSpace(m) == "coverage" {
			return true
		}
	}
	return false
}

func (d *Xdebug) Name() string { return "Xdebug " + d.engine.Info().Version }

func (d *Xdebug) Start() error {
	flags := FlagUnused
	if d.deadCode || d.branch {
		flags |= FlagDeadCode
	}
	if d.branch {
		flags |= FlagBranchCheck
	}
	return d.engine.StartCodeCoverage(flags)
}

func (d *Xdebug) Stop() (*coverage.RawData, error) {
	if d.branch {
		return collect(d.engine, func(p Payload) (*coverage.RawData, error) {
			files, err := decodePathCoverage(p)
			if err != nil {
				return nil, err
			}
			return coverage.FromXdebugWithPathCoverage(files), nil
		})
	}
	return collect(d.engine, func(p Payload) (*coverage.RawData, error) {
		files, err := decodeLineCoverage(p)
		if err != nil {
			return nil, err
		}
		return coverage.FromXdebugWithoutPathCoverage(files), nil
	})
}
