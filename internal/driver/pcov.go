package driver

import "github.com/user/phpcov/internal/coverage"

// PCOV drives the PCOV extension, which only knows line coverage
type PCOV struct {
	capabilities
	engine Engine
}

// NewPCOV checks that engine is a loaded and enabled PCOV
func NewPCOV(engine Engine) (*PCOV, error) {
	info := engine.Info()
	if !info.Loaded {
		return nil, &ExtensionNotLoadedError{Extension: "pcov"}
	}
	if !info.enabled("pcov.enabled") {
		return nil, ErrPCOVNotEnabled
	}
	return &PCOV{engine: engine}, nil
}

func (d *PCOV) Name() string { return "PCOV " + d.engine.Info().Version }

func (d *PCOV) Start() error {
	return d.engine.StartCodeCoverage(FlagUnused)
}

func (d *PCOV) Stop() (*coverage.RawData, error) {
	return collect(d.engine, func(p Payload) (*coverage.RawData, error) {
		files, err := decodeLineCoverage(p)
		if err != nil {
			return nil, err
		}
		return coverage.FromXdebugWithoutPathCoverage(files), nil
	})
}
