package driver

import "github.com/user/phpcov/internal/coverage"

// PHPDBG drives the oplog of the phpdbg SAPI
type PHPDBG struct {
	capabilities
	engine Engine
}

// NewPHPDBG requires an engine running under the phpdbg SAPI
func NewPHPDBG(engine Engine) (*PHPDBG, error) {
	info := engine.Info()
	if info.SAPI != "phpdbg" {
		return nil, ErrPHPDBGRequired
	}
	if !info.Loaded {
		return nil, &ExtensionNotLoadedError{Extension: "phpdbg"}
	}
	return &PHPDBG{engine: engine}, nil
}

func (d *PHPDBG) Name() string { return "PHPDBG" }

func (d *PHPDBG) Start() error {
	return d.engine.StartCodeCoverage(FlagUnused)
}

func (d *PHPDBG) Stop() (*coverage.RawData, error) {
	return collect(d.engine, func(p Payload) (*coverage.RawData, error) {
		files, err := decodeOplog(p)
		if err != nil {
			return nil, err
		}
		return coverage.FromXdebugWithoutPathCoverage(files), nil
	})
}
