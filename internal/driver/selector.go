package driver

import (
	"fmt"
	"strings"

	"github.com/user/phpcov/internal/coverage"
)

// ForLineCoverage picks the first usable engine in the order PHPDBG, PCOV,
// Xdebug. Dead code detection is switched on when the driver supports it.
func ForLineCoverage(engines Engines) (coverage.Driver, error) {
	if e, ok := engines.Find("phpdbg"); ok && e.Info().SAPI == "phpdbg" {
		return build("phpdbg", e)
	}
	if e, ok := engines.Find("pcov"); ok && e.Info().enabled("pcov.enabled") {
		return build("pcov", e)
	}
	if e, ok := engines.Find("xdebug"); ok {
		d, err := NewXdebug(e)
		if err != nil {
			return nil, err
		}
		if err := d.EnableDeadCodeDetection(); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, ErrNoCodeCoverageDriverAvailable
}

// ForLineAndPathCoverage returns an Xdebug driver tracing branches, paths
// and dead code
func ForLineAndPathCoverage(engines Engines) (coverage.Driver, error) {
	e, ok := engines.Find("xdebug")
	if !ok {
		return nil, ErrNoPathCoverageDriverAvailable
	}
	d, err := NewXdebug(e)
	if err != nil {
		return nil, err
	}
	if err := d.EnableDeadCodeDetection(); err != nil {
		return nil, err
	}
	if err := d.EnableBranchAndPathCoverage(); err != nil {
		return nil, err
	}
	return d, nil
}

// ByName builds the driver for one engine: "xdebug", "pcov", "phpdbg", or
// "auto" for ForLineCoverage
func ByName(name string, engines Engines) (coverage.Driver, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		return ForLineCoverage(engines)
	}
	switch name {
	case "xdebug", "pcov", "phpdbg":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	e, ok := engines.Find(name)
	if !ok {
		return nil, &ExtensionNotLoadedError{Extension: name}
	}
	return build(name, e)
}

// build keeps failed constructors from leaking typed nil drivers
func build(name string, e Engine) (coverage.Driver, error) {
	var (
		d   coverage.Driver
		err error
	)
	switch name {
	case "xdebug":
		var x *Xdebug
		x, err = NewXdebug(e)
		d = x
	case "pcov":
		var p *PCOV
		p, err = NewPCOV(e)
		d = p
	case "phpdbg":
		var p *PHPDBG
		p, err = NewPHPDBG(e)
		d = p
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
