package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCodeCoverageDriverAvailable is returned when no engine can collect line coverage
	ErrNoCodeCoverageDriverAvailable = errors.New("no code coverage driver available")
	// ErrNoPathCoverageDriverAvailable is returned when no engine can collect branch and path coverage
	ErrNoPathCoverageDriverAvailable = errors.New("no code coverage driver with path coverage support available")
	// ErrXdebugNotEnabled means Xdebug 3 runs without "coverage" in xdebug.mode
	ErrXdebugNotEnabled = errors.New("XDEBUG_MODE=coverage or xdebug.mode=coverage has to be set")
	// ErrXdebug2NotEnabled means Xdebug 2 runs with xdebug.coverage_enable off
	ErrXdebug2NotEnabled = errors.New("xdebug.coverage_enable=On has to be set")
	// ErrPCOVNotEnabled means PCOV is loaded but pcov.enabled is off
	ErrPCOVNotEnabled = errors.New("pcov.enabled=1 has to be set")
	// ErrPHPDBGRequired means the PHPDBG driver was asked for outside the phpdbg SAPI
	ErrPHPDBGRequired = errors.New("this driver requires the PHPDBG SAPI")
	// ErrMalformedPayload wraps JSON errors in engine payloads
	ErrMalformedPayload = errors.New("malformed coverage payload")
	// ErrUnknownDriver is returned by ByName for names no driver answers to
	ErrUnknownDriver = errors.New("unknown code coverage driver")
)

// ExtensionNotLoadedError reports a missing PHP extension
type ExtensionNotLoadedError struct {
	Extension string
}

func (e *ExtensionNotLoadedError) Error() string {
	return fmt.Sprintf("the %s extension is not loaded", e.Extension)
}

// WrongVersionError reports an extension older than supported
type WrongVersionError struct {
	Extension string
	Version   string
	Minimum   string
}

func (e *WrongVersionError) Error() string {
	return fmt.Sprintf("%s %s is not supported, version %s or later is required", e.Extension, e.Version, e.Minimum)
}
