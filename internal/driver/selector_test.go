package driver

import (
	"errors"
	"testing"
)

func TestForLineCoverage(t *testing.T) {
	xdebug := xdebugEngine("3.3.1", "coverage")
	pcov := &fakeEngine{info: EngineInfo{Name: "pcov", Version: "1.0.11", Loaded: true, Settings: map[string]string{"pcov.enabled": "1"}}}
	pcovOff := &fakeEngine{info: EngineInfo{Name: "pcov", Loaded: true}}
	phpdbg := &fakeEngine{info: EngineInfo{Name: "phpdbg", Loaded: true, SAPI: "phpdbg"}}

	tests := []struct {
		name    string
		engines Engines
		want    string
		wantErr error
	}{
		{"phpdbg first", Engines{xdebug, pcov, phpdbg}, "PHPDBG", nil},
		{"pcov before xdebug", Engines{xdebug, pcov}, "PCOV 1.0.11", nil},
		{"disabled pcov skipped", Engines{pcovOff, xdebug}, "Xdebug 3.3.1", nil},
		{"nothing", nil, "", ErrNoCodeCoverageDriverAvailable},
		{"xdebug misconfigured", Engines{xdebugEngine("3.3.1", "debug")}, "", ErrXdebugNotEnabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ForLineCoverage(tt.engines)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ForLineCoverage() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				if d != nil {
					t.Errorf("driver = %v, want nil on error", d)
				}
				return
			}
			if d.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", d.Name(), tt.want)
			}
			if d.CanDetectDeadCode() != d.DetectsDeadCode() {
				t.Error("dead code detection not enabled where supported")
			}
		})
	}
}

func TestForLineAndPathCoverage(t *testing.T) {
	d, err := ForLineAndPathCoverage(Engines{xdebugEngine("3.3.1", "coverage")})
	if err != nil {
		t.Fatalf("ForLineAndPathCoverage() error = %v", err)
	}
	if !d.CollectsBranchAndPathCoverage() || !d.DetectsDeadCode() {
		t.Error("branch coverage or dead code detection off")
	}
	pcov := &fakeEngine{info: EngineInfo{Name: "pcov", Loaded: true, Settings: map[string]string{"pcov.enabled": "1"}}}
	if _, err := ForLineAndPathCoverage(Engines{pcov}); !errors.Is(err, ErrNoPathCoverageDriverAvailable) {
		t.Errorf("ForLineAndPathCoverage(pcov) error = %v", err)
	}
}

func TestByName(t *testing.T) {
	engines := Engines{xdebugEngine("3.3.1", "coverage")}
	if d, err := ByName("Xdebug", engines); err != nil || d.Name() != "Xdebug 3.3.1" {
		t.Errorf("ByName(Xdebug) = %v, %v", d, err)
	}
	if d, err := ByName("auto", engines); err != nil || d == nil {
		t.Errorf("ByName(auto) = %v, %v", d, err)
	}
	var nl *ExtensionNotLoadedError
	if _, err := ByName("pcov", engines); !errors.As(err, &nl) || nl.Extension != "pcov" {
		t.Errorf("ByName(pcov) error = %v, want ExtensionNotLoadedError", err)
	}
	if _, err := ByName("hhvm", engines); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("ByName(hhvm) error = %v, want ErrUnknownDriver", err)
	}
}
