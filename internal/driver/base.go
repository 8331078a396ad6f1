package driver

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/user/phpcov/internal/coverage"
)

// capabilities holds the switches every driver shares. What an engine can
// do is decided when the driver is built and never changes afterwards.
type capabilities struct {
	canBranch   bool
	canDeadCode bool
	branch      bool
	deadCode    bool
}

func (c *capabilities) CanCollectBranchAndPathCoverage() bool { return c.canBranch }
func (c *capabilities) CollectsBranchAndPathCoverage() bool   { return c.branch }

func (c *capabilities) EnableBranchAndPathCoverage() error {
	if !c.canBranch {
		return coverage.ErrBranchAndPathCoverageNotSupported
	}
	c.branch = true
	return nil
}

func (c *capabilities) DisableBranchAndPathCoverage() { c.branch = false }

func (c *capabilities) CanDetectDeadCode() bool { return c.canDeadCode }
func (c *capabilities) DetectsDeadCode() bool   { return c.deadCode }

func (c *capabilities) EnableDeadCodeDetection() error {
	if !c.canDeadCode {
		return coverage.ErrDeadCodeDetectionNotSupported
	}
	c.deadCode = true
	return nil
}

func (c *capabilities) DisableDeadCodeDetection() { c.deadCode = false }

// collect reads and clears the payloads of one start/stop cycle and
// combines them into a single raw data set
func collect(engine Engine, decode func(Payload) (*coverage.RawData, error)) (*coverage.RawData, error) {
	payloads, err := engine.CodeCoverage()
	if err != nil {
		return nil, err
	}
	if err := engine.StopCodeCoverage(); err != nil {
		return nil, err
	}
	parts := make([]*coverage.RawData, 0, len(payloads))
	for i, p := range payloads {
		raw, err := decode(p)
		if err != nil {
			return nil, fmt.Errorf("payload %d of %s: %w", i, engine.Info().Name, err)
		}
		parts = append(parts, raw)
	}
	slog.Debug("coverage collected", "engine", engine.Info().Name, "payloads", len(payloads))
	return coverage.CombineRaw(parts...), nil
}

// compareVersions orders PHP style versions such as "3.3.0" or
// "2.9.8RC1"; pre-release suffixes are ignored
func compareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func versionParts(v string) []int {
	var out []int
	for _, part := range strings.Split(strings.TrimSpace(v), ".") {
		end := 0
		for end < len(part) && part[end] >= '0' && part[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(part[:end])
		if err != nil {
			break
		}
		out = append(out, n)
		if end < len(part) {
			break
		}
	}
	return out
}
