package driver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/user/phpcov/internal/coverage"
)

// intKeyed decodes a PHP array with integer keys. json_encode turns such
// arrays into JSON lists when the keys happen to be 0..n-1 and into objects
// otherwise, so both forms are accepted.
type intKeyed[V any] map[int]V

func (m *intKeyed[V]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var list []V
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		out := make(intKeyed[V], len(list))
		for i, v := range list {
			out[i] = v
		}
		*m = out
		return nil
	}
	var obj map[int]V
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*m = obj
	return nil
}

// intList decodes a PHP list that may have been encoded as an object
type intList []int

func (l *intList) UnmarshalJSON(data []byte) error {
	var m intKeyed[int]
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}
	out := make(intList, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k])
	}
	*l = out
	return nil
}

type xdebugBranch struct {
	OpStart   int     `json:"op_start"`
	OpEnd     int     `json:"op_end"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
	Hit       int     `json:"hit"`
	Out       intList `json:"out"`
	OutHit    intList `json:"out_hit"`
}

type xdebugPath struct {
	Path intList `json:"path"`
	Hit  int     `json:"hit"`
}

type xdebugFunction struct {
	Branches intKeyed[xdebugBranch] `json:"branches"`
	Paths    intKeyed[xdebugPath]   `json:"paths"`
}

type xdebugFile struct {
	Lines     intKeyed[coverage.LineStatus] `json:"lines"`
	Functions map[string]xdebugFunction     `json:"functions"`
}

// decodeLineCoverage reads a file -> line -> status payload as Xdebug
// without branch checks and PCOV produce it
func decodeLineCoverage(p Payload) (map[string]map[int]coverage.LineStatus, error) {
	var raw map[string]intKeyed[coverage.LineStatus]
	if err := decodePayload(p, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]map[int]coverage.LineStatus, len(raw))
	for file, lines := range raw {
		out[file] = lines
	}
	return out, nil
}

// decodePathCoverage reads the Xdebug payload written with branch checks
func decodePathCoverage(p Payload) (map[string]coverage.XdebugFileCoverage, error) {
	var raw map[string]xdebugFile
	if err := decodePayload(p, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]coverage.XdebugFileCoverage, len(raw))
	for file, f := range raw {
		fc := coverage.XdebugFileCoverage{
			Lines:     f.Lines,
			Functions: make(map[string]coverage.RawFunction, len(f.Functions)),
		}
		if fc.Lines == nil {
			fc.Lines = make(map[int]coverage.LineStatus)
		}
		for name, fn := range f.Functions {
			rf := coverage.RawFunction{
				Branches: make(map[int]coverage.RawBranch, len(fn.Branches)),
				Paths:    make(map[int]coverage.RawPath, len(fn.Paths)),
			}
			for id, b := range fn.Branches {
				rf.Branches[id] = coverage.RawBranch{
					OpStart:   b.OpStart,
					OpEnd:     b.OpEnd,
					LineStart: b.LineStart,
					LineEnd:   b.LineEnd,
					Hit:       b.Hit,
					Out:       b.Out,
					OutHit:    b.OutHit,
				}
			}
			for id, path := range fn.Paths {
				rf.Paths[id] = coverage.RawPath{Path: path.Path, Hit: path.Hit}
			}
			fc.Functions[name] = rf
		}
		out[file] = fc
	}
	return out, nil
}

type phpdbgPayload struct {
	Executable map[string]intKeyed[int] `json:"executable"`
	Executed   map[string]intKeyed[int] `json:"executed"`
}

// decodeOplog turns the executable and executed maps PHPDBG reports into
// line statuses
func decodeOplog(p Payload) (map[string]map[int]coverage.LineStatus, error) {
	var raw phpdbgPayload
	if err := decodePayload(p, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]map[int]coverage.LineStatus, len(raw.Executable))
	for file, lines := range raw.Executable {
		statuses := make(map[int]coverage.LineStatus, len(lines))
		for line := range lines {
			if _, ok := raw.Executed[file][line]; ok {
				statuses[line] = coverage.LineExecuted
			} else {
				statuses[line] = coverage.LineNotExecuted
			}
		}
		out[file] = statuses
	}
	return out, nil
}

func decodePayload(p Payload, v any) error {
	p = bytes.TrimSpace(p)
	// an empty PHP array is encoded as []
	if len(p) == 0 || bytes.Equal(p, []byte("[]")) {
		return nil
	}
	if err := json.Unmarshal(p, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
