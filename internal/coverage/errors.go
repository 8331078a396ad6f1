package coverage

import (
	"errors"
	"strings"
)

var (
	// ErrTestIDMissing is returned when data is appended without a test id
	ErrTestIDMissing = errors.New("test id is missing")
	// ErrNoDriver is returned when collection is started on a facade built without a driver
	ErrNoDriver = errors.New("no code coverage driver configured")
	// ErrAlreadyCollecting is returned by Start while another test is being collected
	ErrAlreadyCollecting = errors.New("code coverage is already being collected")
	// ErrBranchAndPathCoverageNotSupported is returned by drivers that only trace lines
	ErrBranchAndPathCoverageNotSupported = errors.New("branch and path coverage is not supported by the driver")
	// ErrDeadCodeDetectionNotSupported is returned by drivers that cannot tell dead code
	ErrDeadCodeDetectionNotSupported = errors.New("dead code detection is not supported by the driver")
)

// UnintentionallyCoveredCodeError lists the units a test executed outside
// the code it declared to cover or use
type UnintentionallyCoveredCodeError struct {
	Units []string
}

func (e *UnintentionallyCoveredCodeError) Error() string {
	var b strings.Builder
	b.WriteString("this test executed code that is not listed as code to be covered or used:")
	for _, u := range e.Units {
		b.WriteString("\n- ")
		b.WriteString(u)
	}
	return b.String()
}
