package coverage

import (
	"slices"
	"time"
)

// TestSize is the PHPUnit size group of a test
type TestSize string

const (
	SizeUnknown TestSize = "unknown"
	SizeSmall   TestSize = "small"
	SizeMedium  TestSize = "medium"
	SizeLarge   TestSize = "large"
)

// TestStatus is the outcome of a test, numbered like PHPUnit does
type TestStatus int

const (
	StatusUnknown    TestStatus = -1
	StatusPassed     TestStatus = 0
	StatusSkipped    TestStatus = 1
	StatusIncomplete TestStatus = 2
	StatusFailure    TestStatus = 3
	StatusError      TestStatus = 4
	StatusRisky      TestStatus = 5
	StatusWarning    TestStatus = 6
)

var statusNames = map[TestStatus]string{
	StatusUnknown:    "unknown",
	StatusPassed:     "success",
	StatusSkipped:    "skipped",
	StatusIncomplete: "incomplete",
	StatusFailure:    "failure",
	StatusError:      "error",
	StatusRisky:      "risky",
	StatusWarning:    "warning",
}

func (s TestStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// TestInfo is what the ledger knows about one test
type TestInfo struct {
	Size     TestSize
	Status   TestStatus
	Duration time.Duration
}

// Tests is the ordered ledger of tests that contributed coverage
type Tests struct {
	order []string
	info  map[string]TestInfo
}

// NewTests returns an empty ledger
func NewTests() *Tests {
	return &Tests{info: make(map[string]TestInfo)}
}

// Set records info for id, keeping the position of a known id
func (t *Tests) Set(id string, info TestInfo) {
	if _, ok := t.info[id]; !ok {
		t.order = append(t.order, id)
	}
	t.info[id] = info
}

// Update overwrites the info of a known id and reports whether it was known
func (t *Tests) Update(id string, info TestInfo) bool {
	if _, ok := t.info[id]; !ok {
		return false
	}
	t.info[id] = info
	return true
}

// ensure records id with unknown size and status unless already known
func (t *Tests) ensure(id string) {
	if _, ok := t.info[id]; ok {
		return
	}
	t.Set(id, TestInfo{Size: SizeUnknown, Status: StatusUnknown})
}

// Get returns the info recorded for id
func (t *Tests) Get(id string) (TestInfo, bool) {
	info, ok := t.info[id]
	return info, ok
}

// IDs returns test ids in recording order
func (t *Tests) IDs() []string {
	return slices.Clone(t.order)
}

// Len is the number of recorded tests
func (t *Tests) Len() int {
	return len(t.order)
}

// Merge adds the entries of other; entries for known ids are overwritten
func (t *Tests) Merge(other *Tests) {
	if other == nil {
		return
	}
	for _, id := range other.order {
		t.Set(id, other.info[id])
	}
}

// Clone returns an independent copy
func (t *Tests) Clone() *Tests {
	out := NewTests()
	out.Merge(t)
	return out
}
