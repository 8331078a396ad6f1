package runner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/user/phpcov/internal/coverage"
)

var countPattern = regexp.MustCompile(`\b(Tests|Errors|Failures|Warnings|Skipped|Incomplete|Risky): (\d+)`)

// classify maps the summary PHPUnit prints at the end of a run to a test
// status. Without a summary the exit state decides.
func classify(output string, exitOK bool) coverage.TestStatus {
	counts := make(map[string]int)
	for _, m := range countPattern.FindAllStringSubmatch(summary(output), -1) {
		n, _ := strconv.Atoi(m[2])
		counts[m[1]] = n
	}

	switch {
	case counts["Errors"] > 0:
		return coverage.StatusError
	case counts["Failures"] > 0:
		return coverage.StatusFailure
	case !exitOK:
		if strings.Contains(output, "No tests executed!") {
			return coverage.StatusSkipped
		}
		return coverage.StatusError
	case counts["Warnings"] > 0:
		return coverage.StatusWarning
	case counts["Risky"] > 0:
		return coverage.StatusRisky
	case counts["Tests"] > 0 && counts["Skipped"] == counts["Tests"]:
		return coverage.StatusSkipped
	case counts["Tests"] > 0 && counts["Skipped"]+counts["Incomplete"] == counts["Tests"]:
		return coverage.StatusIncomplete
	}
	return coverage.StatusPassed
}

// summary returns the output from the last "Tests:" or "OK (" line on
func summary(output string) string {
	idx := max(strings.LastIndex(output, "Tests: "), strings.LastIndex(output, "OK ("))
	if idx < 0 {
		return ""
	}
	return output[idx:]
}

// failed reports whether a status counts as a failed test
func failed(s coverage.TestStatus) bool {
	switch s {
	case coverage.StatusFailure, coverage.StatusError, coverage.StatusUnknown:
		return true
	}
	return false
}
