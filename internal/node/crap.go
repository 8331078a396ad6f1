package node

import (
	"math"
	"strconv"
)

// Crap is a CRAP (Change Risk Anti-Patterns) score
type Crap float64

// CrapIndex combines complexity and line coverage:
// ccn² × (1 − coverage/100)³ + ccn, and exactly ccn once coverage reaches 100.
func CrapIndex(ccn int, coverage float64) Crap {
	comp := float64(ccn)
	if coverage >= 100 {
		return Crap(comp)
	}
	uncov := 1 - coverage/100
	return Crap(comp*comp*math.Pow(uncov, 3) + comp)
}

// String prints integral scores bare and others with two decimals
func (c Crap) String() string {
	f := float64(c)
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func itoa(n int) string { return strconv.Itoa(n) }
