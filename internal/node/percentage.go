package node

import "fmt"

// Percentage is a fraction of a total
type Percentage struct {
	Fraction int
	Total    int
}

// AsFloat is the percentage, 100 when there is nothing to count
func (p Percentage) AsFloat() float64 {
	if p.Total > 0 {
		return float64(p.Fraction) / float64(p.Total) * 100
	}
	return 100
}

// AsString formats like "50.00%", empty when there is nothing to count
func (p Percentage) AsString() string {
	if p.Total > 0 {
		return fmt.Sprintf("%01.2f%%", p.AsFloat())
	}
	return ""
}

// AsFixedWidthString right-aligns to "  50.00%"
func (p Percentage) AsFixedWidthString() string {
	if p.Total > 0 {
		return fmt.Sprintf("%6.2f%%", p.AsFloat())
	}
	return ""
}

// coveragePercent is executed/executable*100, 100 for empty units
func coveragePercent(executed, executable int) float64 {
	return Percentage{Fraction: executed, Total: executable}.AsFloat()
}
