package node

import "github.com/user/phpcov/internal/analysis"

// Counts are the executable and executed items of a unit
type Counts struct {
	ExecutableLines    int
	ExecutedLines      int
	ExecutableBranches int
	ExecutedBranches   int
	ExecutablePaths    int
	ExecutedPaths      int
}

func (c *Counts) add(o Counts) {
	c.ExecutableLines += o.ExecutableLines
	c.ExecutedLines += o.ExecutedLines
	c.ExecutableBranches += o.ExecutableBranches
	c.ExecutedBranches += o.ExecutedBranches
	c.ExecutablePaths += o.ExecutablePaths
	c.ExecutedPaths += o.ExecutedPaths
}

// Method is a method with its coverage
type Method struct {
	Counts
	Name       string
	Signature  string
	Visibility analysis.Visibility
	StartLine  int
	EndLine    int
	CCN        int
	Coverage   float64
	CRAP       Crap
	Link       string
}

// Tested reports whether every executable line of the method ran
func (m *Method) Tested() bool {
	return m.ExecutableLines > 0 && m.Coverage == 100
}

// Class is a class or trait with its coverage. Lines count only inside
// methods.
type Class struct {
	Counts
	Name      string
	Namespace string
	StartLine int
	Methods   []*Method
	CCN       int
	Coverage  float64
	CRAP      Crap
	Link      string
}

// Tested reports whether every executable line of the class ran
func (c *Class) Tested() bool {
	return c.ExecutableLines > 0 && c.Coverage == 100
}

// Function is a function outside classes with its coverage
type Function struct {
	Counts
	Name      string
	Namespace string
	Signature string
	StartLine int
	EndLine   int
	CCN       int
	Coverage  float64
	CRAP      Crap
	Link      string
}

// Tested reports whether every executable line of the function ran
func (f *Function) Tested() bool {
	return f.ExecutableLines > 0 && f.Coverage == 100
}
