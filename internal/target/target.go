// Package target models the code a test declares to cover or use, and
// resolves it to source lines.
package target

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind of code unit a target names
type Kind string

const (
	KindClass     Kind = "class"
	KindMethod    Kind = "method"
	KindFunction  Kind = "function"
	KindNamespace Kind = "namespace"
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// ErrInvalidTarget is returned for target strings that cannot be parsed
var ErrInvalidTarget = errors.New("invalid target")

// Target names one unit of code. Name is the class, function, namespace or
// path; Method is set for methods and may be a visibility selector such as
// "<public>" or "<!private>".
type Target struct {
	Kind   Kind
	Name   string
	Method string
}

// Class targets a class, trait or enum by its namespaced name
func Class(name string) Target {
	return Target{Kind: KindClass, Name: strings.TrimPrefix(name, `\`)}
}

// Method targets one method (or a visibility group) of a class
func Method(class, method string) Target {
	return Target{Kind: KindMethod, Name: strings.TrimPrefix(class, `\`), Method: method}
}

// Function targets a function by its namespaced name
func Function(name string) Target {
	return Target{Kind: KindFunction, Name: strings.TrimPrefix(name, `\`)}
}

// Namespace targets every class and function declared in a namespace
func Namespace(name string) Target {
	return Target{Kind: KindNamespace, Name: strings.Trim(name, `\`)}
}

// File targets every line of a source file
func File(path string) Target {
	return Target{Kind: KindFile, Name: filepath.Clean(path)}
}

// Directory targets every line of the files below a directory
func Directory(path string) Target {
	return Target{Kind: KindDirectory, Name: filepath.Clean(path)}
}

func (t Target) String() string {
	switch t.Kind {
	case KindMethod:
		return t.Name + "::" + t.Method
	case KindFunction:
		return "::" + t.Name
	case KindNamespace:
		return t.Name + `\`
	}
	return t.Name
}

// Parse reads the @covers syntax: "Foo\Bar" is a class, "Foo\Bar::baz" a
// method, "::baz" a function, "Foo\" a namespace. Absolute paths name files
// when they end in .php and directories otherwise.
func Parse(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty name", ErrInvalidTarget)
	}
	if filepath.IsAbs(s) {
		if strings.HasSuffix(s, ".php") {
			return File(s), nil
		}
		return Directory(s), nil
	}
	if strings.ContainsAny(s, " \t()") {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
	if strings.HasPrefix(s, "::") {
		name := s[2:]
		if name == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
		}
		return Function(name), nil
	}
	if class, method, ok := strings.Cut(s, "::"); ok {
		if class == "" || method == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
		}
		return Method(class, method), nil
	}
	if strings.HasSuffix(s, `\`) {
		if strings.Trim(s, `\`) == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
		}
		return Namespace(s), nil
	}
	return Class(s), nil
}

// Set is what a test declares: the units it covers and the units it merely
// uses. CoversNothing means the test must not contribute any coverage.
type Set struct {
	CoversNothing bool
	Covers        []Target
	Uses          []Target
}

// IsEmpty reports whether the set puts no restriction on coverage
func (s Set) IsEmpty() bool {
	return !s.CoversNothing && len(s.Covers) == 0
}
