package target

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/user/phpcov/internal/analysis"
)

// NotFoundError reports a target naming code that does not exist
type NotFoundError struct {
	Target Target
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Target.Kind, e.Target.String())
}

type classEntry struct {
	file  string
	class analysis.Class
}

type functionEntry struct {
	file     string
	function analysis.Function
}

// Mapper resolves targets against the analysed source files
type Mapper struct {
	files    []string
	analyser analysis.Analyser

	indexed   bool
	classes   map[string]classEntry
	functions map[string]functionEntry
	sizes     map[string]int
}

// NewMapper creates a mapper over files
func NewMapper(files []string, analyser analysis.Analyser) *Mapper {
	return &Mapper{files: files, analyser: analyser}
}

func (m *Mapper) index() error {
	if m.indexed {
		return nil
	}
	m.classes = make(map[string]classEntry)
	m.functions = make(map[string]functionEntry)
	m.sizes = make(map[string]int)
	for _, file := range m.files {
		fa, err := m.analyser.Analyse(file)
		if err != nil {
			return err
		}
		m.sizes[file] = fa.LinesOfCode.LinesOfCode
		for _, group := range [][]analysis.Class{fa.Classes, fa.Traits, fa.Interfaces} {
			for _, c := range group {
				m.classes[strings.ToLower(c.NamespacedName)] = classEntry{file: file, class: c}
			}
		}
		for _, f := range fa.Functions {
			m.functions[strings.ToLower(f.NamespacedName)] = functionEntry{file: file, function: f}
		}
	}
	m.indexed = true
	return nil
}

// Lines returns file -> sorted lines covered by targets. The first target
// that names nothing fails the whole call with *NotFoundError.
func (m *Mapper) Lines(targets []Target) (map[string][]int, error) {
	if err := m.index(); err != nil {
		return nil, err
	}
	acc := make(map[string]map[int]bool)
	add := func(file string, from, to int) {
		if acc[file] == nil {
			acc[file] = make(map[int]bool)
		}
		for l := from; l <= to; l++ {
			acc[file][l] = true
		}
	}

	for _, t := range targets {
		found := false
		switch t.Kind {
		case KindClass:
			if e, ok := m.classes[strings.ToLower(t.Name)]; ok {
				add(e.file, e.class.StartLine, e.class.EndLine)
				found = true
			}
		case KindMethod:
			e, ok := m.classes[strings.ToLower(t.Name)]
			if !ok {
				break
			}
			for _, method := range e.class.Methods {
				if matchesMethod(t.Method, method) {
					add(e.file, method.StartLine, method.EndLine)
					found = true
				}
			}
		case KindFunction:
			if e, ok := m.functions[strings.ToLower(t.Name)]; ok {
				add(e.file, e.function.StartLine, e.function.EndLine)
				found = true
			}
		case KindNamespace:
			for _, e := range m.classes {
				if inNamespace(e.class.Namespace, t.Name) {
					add(e.file, e.class.StartLine, e.class.EndLine)
					found = true
				}
			}
			for _, e := range m.functions {
				if inNamespace(e.function.Namespace, t.Name) {
					add(e.file, e.function.StartLine, e.function.EndLine)
					found = true
				}
			}
		case KindFile:
			if n, ok := m.sizes[t.Name]; ok {
				add(t.Name, 1, n)
				found = true
			}
		case KindDirectory:
			prefix := t.Name + string(filepath.Separator)
			for file, n := range m.sizes {
				if strings.HasPrefix(file, prefix) {
					add(file, 1, n)
					found = true
				}
			}
		}
		if !found {
			return nil, &NotFoundError{Target: t}
		}
	}

	out := make(map[string][]int, len(acc))
	for file, set := range acc {
		lines := make([]int, 0, len(set))
		for l := range set {
			lines = append(lines, l)
		}
		slices.Sort(lines)
		out[file] = lines
	}
	return out, nil
}

// matchesMethod compares a method name or a visibility selector such as
// "<public>" or "<!protected>"
func matchesMethod(selector string, method analysis.Method) bool {
	if strings.HasPrefix(selector, "<") && strings.HasSuffix(selector, ">") {
		vis := selector[1 : len(selector)-1]
		if negated, ok := strings.CutPrefix(vis, "!"); ok {
			return string(method.Visibility) != negated
		}
		return string(method.Visibility) == vis
	}
	return strings.EqualFold(selector, method.Name)
}

func inNamespace(ns, target string) bool {
	ns, target = strings.ToLower(ns), strings.ToLower(target)
	return ns == target || strings.HasPrefix(ns, target+`\`)
}
