package target

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tagPattern       = regexp.MustCompile(`@(coversDefaultClass|coversNothing|covers|uses)\b[ \t]*([^\s*]*)`)
	attributePattern = regexp.MustCompile(`#\[\s*\\?(?:PHPUnit\\Framework\\Attributes\\)?(CoversClass|CoversFunction|CoversMethod|CoversNothing|UsesClass|UsesFunction|UsesMethod)\b\s*(?:\(([^)]*)\))?`)
	namedArgument    = regexp.MustCompile(`^[A-Za-z_]\w*\s*:([^:].*)$`)
)

// ParseAnnotations extracts the targets declared in PHP source or a
// docblock, from both @covers style tags and PHPUnit attributes.
// With @coversDefaultClass set, "@covers ::name" names a method of that class.
func ParseAnnotations(text string) (Set, error) {
	var set Set
	defaultClass := ""
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		if m[1] == "coversDefaultClass" && m[2] != "" {
			defaultClass = strings.TrimPrefix(m[2], `\`)
		}
	}

	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		tag, arg := m[1], m[2]
		switch tag {
		case "coversNothing":
			set.CoversNothing = true
			continue
		case "coversDefaultClass":
			continue
		}
		if arg == "" {
			return Set{}, fmt.Errorf("%w: @%s without a name", ErrInvalidTarget, tag)
		}
		var t Target
		var err error
		if tag == "covers" && defaultClass != "" && strings.HasPrefix(arg, "::") {
			t = Method(defaultClass, arg[2:])
		} else if t, err = Parse(arg); err != nil {
			return Set{}, err
		}
		if tag == "covers" {
			set.Covers = append(set.Covers, t)
		} else {
			set.Uses = append(set.Uses, t)
		}
	}

	for _, m := range attributePattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		args := attributeArguments(m[2])
		if name == "CoversNothing" {
			set.CoversNothing = true
			continue
		}
		var t Target
		switch name {
		case "CoversClass", "UsesClass":
			if len(args) != 1 {
				return Set{}, fmt.Errorf("%w: %s expects one class", ErrInvalidTarget, name)
			}
			t = Class(args[0])
		case "CoversFunction", "UsesFunction":
			if len(args) != 1 {
				return Set{}, fmt.Errorf("%w: %s expects one function", ErrInvalidTarget, name)
			}
			t = Function(args[0])
		case "CoversMethod", "UsesMethod":
			if len(args) != 2 {
				return Set{}, fmt.Errorf("%w: %s expects a class and a method", ErrInvalidTarget, name)
			}
			t = Method(args[0], args[1])
		}
		if strings.HasPrefix(name, "Covers") {
			set.Covers = append(set.Covers, t)
		} else {
			set.Uses = append(set.Uses, t)
		}
	}
	return set, nil
}

// attributeArguments turns `Foo::class, 'bar'` into ["Foo", "bar"]
func attributeArguments(raw string) []string {
	var out []string
	for _, arg := range strings.Split(raw, ",") {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if m := namedArgument.FindStringSubmatch(arg); m != nil {
			arg = strings.TrimSpace(m[1])
		}
		arg = strings.TrimSuffix(arg, "::class")
		arg = strings.Trim(arg, `'"`)
		arg = strings.ReplaceAll(arg, `\\`, `\`)
		out = append(out, strings.TrimPrefix(arg, `\`))
	}
	return out
}
