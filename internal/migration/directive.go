package migration

import (
	"regexp"
	"strings"
)

// Directive is an in-band control comment inside a migration script.
type Directive int

const (
	// DirectiveNone marks an ordinary line.
	DirectiveNone Directive = iota
	// DirectiveSplit ends the current statement group.
	DirectiveSplit
)

// String returns the directive token.
func (d Directive) String() string {
	switch d {
	case DirectiveSplit:
		return "migren:split"
	default:
		return "none"
	}
}

// directives are tried in order; the first match wins.
var directives = []struct {
	kind    Directive
	pattern *regexp.Regexp
}{
	{kind: DirectiveSplit, pattern: regexp.MustCompile(`--.*migren:split.*`)},
}

// MatchDirective reports which directive, if any, the line carries.
func MatchDirective(line string) (Directive, bool) {
	trimmed := strings.TrimSpace(line)
	for _, d := range directives {
		if d.pattern.MatchString(trimmed) {
			return d.kind, true
		}
	}
	return DirectiveNone, false
}

// SplitStatements cuts a script into statement groups. A split directive line
// closes the group it appears in and stays part of it. Whatever follows the
// last directive forms the final group, even when it is empty.
func SplitStatements(script string) []string {
	groups := make([]string, 0, 1)
	var current strings.Builder

	for _, line := range strings.SplitAfter(script, "\n") {
		if line == "" {
			continue
		}
		current.WriteString(line)

		if kind, ok := MatchDirective(line); ok && kind == DirectiveSplit {
			groups = append(groups, current.String())
			current.Reset()
		}
	}

	return append(groups, current.String())
}

// HasMultipleStatements reports whether a group holds more than one
// terminating semicolon. Some drivers only run the first statement of such a
// group.
func HasMultipleStatements(group string) bool {
	return strings.Count(group, ";") > 1
}
