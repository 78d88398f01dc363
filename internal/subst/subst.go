// Package subst implements variable placeholder expansion for prompt text.
// Placeholders look like <[name]> or <[outer.inner]> for nested lookups.
package subst

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openMarker  = "<["
	closeMarker = "]>"
)

// Vars is the variable set for one prompt run. Nested maps are addressed
// with dotted paths.
type Vars map[string]any

// UndefinedVariableError is returned when a placeholder names a variable
// (or a path segment) that does not exist. It is fatal to the script.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("variable %q is not defined", e.Name)
}

// NestedPlaceholderError is returned when a placeholder opens inside
// another one, such as <[a<[b]>]>. Recursive templates are not supported
// and expansion refuses them rather than emitting the half-resolved text.
type NestedPlaceholderError struct {
	Name string
}

func (e *NestedPlaceholderError) Error() string {
	return fmt.Sprintf("placeholder %q is nested inside another placeholder", e.Name)
}

// Expand resolves placeholders in text. The innermost placeholder before
// each closing marker is resolved first, left to right, and substituted
// values are not re-scanned, so expansion always terminates and text
// without placeholders comes back unchanged.
func Expand(text string, vars Vars) (string, error) {
	var out strings.Builder
	for strings.Contains(text, closeMarker) {
		front, back, _ := strings.Cut(text, closeMarker)
		start := strings.LastIndex(front, openMarker)
		if start < 0 {
			// Orphan close marker: everything up to and including it is
			// literal text.
			out.WriteString(front)
			out.WriteString(closeMarker)
			text = back
			continue
		}

		name := front[start+len(openMarker):]
		// A second open marker before this one means the placeholder sits
		// inside another that a later close would finish with half-resolved
		// text. Refuse it; a lone stray open with no close to pair stays
		// literal, like an orphan close does.
		if strings.Contains(front[:start], openMarker) && strings.Contains(back, closeMarker) {
			return "", &NestedPlaceholderError{Name: name}
		}
		value, err := lookup(name, vars)
		if err != nil {
			return "", err
		}
		out.WriteString(front[:start])
		out.WriteString(value)
		text = back
	}
	out.WriteString(text)
	return out.String(), nil
}

// lookup walks a dotted path through nested maps.
func lookup(name string, vars Vars) (string, error) {
	var current any = map[string]any(vars)
	for _, key := range strings.Split(name, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return "", &UndefinedVariableError{Name: name}
		}
		current, ok = m[key]
		if !ok {
			return "", &UndefinedVariableError{Name: name}
		}
	}
	return stringify(current), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}
