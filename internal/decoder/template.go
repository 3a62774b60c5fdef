package decoder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var slotPattern = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Template is a prompt body with named slots. The declared slot set must
// match the {slot} placeholders in the body exactly, checked at
// construction so a drifted prompt fails at startup rather than at render
// time.
type Template struct {
	name  string
	body  string
	slots map[string]struct{}
}

// NewTemplate builds a Template, validating its slots.
func NewTemplate(name, body string, slots ...string) (*Template, error) {
	declared := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		if _, dup := declared[s]; dup {
			return nil, fmt.Errorf("template %s: slot %q declared twice", name, s)
		}
		declared[s] = struct{}{}
	}

	found := make(map[string]struct{})
	for _, m := range slotPattern.FindAllStringSubmatch(body, -1) {
		found[m[1]] = struct{}{}
	}

	for s := range found {
		if _, ok := declared[s]; !ok {
			return nil, fmt.Errorf("template %s: body uses undeclared slot %q", name, s)
		}
	}
	for s := range declared {
		if _, ok := found[s]; !ok {
			return nil, fmt.Errorf("template %s: declared slot %q missing from body", name, s)
		}
	}

	return &Template{name: name, body: body, slots: declared}, nil
}

// MustTemplate is NewTemplate, panicking on error. Package-level profile
// templates use it so a bad prompt aborts at init.
func MustTemplate(name, body string, slots ...string) *Template {
	t, err := NewTemplate(name, body, slots...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template's name.
func (t *Template) Name() string {
	return t.name
}

// Slots returns the declared slot names, sorted.
func (t *Template) Slots() []string {
	out := make([]string, 0, len(t.slots))
	for s := range t.slots {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Render fills every slot. Missing or unknown values are errors.
func (t *Template) Render(values map[string]string) (string, error) {
	for k := range values {
		if _, ok := t.slots[k]; !ok {
			return "", fmt.Errorf("template %s: unknown slot %q", t.name, k)
		}
	}
	for s := range t.slots {
		if _, ok := values[s]; !ok {
			return "", fmt.Errorf("template %s: missing value for slot %q", t.name, s)
		}
	}

	out := t.body
	for s, v := range values {
		out = strings.ReplaceAll(out, "{"+s+"}", v)
	}
	return out, nil
}
