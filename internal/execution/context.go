// Package execution drives one scenario's ordered steps against a live API:
// template resolution, the per-step HTTP exchange, assertion evaluation,
// value extraction, and the run-level verdict.
package execution

import "strings"

// Context is the per-run variable store used for cross-step templating.
// It is owned exclusively by one run, never persisted, and never shared.
type Context struct {
	vars map[string]string
	env  map[string]string
}

// NewContext creates a Context seeded with a static environment map. Values
// extracted by steps shadow environment values of the same name.
func NewContext(env map[string]string) *Context {
	c := &Context{
		vars: make(map[string]string),
		env:  make(map[string]string, len(env)),
	}
	for k, v := range env {
		c.env[k] = v
	}
	return c
}

// AddExtracted merges a step's extracted values. On name collision the most
// recently merged value wins.
func (c *Context) AddExtracted(values map[string]string) {
	for k, v := range values {
		c.vars[k] = v
	}
}

// Lookup returns the current value of a variable, consulting extracted
// values first and the static environment second.
func (c *Context) Lookup(name string) (string, bool) {
	if v, ok := c.vars[name]; ok {
		return v, true
	}
	v, ok := c.env[name]
	return v, ok
}

// Resolve replaces every {{name}} placeholder with the variable's current
// value. A placeholder whose name is unknown is left verbatim: an
// unresolved optional parameter is a legitimate test condition, and any
// failure it causes surfaces later as an assertion mismatch or transport
// error, never as a templating error.
func (c *Context) Resolve(template string) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end += start

		b.WriteString(rest[:start])
		placeholder := rest[start : end+2]
		name := strings.TrimSpace(rest[start+2 : end])
		if value, ok := c.Lookup(name); ok {
			b.WriteString(value)
		} else {
			b.WriteString(placeholder)
		}
		rest = rest[end+2:]
	}
}
