// Package substitution implements the shell-style variable expansion used to
// preprocess a stack document before it's parsed as YAML: `${name}`, `$name`,
// `${name:-default}`, and the `$$` escape for a literal dollar sign.
package substitution

import "regexp"

// varPattern matches, in priority order: an escaped `$$`, a braced reference
// with an optional `:-default`, or a bare `$name` reference. Go's regexp
// engine (RE2) has no backreferences, so the three forms are alternated
// rather than expressed as one pattern with optional groups sharing capture
// slots.
var varPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Expand replaces every variable reference in s using vars, leaving
// references to names absent from vars (and without a `:-default`) as an
// empty string. `$$` always collapses to a literal `$`, even adjacent to a
// name that isn't defined.
func Expand(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		if match == "$$" {
			return "$"
		}
		sub := varPattern.FindStringSubmatch(match)
		// sub[1]/sub[2]/sub[3] are the braced-form groups; sub[4] the bare form.
		name := sub[1]
		hasDefault := sub[2] != ""
		def := sub[3]
		if name == "" {
			name = sub[4]
			hasDefault = false
		}
		if v, ok := vars[name]; ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}
