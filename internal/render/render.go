// Package render substitutes template placeholders with variable values.
//
// Two placeholder syntaxes are supported: {name} and ${name}. Placeholders
// whose name is not present in the variable map are passed through untouched;
// callers that need completeness must check ExtractVariables themselves. This
// tolerance for partial variable sets is deliberate.
package render

import (
	"fmt"
	"regexp"
)

var (
	bracePattern  = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	dollarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// Render replaces every {key} and ${key} occurrence in template with the
// string form of variables[key]. Unknown keys are left as-is. The function is
// pure: rendering an already fully-resolved template is a no-op.
func Render(template string, variables map[string]any) string {
	replace := func(pattern *regexp.Regexp, in string) string {
		return pattern.ReplaceAllStringFunc(in, func(match string) string {
			name := pattern.FindStringSubmatch(match)[1]
			value, ok := variables[name]
			if !ok {
				return match
			}
			return fmt.Sprint(value)
		})
	}

	// ${key} first so its inner {key} is not consumed by the brace pass.
	result := replace(dollarPattern, template)
	return replace(bracePattern, result)
}

// ExtractVariables returns the deduplicated set of placeholder names found in
// the template, across both syntaxes. Order is not specified.
func ExtractVariables(template string) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, 4)

	for _, pattern := range []*regexp.Regexp{bracePattern, dollarPattern} {
		for _, match := range pattern.FindAllStringSubmatch(template, -1) {
			name := match[1]
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	return names
}
