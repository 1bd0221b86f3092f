package policy

import "strings"

// ScopeMatches reports whether granted covers requested. Coverage is
// hierarchical prefix matching on colon-delimited segments: "tool:http"
// covers "tool:http:get" but not the reverse, and every scope covers itself.
func ScopeMatches(granted, requested string) bool {
	if granted == requested {
		return true
	}
	return strings.HasPrefix(requested, granted+":")
}

// scopeCovered reports whether any granted scope covers requested.
func scopeCovered(granted []string, requested string) bool {
	for _, g := range granted {
		if ScopeMatches(g, requested) {
			return true
		}
	}
	return false
}
