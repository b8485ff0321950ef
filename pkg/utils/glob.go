package utils

import (
	"fmt"
	"path"
	"strings"
)

// GlobMatch checks if a value matches a glob pattern (path.Match semantics).
// "*" matches everything and a pattern without wildcards is compared exactly.
//
//	GlobMatch("ops-*", "ops-eu")  → true, nil
//	GlobMatch("ops", "ops-eu")    → false, nil
//	GlobMatch("[ops", "ops")      → false, syntax error
func GlobMatch(pattern, value string) (bool, error) {
	if pattern == "*" {
		return true, nil
	}
	if strings.ContainsAny(pattern, "*?[") {
		return path.Match(pattern, value)
	}
	return pattern == value, nil
}

// MatchNames returns the names matched by at least one pattern, keeping the
// order of names. A malformed pattern or one that matches nothing is an error.
func MatchNames(patterns, names []string) ([]string, error) {
	hit := make([]bool, len(names))
	for _, p := range patterns {
		matched := false
		for i, n := range names {
			ok, err := GlobMatch(p, n)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			if ok {
				hit[i] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("no transport named %q", p)
		}
	}

	out := make([]string, 0, len(names))
	for i, n := range names {
		if hit[i] {
			out = append(out, n)
		}
	}
	return out, nil
}
