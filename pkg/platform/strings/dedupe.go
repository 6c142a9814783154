// Package strings provides string list helpers for configuration parsing.
package strings

import (
	"strings"
)

// SplitList flattens values that may themselves be comma-separated, trims each
// item and drops empties and duplicates. Order of first occurrence is kept.
// Environment variables arrive as one "a, b" string while config files yield
// real lists, so both shapes go through here.
func SplitList(values []string) []string {
	return splitList(values, false)
}

// SplitListLower is SplitList with case folding, for case-insensitive values
// such as MIME types.
func SplitListLower(values []string) []string {
	return splitList(values, true)
}

func splitList(values []string, lower bool) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			item := strings.TrimSpace(part)
			if lower {
				item = strings.ToLower(item)
			}
			if item == "" {
				continue
			}
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
