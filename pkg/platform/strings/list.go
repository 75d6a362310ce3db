// Package strings provides helpers for list-valued inputs such as repeated
// query parameters and comma separated environment variables.
package strings

import (
	"strings"
)

// SplitList splits every value on commas, trims whitespace and drops empty
// and duplicate elements. Order of first occurrence is preserved. The result
// is nil when no element survives.
//
// Example:
//
//	SplitList("upload, access_granted", "upload", " ")
//	// Returns: []string{"upload", "access_granted"}
func SplitList(values ...string) []string {
	var result []string
	seen := make(map[string]struct{})

	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				result = append(result, trimmed)
			}
		}
	}

	return result
}
