// Package brand extracts product brand names from sub-question text.
package brand

import (
	"regexp"
	"strings"
)

var brandPattern = regexp.MustCompile(`(?i)\bbrand\s+(?:'([^']+)'|"([^"]+)"|([A-Za-z0-9][\w-]*))`)

// Extract returns the brand named in text as `brand 'X'`, `brand "X"` or
// `brand X`, or fallback when none is named.
func Extract(text, fallback string) string {
	m := brandPattern.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	for _, g := range m[1:] {
		if s := strings.TrimSpace(g); s != "" {
			return s
		}
	}
	return fallback
}
