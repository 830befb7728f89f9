// Package references merges the cross-references a finding carries (CVE
// vectors, CWE/CAPEC/WASC ids, advisory links, exploit descriptors, malware
// family names) into one deduplicated, deterministically ordered list.
package references

import (
	"sort"
	"strings"
)

// bulletMarker starts every line of a bulleted reference string.
const bulletMarker = "- "

// Aggregate unions every group into a set, trims entries, drops empty ones
// and returns them sorted lexicographically. Aggregating an already
// aggregated list returns the same list.
func Aggregate(groups ...[]string) []string {
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, ref := range group {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			seen[ref] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// SplitBulleted expands a reference field that may hold a newline-delimited
// bulleted list ("- a\n- b"). Strings that do not start with the bullet
// marker are returned as a single entry. Empty input yields nil.
func SplitBulleted(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if !strings.HasPrefix(s, bulletMarker) {
		return []string{s}
	}

	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimPrefix(line, bulletMarker)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Exploit joins an exploit descriptor into one reference string. It reports
// false unless title, link, type and skill level are all present.
func Exploit(title, link, kind, skill string) (string, bool) {
	parts := []string{
		strings.TrimSpace(title),
		strings.TrimSpace(link),
		strings.TrimSpace(kind),
		strings.TrimSpace(skill),
	}
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}
	return strings.Join(parts, " "), true
}

// Prefixed renders a typed identifier such as "CWE:79". Empty ids and the
// "none" markers some scanners emit (0, -1) yield "".
func Prefixed(prefix, id string) string {
	id = strings.TrimSpace(id)
	switch id {
	case "", "0", "-1":
		return ""
	}
	return prefix + ":" + id
}
