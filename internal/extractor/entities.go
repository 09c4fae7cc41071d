package extractor

import "strings"

// MaxEntities caps how many names are sent to the enricher per section.
const MaxEntities = 8

// FilterEntities trims names, drops empties and case-insensitive
// duplicates, and caps the list at MaxEntities.
func FilterEntities(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
		if len(out) == MaxEntities {
			break
		}
	}
	return out
}
