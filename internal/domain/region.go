package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// RegionKey normalizes a free-text region for substring matching.
// Hangul typed on different keyboards may arrive decomposed, so it is NFC-composed first.
func RegionKey(region string) string {
	s := norm.NFC.String(strings.TrimSpace(region))
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// RegionMatches reports whether an item region contains the selected region.
// An empty selection matches everything.
func RegionMatches(itemRegion, selected string) bool {
	key := RegionKey(selected)
	if key == "" {
		return true
	}
	return strings.Contains(RegionKey(itemRegion), key)
}
