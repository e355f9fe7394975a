package graph

import (
	"cmp"
	"slices"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// MatchesAny reports whether the entity name equals one of names after
// normalization, or contains one of them as a run of whole words. "q3"
// matches "Q3 budget" but not "Q30".
func MatchesAny(entityName string, names []string) bool {
	have := strings.Fields(memory.NormalizeName(entityName))
	if len(have) == 0 {
		return false
	}
	for _, n := range names {
		want := strings.Fields(memory.NormalizeName(n))
		if len(want) == 0 || len(want) > len(have) {
			continue
		}
		for i := 0; i+len(want) <= len(have); i++ {
			if slices.Equal(have[i:i+len(want)], want) {
				return true
			}
		}
	}
	return false
}

// SortRelated orders by shared entity count, then memory ID.
func SortRelated(r []Related) {
	slices.SortFunc(r, func(a, b Related) int {
		return cmp.Or(cmp.Compare(b.Shared, a.Shared), strings.Compare(a.MemoryID, b.MemoryID))
	})
}

// SortEntityCounts orders by mentions, then normalized name.
func SortEntityCounts(c []EntityCount) {
	slices.SortFunc(c, func(a, b EntityCount) int {
		return cmp.Or(
			cmp.Compare(b.Mentions, a.Mentions),
			strings.Compare(memory.NormalizeName(a.Entity.Name), memory.NormalizeName(b.Entity.Name)),
			strings.Compare(a.Entity.ID, b.Entity.ID),
		)
	})
}
