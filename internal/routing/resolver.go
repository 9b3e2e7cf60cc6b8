package routing

import (
	"sort"

	"github.com/rs/zerolog"
)

// SortDecisions orders decisions by descending priority. The sort is
// stable: equal-priority decisions keep the order their producing
// evaluators hold in the registry.
func SortDecisions(decisions []Decision) {
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Priority > decisions[j].Priority
	})
}

// ResolveDecisions deduplicates a priority-sorted decision list so that
// at most one decision survives per destination instance: the first seen,
// which is the highest-priority one offered for that instance.
func ResolveDecisions(decisions []Decision, logger zerolog.Logger) []Decision {
	resolved := make([]Decision, 0, len(decisions))
	seen := make(map[int64]bool, len(decisions))

	for _, d := range decisions {
		if seen[d.InstanceID] {
			logger.Debug().
				Int64("instanceId", d.InstanceID).
				Int("priority", d.Priority).
				Msg("dropping lower-priority decision for already-routed instance")
			continue
		}
		seen[d.InstanceID] = true
		resolved = append(resolved, d)
	}

	return resolved
}
