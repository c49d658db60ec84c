package memory

import (
	"github.com/mitchellh/mapstructure"

	"github.com/carebridge/memorycore/semantic"
)

// affectPropertyKey is where structured entities carry their affect reading.
const affectPropertyKey = "affect_state"

// extractAffectObservations collects every affect-state reading present in
// the freshly loaded context, structured results first, then associative
// ones, preserving result order.
func extractAffectObservations(wm *WorkingMemory) []AffectObservation {
	var observations []AffectObservation

	for _, entry := range wm.Structured {
		raw, ok := entry.Result.Properties[affectPropertyKey]
		if !ok {
			continue
		}
		var state semantic.AffectState
		if err := mapstructure.Decode(raw, &state); err != nil {
			continue
		}
		observations = append(observations, AffectObservation{
			SourceID:   entry.Result.ID,
			SourceKind: "structured",
			State:      state,
			ObservedAt: entry.Result.UpdatedAt,
		})
	}

	for _, entry := range wm.Semantic {
		record := entry.Result.Record
		if record.Affect == nil {
			continue
		}
		observations = append(observations, AffectObservation{
			SourceID:   record.ID,
			SourceKind: "semantic",
			State:      *record.Affect,
			ObservedAt: record.CreatedAt,
		})
	}

	return observations
}
