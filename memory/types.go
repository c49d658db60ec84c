package memory

import (
	"time"

	"github.com/carebridge/memorycore/graph"
	"github.com/carebridge/memorycore/semantic"
)

// ModifiedTag marks a cached associative entry as mutated; consolidation
// strips it before the replacement record is appended.
const ModifiedTag = "modified"

type (
	// StructuredEntry is one cached structured result. The caller mutates
	// Result.Properties directly and sets Modified; consolidation replays
	// modified entries as conflict-checked updates.
	StructuredEntry struct {
		Result   graph.Result
		Modified bool
	}

	// SemanticEntry is one cached associative result. Modified entries are
	// consolidated as fresh append-only records, never updated in place.
	SemanticEntry struct {
		Result   semantic.Result
		Modified bool
	}

	// AffectObservation is one affect-state reading extracted from either
	// store during a working-memory load.
	AffectObservation struct {
		SourceID   string
		SourceKind string // "structured" or "semantic"
		State      semantic.AffectState
		ObservedAt time.Time
	}

	// WorkingMemory is the time-boxed short-term cache for one context.
	// ExpiresAt is fixed at creation and never extended by access; a fresh
	// load replaces an expired context.
	WorkingMemory struct {
		ContextID  string
		Structured []*StructuredEntry
		Semantic   []*SemanticEntry
		Affect     []AffectObservation
		CreatedAt  time.Time
		ExpiresAt  time.Time
	}
)

// Expired reports whether the context's lifetime has passed.
func (wm *WorkingMemory) Expired(now time.Time) bool {
	return now.After(wm.ExpiresAt)
}

// Dirty reports whether any cached entry has been modified since the load.
func (wm *WorkingMemory) Dirty() bool {
	for _, e := range wm.Structured {
		if e.Modified {
			return true
		}
	}
	for _, e := range wm.Semantic {
		if e.Modified {
			return true
		}
	}
	return false
}
