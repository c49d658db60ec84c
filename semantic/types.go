package semantic

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/carebridge/memorycore/internal/vecmath"
	"github.com/carebridge/memorycore/scope"
	"github.com/samber/lo"
)

const (
	// DefaultThreshold is the minimum cosine similarity a record must reach
	// to be returned when the query does not set its own.
	DefaultThreshold = 0.7

	// DefaultLimit bounds the result count when the query does not set one.
	DefaultLimit = 10

	// affectSimilarityCutoff drops candidates whose recorded affect state is
	// too far from the requested one. Candidates without a recorded affect
	// state are never dropped.
	affectSimilarityCutoff = 0.5

	// candidateFactor over-fetches vector candidates before the in-process
	// scope/threshold filtering trims them down.
	candidateFactor = 3

	projectTagPrefix = "project:"
	contactTagPrefix = "contact:"
)

type (
	// AffectState is the three bounded orientation scalars recorded with a
	// memory, plus the confidence of the observation.
	AffectState struct {
		Approach       float64 `json:"approach" mapstructure:"approach"`
		Avoidance      float64 `json:"avoidance" mapstructure:"avoidance"`
		ProblemSolving float64 `json:"problemSolving" mapstructure:"problem_solving"`
		Confidence     float64 `json:"confidence" mapstructure:"confidence"`
	}

	// Record is one associative memory. Records are append-only from the
	// caller's perspective; an "update" is a fresh record plus tag cleanup,
	// never in-place mutation, so the associative trail is preserved.
	Record struct {
		ID        string       `json:"id"`
		Content   string       `json:"content"`
		Embedding []float32    `json:"-"`
		Affect    *AffectState `json:"affect,omitempty"`
		Source    string       `json:"source"`
		Tags      []string     `json:"tags,omitempty"`
		OwnerID   string       `json:"ownerId"`
		CreatedAt time.Time    `json:"createdAt"`
	}

	// Query is one similarity search. A zero Threshold or Limit falls back
	// to the defaults.
	Query struct {
		Embedding []float32
		Threshold float64
		Limit     int
		Affect    *AffectState
	}

	// Result pairs a record with its similarity to the query embedding.
	Result struct {
		Record     *Record `json:"record"`
		Similarity float64 `json:"similarity"`
	}

	// StoreInput is one record to append.
	StoreInput struct {
		ID        string
		Content   string
		Embedding []float32
		Source    string
		Tags      []string
		OwnerID   string
	}

	// StorageResult converts write failures into a checked result instead of
	// an error, so high-volume write paths avoid error-based control flow.
	StorageResult struct {
		Success  bool   `json:"success"`
		RecordID string `json:"recordId,omitempty"`
		Error    string `json:"error,omitempty"`
	}

	// Store is the associative store contract.
	Store interface {
		Query(ctx context.Context, q Query, sc scope.Scope) ([]Result, error)
		Store(ctx context.Context, in StoreInput, affect *AffectState, sc scope.Scope) StorageResult
		Close() error
	}
)

// Vector is the record's position in the 3-dimensional affect space.
func (a AffectState) Vector() [3]float64 {
	return [3]float64{a.Approach, a.Avoidance, a.ProblemSolving}
}

// ProjectTag and ContactTag encode scope membership into free-form tags.
func ProjectTag(id string) string { return projectTagPrefix + id }
func ContactTag(id string) string { return contactTagPrefix + id }

// scopeIDsFromTags splits a record's tags into the project and contact ids
// they encode.
func scopeIDsFromTags(tags []string) (projectIDs, contactIDs []string) {
	for _, tag := range tags {
		switch {
		case strings.HasPrefix(tag, projectTagPrefix):
			projectIDs = append(projectIDs, strings.TrimPrefix(tag, projectTagPrefix))
		case strings.HasPrefix(tag, contactTagPrefix):
			contactIDs = append(contactIDs, strings.TrimPrefix(tag, contactTagPrefix))
		}
	}
	return projectIDs, contactIDs
}

// inScope applies the same ownership rule as the structured store's scope
// clause, in-process.
func inScope(r *Record, sc scope.Scope) bool {
	projectIDs, contactIDs := scopeIDsFromTags(r.Tags)
	return sc.AllowsOwnership(r.OwnerID, projectIDs, contactIDs)
}

// ownerFor derives the owning identity of a new record: the explicit owner
// if set, else the first scope user, else the scope id itself.
func ownerFor(in StoreInput, sc scope.Scope) string {
	if in.OwnerID != "" {
		return in.OwnerID
	}
	if len(sc.UserIDs) > 0 {
		return sc.UserIDs[0]
	}
	return sc.ID
}

// applyQueryFilters runs the shared result pipeline: threshold, descending
// sort, limit, then the optional affect-state proximity filter.
func applyQueryFilters(results []Result, q Query) []Result {
	threshold := q.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	results = lo.Filter(results, func(r Result, _ int) bool {
		return r.Similarity >= threshold
	})

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > limit {
		results = results[:limit]
	}

	if q.Affect != nil {
		want := q.Affect.Vector()
		results = lo.Filter(results, func(r Result, _ int) bool {
			if r.Record.Affect == nil {
				return true
			}
			return vecmath.AffectSimilarity(want, r.Record.Affect.Vector()) >= affectSimilarityCutoff
		})
	}

	return results
}
