package semantic

import (
	"context"
	"sync"
	"time"

	"github.com/carebridge/memorycore/internal/vecmath"
	"github.com/carebridge/memorycore/scope"
	"github.com/google/uuid"
)

// InMemoryStore is the in-process Store implementation. It backs tests and
// small single-process deployments; similarity is computed with one batch
// matrix multiplication over the scope-visible records.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
	}
}

// Query implements Store.Query.
func (s *InMemoryStore) Query(ctx context.Context, q Query, sc scope.Scope) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(q.Embedding) == 0 {
		return []Result{}, nil
	}

	candidates := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		if inScope(r, sc) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	embeddings := make([][]float32, len(candidates))
	for i, r := range candidates {
		embeddings[i] = r.Embedding
	}

	// Records with a mismatched embedding dimension score 0 and fall out at
	// the threshold; on the query path that is tolerated, not an error.
	scores := vecmath.BatchCosine(q.Embedding, embeddings)

	results := make([]Result, len(candidates))
	for i, r := range candidates {
		results[i] = Result{Record: copyRecord(r), Similarity: scores[i]}
	}
	return applyQueryFilters(results, q), nil
}

// Store implements Store.Store.
func (s *InMemoryStore) Store(ctx context.Context, in StoreInput, affect *AffectState, sc scope.Scope) StorageResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &Record{
		ID:        in.ID,
		Content:   in.Content,
		Embedding: append([]float32(nil), in.Embedding...),
		Source:    in.Source,
		Tags:      append([]string(nil), in.Tags...),
		OwnerID:   ownerFor(in, sc),
		CreatedAt: time.Now(),
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if affect != nil {
		a := *affect
		record.Affect = &a
	}

	s.records[record.ID] = record
	return StorageResult{Success: true, RecordID: record.ID}
}

// Close implements Store.Close.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	return nil
}

// Len reports how many records are held; used by sweeps and tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(r *Record) *Record {
	out := &Record{
		ID:        r.ID,
		Content:   r.Content,
		Embedding: append([]float32(nil), r.Embedding...),
		Source:    r.Source,
		Tags:      append([]string(nil), r.Tags...),
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
	}
	if r.Affect != nil {
		a := *r.Affect
		out.Affect = &a
	}
	return out
}
