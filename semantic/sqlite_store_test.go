package semantic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/memorycore/internal/mylog"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/semantic"
)

func newSqliteStore(t *testing.T) *semantic.SqliteStore {
	t.Helper()

	store, err := semantic.NewSqliteStore(":memory:", 4, mylog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestSqliteStore_StoreAndQuery(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()
	sc := scope.Scope{ID: "s", UserIDs: []string{"u1"}}

	affect := &semantic.AffectState{Approach: 0.5, Avoidance: 0.1, ProblemSolving: 0.4, Confidence: 0.8}
	id := storeRecord(t, store, "grandson's wedding next spring", unitVector(0.05), affect,
		[]string{semantic.ProjectTag("family")}, sc)
	storeRecord(t, store, "unrelated memory", unitVector(2.5), nil, nil, sc)

	results, err := store.Query(ctx, semantic.Query{Embedding: unitVector(0)}, sc)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Record.ID)
	assert.Equal(t, "grandson's wedding next spring", results[0].Record.Content)
	assert.Equal(t, "u1", results[0].Record.OwnerID)
	assert.Equal(t, []string{semantic.ProjectTag("family")}, results[0].Record.Tags)
	require.NotNil(t, results[0].Record.Affect)
	assert.InDelta(t, 0.5, results[0].Record.Affect.Approach, 1e-9)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.01)

	// The stored vector rides along on the result so a caller can re-append
	// the record without re-embedding.
	assert.Equal(t, unitVector(0.05), results[0].Record.Embedding)
}

func TestSqliteStore_ScopeFiltering(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	storeRecord(t, store, "alice only", unitVector(0), nil, nil,
		scope.Scope{ID: "a", UserIDs: []string{"alice"}})
	storeRecord(t, store, "tagged for contact", unitVector(0), nil,
		[]string{semantic.ContactTag("nurse-kim")}, scope.Scope{ID: "b", UserIDs: []string{"bob"}})

	results, err := store.Query(ctx, semantic.Query{Embedding: unitVector(0)},
		scope.Scope{ID: "q", UserIDs: []string{"alice"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice only", results[0].Record.Content)

	results, err = store.Query(ctx, semantic.Query{Embedding: unitVector(0)},
		scope.Scope{ID: "q", UserIDs: []string{"carol"}, ContactIDs: []string{"nurse-kim"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged for contact", results[0].Record.Content)

	results, err = store.Query(ctx, semantic.Query{Embedding: unitVector(0)},
		scope.Scope{ID: "q", UserIDs: []string{"nobody"}})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.Query(ctx, semantic.Query{Embedding: unitVector(0)},
		scope.Unrestricted("system"))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSqliteStore_RecordWithoutEmbeddingIsNotSearchable(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()
	sc := scope.Scope{ID: "s", UserIDs: []string{"u1"}}

	result := store.Store(ctx, semantic.StoreInput{Content: "no embedding"}, nil, sc)
	require.True(t, result.Success, result.Error)

	results, err := store.Query(ctx, semantic.Query{Embedding: unitVector(0)}, sc)
	require.NoError(t, err)
	assert.Empty(t, results)
}
