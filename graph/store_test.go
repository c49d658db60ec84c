package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/memorycore/errors"
	"github.com/carebridge/memorycore/graph"
	"github.com/carebridge/memorycore/internal/mylog"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/txn"
)

func newTestStore(t *testing.T) (*graph.Store, *txn.Manager) {
	t.Helper()

	store, err := graph.Open(":memory:", mylog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store, txn.NewManager(store, mylog.NewNopLogger())
}

func writeScope(users ...string) scope.Scope {
	return scope.Scope{
		ID:          "test",
		UserIDs:     users,
		Permissions: scope.Permissions{Read: true, Write: true},
	}
}

func createEntity(t *testing.T, store *graph.Store, manager *txn.Manager, in graph.EntityInput) string {
	t.Helper()
	ctx := context.Background()

	tx, err := manager.Begin(writeScope(in.UserID))
	require.NoError(t, err)

	result, err := store.Store(ctx, graph.Data{
		Mutation: graph.MutationCreate,
		Entities: []graph.EntityInput{in},
	}, tx)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.Len(t, result.AffectedIDs, 1)
	require.NoError(t, manager.Commit(tx))

	return result.AffectedIDs[0]
}

func TestStore_CreateAndQuery(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	id := createEntity(t, store, manager, graph.EntityInput{
		Labels:     []string{"event"},
		Properties: map[string]any{"content": "birthday party for grandma"},
		UserID:     "u1",
	})
	createEntity(t, store, manager, graph.EntityInput{
		Labels:     []string{"event"},
		Properties: map[string]any{"content": "doctor appointment"},
		UserID:     "u2",
	})

	results, err := store.Query(ctx, &graph.StructuredQuery{
		EntityTypes: []string{"event"},
	}, scope.Scope{ID: "s", UserIDs: []string{"u1"}, Permissions: scope.Permissions{Read: true}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, graph.KindEntity, results[0].Kind)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, 1, results[0].Version)
	assert.Equal(t, "birthday party for grandma", results[0].Properties["content"])

	// Scope with no overlap returns nothing, not an error.
	results, err = store.Query(ctx, &graph.StructuredQuery{
		EntityTypes: []string{"event"},
	}, scope.Scope{ID: "s", UserIDs: []string{"stranger"}})
	require.NoError(t, err)
	assert.Empty(t, results)

	// All-empty membership means no scope filtering at all.
	results, err = store.Query(ctx, &graph.StructuredQuery{
		EntityTypes: []string{"event"},
	}, scope.Unrestricted("system"))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStore_QueryFilters(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	createEntity(t, store, manager, graph.EntityInput{
		Labels:     []string{"theme"},
		Properties: map[string]any{"content": "gardening stories", "weight": 3},
		UserID:     "u1",
	})
	createEntity(t, store, manager, graph.EntityInput{
		Labels:     []string{"theme"},
		Properties: map[string]any{"content": "war recollections", "weight": 7},
		UserID:     "u1",
	})

	sc := scope.Scope{ID: "s", UserIDs: []string{"u1"}}

	results, err := store.Query(ctx, &graph.StructuredQuery{
		EntityTypes: []string{"theme"},
		Filters:     []graph.Filter{{Field: "content", Op: graph.OperatorContains, Value: "garden"}},
	}, sc)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gardening stories", results[0].Properties["content"])

	results, err = store.Query(ctx, &graph.StructuredQuery{
		EntityTypes: []string{"theme"},
		Filters:     []graph.Filter{{Field: "weight", Op: graph.OperatorGreaterThan, Value: 5}},
	}, sc)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "war recollections", results[0].Properties["content"])
}

func TestStore_ReturnFields(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	createEntity(t, store, manager, graph.EntityInput{
		Labels:     []string{"user"},
		Properties: map[string]any{"content": "profile", "secret": "hidden"},
		UserID:     "u1",
	})

	results, err := store.Query(ctx, &graph.StructuredQuery{
		EntityTypes:  []string{"user"},
		ReturnFields: []string{"content"},
	}, scope.Scope{ID: "s", UserIDs: []string{"u1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]any{"content": "profile"}, results[0].Properties)
}

func TestStore_RawQuery(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	createEntity(t, store, manager, graph.EntityInput{
		Labels:     []string{"event"},
		Properties: map[string]any{"content": "call with daughter"},
		UserID:     "u1",
	})
	createEntity(t, store, manager, graph.EntityInput{
		Labels:     []string{"event"},
		Properties: map[string]any{"content": "call with son"},
		UserID:     "u2",
	})

	// The scope clause still applies to the raw form.
	results, err := store.Query(ctx, &graph.RawQuery{
		SQL: "SELECT * FROM entities",
	}, scope.Scope{ID: "s", UserIDs: []string{"u2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "call with son", results[0].Properties["content"])
}

func TestStore_RequiresOpenTransaction(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, graph.Data{Mutation: graph.MutationCreate}, nil)
	require.Error(t, err)

	unknown := &txn.Transaction{ID: "never-begun"}
	_, err = store.Store(ctx, graph.Data{Mutation: graph.MutationCreate}, unknown)
	require.ErrorIs(t, err, errors.ErrUnknownTransaction)
}

func TestStore_UnknownMutation(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	tx, err := manager.Begin(writeScope("u1"))
	require.NoError(t, err)
	defer func() {
		_ = manager.Rollback(tx)
	}()

	_, err = store.Store(ctx, graph.Data{Mutation: graph.Mutation(99)}, tx)
	require.ErrorIs(t, err, errors.ErrInvalidParams)
}

func TestStore_RelationshipEndpointsRequired(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	sourceID := createEntity(t, store, manager, graph.EntityInput{
		Labels: []string{"user"}, Properties: map[string]any{}, UserID: "u1",
	})
	targetID := createEntity(t, store, manager, graph.EntityInput{
		Labels: []string{"contact"}, Properties: map[string]any{}, UserID: "u1",
	})

	tx, err := manager.Begin(writeScope("u1"))
	require.NoError(t, err)

	// Dangling target: the whole call reports failure.
	result, err := store.Store(ctx, graph.Data{
		Mutation: graph.MutationCreate,
		Relationships: []graph.RelationshipInput{
			{Type: "knows", SourceID: sourceID, TargetID: "missing"},
		},
	}, tx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	require.NoError(t, manager.Rollback(tx))

	tx, err = manager.Begin(writeScope("u1"))
	require.NoError(t, err)
	result, err = store.Store(ctx, graph.Data{
		Mutation: graph.MutationCreate,
		Relationships: []graph.RelationshipInput{
			{Type: "knows", SourceID: sourceID, TargetID: targetID, Properties: map[string]any{"since": "2024"}},
		},
	}, tx)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.NoError(t, manager.Commit(tx))

	results, err := store.Query(ctx, &graph.StructuredQuery{
		RelationshipTypes: []string{"knows"},
	}, scope.Scope{ID: "s", UserIDs: []string{"u1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, graph.KindRelationship, results[0].Kind)
	assert.Equal(t, sourceID, results[0].SourceID)
	assert.Equal(t, targetID, results[0].TargetID)
}

func TestStore_RelationshipOnlyQueryExcludesEntities(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	sourceID := createEntity(t, store, manager, graph.EntityInput{
		Labels: []string{"user"}, Properties: map[string]any{}, UserID: "u1",
	})
	targetID := createEntity(t, store, manager, graph.EntityInput{
		Labels: []string{"contact"}, Properties: map[string]any{}, UserID: "u1",
	})

	tx, err := manager.Begin(writeScope("u1"))
	require.NoError(t, err)
	result, err := store.Store(ctx, graph.Data{
		Mutation: graph.MutationCreate,
		Relationships: []graph.RelationshipInput{
			{Type: "cares_for", SourceID: sourceID, TargetID: targetID},
		},
	}, tx)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.NoError(t, manager.Commit(tx))

	sc := scope.Scope{ID: "s", UserIDs: []string{"u1"}}

	// Only relationship types named: the scope-visible entities stay out.
	results, err := store.Query(ctx, &graph.StructuredQuery{
		RelationshipTypes: []string{"cares_for"},
	}, sc)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, graph.KindRelationship, results[0].Kind)

	// Naming both kinds returns both.
	results, err = store.Query(ctx, &graph.StructuredQuery{
		EntityTypes:       []string{"user"},
		RelationshipTypes: []string{"cares_for"},
	}, sc)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, graph.KindEntity, results[0].Kind)
	assert.Equal(t, graph.KindRelationship, results[1].Kind)
}

func TestStore_MergeCreatesThenUpdates(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	tx, err := manager.Begin(writeScope("u1"))
	require.NoError(t, err)
	result, err := store.Store(ctx, graph.Data{
		Mutation: graph.MutationMerge,
		Entities: []graph.EntityInput{{
			ID:         "e-merge",
			Labels:     []string{"theme"},
			Properties: map[string]any{"content": "first"},
			UserID:     "u1",
		}},
	}, tx)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.NoError(t, manager.Commit(tx))

	tx, err = manager.Begin(writeScope("u1"))
	require.NoError(t, err)
	result, err = store.Store(ctx, graph.Data{
		Mutation: graph.MutationMerge,
		Entities: []graph.EntityInput{{
			ID:         "e-merge",
			Properties: map[string]any{"mood": "warm"},
		}},
	}, tx)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.NoError(t, manager.Commit(tx))

	results, err := store.Query(ctx, &graph.StructuredQuery{EntityTypes: []string{"theme"}},
		scope.Scope{ID: "s", UserIDs: []string{"u1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	// Merge keeps prior properties and bumps the version.
	assert.Equal(t, "first", results[0].Properties["content"])
	assert.Equal(t, "warm", results[0].Properties["mood"])
	assert.Equal(t, 2, results[0].Version)
}

func TestConditionalUpdate_VersionProgression(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	id := createEntity(t, store, manager, graph.EntityInput{
		Labels: []string{"event"}, Properties: map[string]any{"content": "v1"}, UserID: "u1",
	})

	// After N successful conditional updates, version == 1 + N.
	for i := 1; i <= 4; i++ {
		newVersion, err := store.ConditionalUpdate(ctx, nil, id, i, map[string]any{"content": "next"})
		require.NoError(t, err)
		assert.Equal(t, i+1, newVersion)
	}

	results, err := store.Query(ctx, &graph.StructuredQuery{EntityTypes: []string{"event"}},
		scope.Scope{ID: "s", UserIDs: []string{"u1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 5, results[0].Version)
}

func TestConditionalUpdate_StaleVersionConflicts(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	id := createEntity(t, store, manager, graph.EntityInput{
		Labels: []string{"event"}, Properties: map[string]any{"content": "original"}, UserID: "u1",
	})

	// Two writers both read version 1; exactly one wins.
	_, err := store.ConditionalUpdate(ctx, nil, id, 1, map[string]any{"content": "winner"})
	require.NoError(t, err)

	_, err = store.ConditionalUpdate(ctx, nil, id, 1, map[string]any{"content": "loser"})
	require.Error(t, err)

	var conflict *graph.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, id, conflict.EntityID)
	assert.Equal(t, 1, conflict.ExpectedVersion)
	assert.Equal(t, 2, conflict.ActualVersion)

	// The losing write left the entity untouched.
	results, err := store.Query(ctx, &graph.StructuredQuery{EntityTypes: []string{"event"}},
		scope.Scope{ID: "s", UserIDs: []string{"u1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "winner", results[0].Properties["content"])
	assert.Equal(t, 2, results[0].Version)
}

func TestConditionalUpdate_MissingEntity(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.ConditionalUpdate(context.Background(), nil, "no-such-entity", 1, map[string]any{})
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestUpdateEntity_ReplaysQueryResult(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	id := createEntity(t, store, manager, graph.EntityInput{
		Labels: []string{"event"}, Properties: map[string]any{"content": "before"}, UserID: "u1",
	})

	sc := scope.Scope{ID: "s", UserIDs: []string{"u1"}, Permissions: scope.Permissions{Read: true, Write: true}}
	results, err := store.Query(ctx, &graph.StructuredQuery{EntityTypes: []string{"event"}}, sc)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results[0].Properties["content"] = "after"

	tx, err := manager.Begin(sc)
	require.NoError(t, err)
	require.NoError(t, store.UpdateEntity(ctx, results[0], tx))
	require.NoError(t, manager.Commit(tx))
	assert.NotEmpty(t, tx.Operations())

	results, err = store.Query(ctx, &graph.StructuredQuery{EntityTypes: []string{"event"}}, sc)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "after", results[0].Properties["content"])
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, 2, results[0].Version)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store, manager := newTestStore(t)
	ctx := context.Background()

	tx, err := manager.Begin(writeScope("u1"))
	require.NoError(t, err)

	result, err := store.Store(ctx, graph.Data{
		Mutation: graph.MutationCreate,
		Entities: []graph.EntityInput{{
			Labels: []string{"event"}, Properties: map[string]any{"content": "discard me"}, UserID: "u1",
		}},
	}, tx)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.NoError(t, manager.Rollback(tx))
	assert.Equal(t, txn.StatusRolledBack, tx.Status())

	results, err := store.Query(ctx, &graph.StructuredQuery{EntityTypes: []string{"event"}},
		scope.Unrestricted("system"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCommitUnknownNativeTransaction(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.CommitTransaction(&txn.Transaction{ID: "ghost"})
	require.ErrorIs(t, err, errors.ErrUnknownTransaction)

	err = store.RollbackTransaction(&txn.Transaction{ID: "ghost"})
	require.ErrorIs(t, err, errors.ErrUnknownTransaction)
}
