package memory

import (
	"context"
	"log/slog"

	"github.com/carebridge/memorycore/errors"
	"github.com/carebridge/memorycore/graph"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/semantic"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// workingMemoryEntityTypes are the structured categories a working-memory
// load pulls in.
var workingMemoryEntityTypes = []string{"event", "theme", "user", "contact"}

// LoadWorkingMemory returns the cached context for contextID while it is
// alive; otherwise it queries both stores, merges the results into a fresh
// context with a fixed expiry, and caches it.
func (c *coordinator) LoadWorkingMemory(ctx context.Context, contextID, query string, sc scope.Scope) (*WorkingMemory, error) {
	if err := scope.ValidateAccess(sc, scope.PermissionRead); err != nil {
		return nil, err
	}

	now := c.now()

	c.mu.Lock()
	if wm, ok := c.cache[contextID]; ok && !wm.Expired(now) {
		c.mu.Unlock()
		return wm, nil
	}
	c.mu.Unlock()

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to embed working memory query")
	}

	structuredQuery := &graph.StructuredQuery{
		EntityTypes: workingMemoryEntityTypes,
		Filters: []graph.Filter{
			{Field: "content", Op: graph.OperatorContains, Value: query},
		},
		Limit: c.conf.StructuredResultLimit,
	}
	semanticQuery := semantic.Query{
		Embedding: embedding,
		Threshold: c.conf.SimilarityThreshold,
		Limit:     c.conf.SearchLimit,
	}

	// Both stores are independent; query them in parallel.
	var (
		structuredResults []graph.Result
		semanticResults   []semantic.Result
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		structuredResults, err = c.graph.Query(egCtx, structuredQuery, sc)
		return err
	})
	eg.Go(func() error {
		var err error
		semanticResults, err = c.semantic.Query(egCtx, semanticQuery, sc)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrapf(err, "failed to load working memory for context %s", contextID)
	}

	wm := &WorkingMemory{
		ContextID: contextID,
		Structured: lo.Map(structuredResults, func(r graph.Result, _ int) *StructuredEntry {
			return &StructuredEntry{Result: r}
		}),
		Semantic: lo.Map(semanticResults, func(r semantic.Result, _ int) *SemanticEntry {
			return &SemanticEntry{Result: r}
		}),
		CreatedAt: now,
		ExpiresAt: now.Add(c.conf.WorkingMemoryTTL()),
	}
	wm.Affect = extractAffectObservations(wm)

	c.mu.Lock()
	c.cache[contextID] = wm
	c.mu.Unlock()

	c.logger.Debug("working memory loaded",
		slog.String("context", contextID),
		slog.Int("structured", len(wm.Structured)),
		slog.Int("semantic", len(wm.Semantic)))
	return wm, nil
}

// ConsolidateWorkingMemory replays every modified cached entry back into
// durable storage: structured entries as conflict-checked updates inside one
// graph transaction, associative entries as fresh append-only records.
// Structured updates replay first, so any failure there rolls back before a
// single record is appended. Associative appends sit outside the graph
// transaction; a graph commit failing after them leaves those records in
// place, and being append-only they are safe to write again on retry.
// On success the cached context is discarded.
func (c *coordinator) ConsolidateWorkingMemory(ctx context.Context, contextID string, wm *WorkingMemory) error {
	if wm == nil {
		c.mu.Lock()
		wm = c.cache[contextID]
		c.mu.Unlock()
		if wm == nil {
			return nil
		}
	}
	if !wm.Dirty() {
		return nil
	}

	consolidationScope := scope.Scope{
		ID:      "consolidation:" + contextID,
		UserIDs: []string{contextID},
		Permissions: scope.Permissions{
			Read:  true,
			Write: true,
		},
	}

	tx, err := c.txm.Begin(consolidationScope)
	if err != nil {
		return err
	}

	for _, entry := range wm.Structured {
		if !entry.Modified {
			continue
		}
		if err := c.graph.UpdateEntity(ctx, entry.Result, tx); err != nil {
			if rbErr := c.txm.Rollback(tx); rbErr != nil {
				c.logger.Warn("rollback failed after consolidation error", slog.Any("error", rbErr))
			}
			return errors.Wrapf(err, "failed to consolidate working memory for context %s", contextID)
		}
	}

	for _, entry := range wm.Semantic {
		if !entry.Modified {
			continue
		}
		record := entry.Result.Record
		cleaned := lo.Filter(record.Tags, func(tag string, _ int) bool {
			return tag != ModifiedTag
		})
		result := c.semantic.Store(ctx, semantic.StoreInput{
			Content:   record.Content,
			Embedding: record.Embedding,
			Source:    record.Source,
			Tags:      cleaned,
			OwnerID:   record.OwnerID,
		}, record.Affect, consolidationScope)
		if !result.Success {
			if rbErr := c.txm.Rollback(tx); rbErr != nil {
				c.logger.Warn("rollback failed after consolidation error", slog.Any("error", rbErr))
			}
			return errors.Errorf("failed to consolidate working memory for context %s: %s", contextID, result.Error)
		}
		tx.Record("semantic.append", result.RecordID)
	}

	if err := c.txm.Commit(tx); err != nil {
		return errors.Wrapf(err, "failed to consolidate working memory for context %s", contextID)
	}

	c.mu.Lock()
	delete(c.cache, contextID)
	c.mu.Unlock()

	c.logger.Info("working memory consolidated", slog.String("context", contextID))
	return nil
}

// CleanupExpiredContexts sweeps every expired context out of the cache and
// reports how many were removed. Scheduling is left to the host process.
func (c *coordinator) CleanupExpiredContexts() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, wm := range c.cache {
		if wm.Expired(now) {
			delete(c.cache, id)
			removed++
		}
	}
	return removed
}
