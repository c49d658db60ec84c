package memory

import (
	"context"
	"log/slog"

	"github.com/carebridge/memorycore/graph"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/semantic"
)

// QueryStructured runs a structured or raw query after the read permission
// check.
func (c *coordinator) QueryStructured(ctx context.Context, q graph.Query, sc scope.Scope) ([]graph.Result, error) {
	if err := scope.ValidateAccess(sc, scope.PermissionRead); err != nil {
		return nil, err
	}
	return c.graph.Query(ctx, q, sc)
}

// QueryAssociative runs a similarity query after the read permission check.
func (c *coordinator) QueryAssociative(ctx context.Context, q semantic.Query, sc scope.Scope) ([]semantic.Result, error) {
	if err := scope.ValidateAccess(sc, scope.PermissionRead); err != nil {
		return nil, err
	}
	return c.semantic.Query(ctx, q, sc)
}

// StoreStructured wraps one graph write in its own transaction: commit when
// every individual write landed, roll back otherwise.
func (c *coordinator) StoreStructured(ctx context.Context, data graph.Data, sc scope.Scope) (graph.TransactionResult, error) {
	if err := scope.ValidateAccess(sc, scope.PermissionWrite); err != nil {
		return graph.TransactionResult{}, err
	}

	tx, err := c.txm.Begin(sc)
	if err != nil {
		return graph.TransactionResult{}, err
	}

	result, err := c.graph.Store(ctx, data, tx)
	if err != nil {
		if rbErr := c.txm.Rollback(tx); rbErr != nil {
			c.logger.Warn("rollback failed after store error", slog.Any("error", rbErr))
		}
		return graph.TransactionResult{}, err
	}
	if !result.Success {
		if rbErr := c.txm.Rollback(tx); rbErr != nil {
			c.logger.Warn("rollback failed after failed store", slog.Any("error", rbErr))
		}
		return result, nil
	}

	if err := c.txm.Commit(tx); err != nil {
		return graph.TransactionResult{}, err
	}
	return result, nil
}

// StoreAssociative appends one semantic record after the write permission
// check. Failures surface in the result, not as an error.
func (c *coordinator) StoreAssociative(ctx context.Context, in semantic.StoreInput, affect *semantic.AffectState, sc scope.Scope) (semantic.StorageResult, error) {
	if err := scope.ValidateAccess(sc, scope.PermissionWrite); err != nil {
		return semantic.StorageResult{}, err
	}
	return c.semantic.Store(ctx, in, affect, sc), nil
}
