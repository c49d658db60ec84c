package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/carebridge/memorycore/errors"
	"github.com/carebridge/memorycore/internal/db"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/txn"
	"github.com/mokiat/gog"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is the structured (entity/relationship) store. Writes go through an
// explicit transaction lifecycle mapped onto native gorm transactions;
// conflicting concurrent writers are ordered by the per-entity version
// check, not by locking.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu     sync.Mutex
	native map[string]*gorm.DB
}

var _ txn.Backend = (*Store)(nil)

// NewStore wraps an already-open gorm database and migrates the entity and
// relationship tables.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Entity{}, &Relationship{}); err != nil {
		return nil, errors.Wrapf(err, "failed to migrate graph tables")
	}
	return &Store{
		db:     db,
		logger: logger,
		native: make(map[string]*gorm.DB),
	}, nil
}

// Open opens the sqlite database at path and builds a store on it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStore(conn, logger)
}

// Query executes a structured or raw query, always under the scope filter.
// A query whose scope yields no overlap returns nothing rather than erroring.
func (s *Store) Query(ctx context.Context, q Query, sc scope.Scope) ([]Result, error) {
	switch q := q.(type) {
	case *StructuredQuery:
		return s.queryStructured(ctx, q, sc)
	case *RawQuery:
		compiled := WrapRawQuery(q, sc)
		rows, err := s.scanEntities(ctx, compiled)
		if err != nil {
			return nil, errors.Wrapf(err, "graph query failed")
		}
		return lo.Map(rows, func(e Entity, _ int) Result {
			return entityResult(e, nil)
		}), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidParams, "unsupported query type %T", q)
	}
}

func (s *Store) queryStructured(ctx context.Context, q *StructuredQuery, sc scope.Scope) ([]Result, error) {
	var results []Result

	// A query naming only relationship types returns relationships alone.
	if len(q.EntityTypes) > 0 || len(q.RelationshipTypes) == 0 {
		compiled, err := CompileEntityQuery(q, sc)
		if err != nil {
			return nil, err
		}
		entities, err := s.scanEntities(ctx, compiled)
		if err != nil {
			return nil, errors.Wrapf(err, "graph query failed")
		}
		results = lo.Map(entities, func(e Entity, _ int) Result {
			return entityResult(e, q.ReturnFields)
		})
	}

	if len(q.RelationshipTypes) > 0 {
		compiled, err := CompileRelationshipQuery(q, sc)
		if err != nil {
			return nil, err
		}
		var rels []Relationship
		if err := s.db.WithContext(ctx).Raw(compiled.SQL, compiled.Args...).Find(&rels).Error; err != nil {
			return nil, errors.Wrapf(err, "graph relationship query failed")
		}
		for _, r := range rels {
			results = append(results, relationshipResult(r, q.ReturnFields))
		}
	}

	return results, nil
}

func (s *Store) scanEntities(ctx context.Context, compiled Compiled) ([]Entity, error) {
	var entities []Entity
	err := s.db.WithContext(ctx).Raw(compiled.SQL, compiled.Args...).Find(&entities).Error
	return entities, err
}

// Store writes the payload's entities and relationships inside an
// already-open transaction. Fatal input problems (nil or unknown
// transaction) return an error; individual write failures return a failure
// result and leave the rollback decision to the caller.
func (s *Store) Store(ctx context.Context, data Data, tx *txn.Transaction) (TransactionResult, error) {
	native, err := s.nativeFor(tx)
	if err != nil {
		return TransactionResult{}, err
	}

	switch data.Mutation {
	case MutationCreate, MutationUpdate, MutationMerge:
	default:
		return TransactionResult{}, errors.Wrapf(errors.ErrInvalidParams, "unknown graph mutation %d", data.Mutation)
	}

	var affected []string
	for _, in := range data.Entities {
		id, err := s.writeEntity(ctx, native, data.Mutation, in)
		if err != nil {
			return failure(err), nil
		}
		affected = append(affected, id)
	}
	for _, in := range data.Relationships {
		id, err := s.writeRelationship(ctx, native, data.Mutation, in)
		if err != nil {
			return failure(err), nil
		}
		affected = append(affected, id)
	}

	tx.Record("graph."+data.Mutation.String(), affected...)
	return TransactionResult{Success: true, AffectedIDs: affected}, nil
}

func (s *Store) writeEntity(ctx context.Context, db *gorm.DB, m Mutation, in EntityInput) (string, error) {
	switch m {
	case MutationCreate:
		return s.createEntity(ctx, db, in)
	case MutationUpdate:
		return s.updateEntityInput(ctx, db, in)
	case MutationMerge:
		var existing Entity
		err := db.WithContext(ctx).First(&existing, "id = ?", in.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.createEntity(ctx, db, in)
		} else if err != nil {
			return "", errors.Wrapf(err, "failed to load entity %s for merge", in.ID)
		}
		return s.updateEntityInput(ctx, db, in)
	}
	return "", errors.WithStack(errors.ErrInvalidParams)
}

func (s *Store) createEntity(ctx context.Context, db *gorm.DB, in EntityInput) (string, error) {
	row := Entity{
		ID:         in.ID,
		Labels:     datatypes.NewJSONType(in.Labels),
		Properties: datatypes.NewJSONType(ensureProperties(in.Properties)),
		UserID:     in.UserID,
		ProjectID:  in.ProjectID,
		ContactID:  in.ContactID,
		Version:    1,
	}
	if row.ID == "" {
		row.ID = newEntityID()
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", errors.Wrapf(err, "failed to create entity %s", row.ID)
	}
	return row.ID, nil
}

// updateEntityInput is a read-merge-write under CAS: the merged properties
// only land if the version read is still current.
func (s *Store) updateEntityInput(ctx context.Context, db *gorm.DB, in EntityInput) (string, error) {
	var existing Entity
	if err := db.WithContext(ctx).First(&existing, "id = ?", in.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.Wrapf(errors.ErrNotFound, "entity %s", in.ID)
		}
		return "", errors.Wrapf(err, "failed to load entity %s", in.ID)
	}

	merged := gog.Merge(existing.Properties.Data(), ensureProperties(in.Properties))
	if _, err := s.conditionalUpdate(ctx, db, in.ID, existing.Version, merged); err != nil {
		return "", err
	}
	return in.ID, nil
}

func (s *Store) writeRelationship(ctx context.Context, db *gorm.DB, m Mutation, in RelationshipInput) (string, error) {
	if err := s.requireEndpoints(ctx, db, in.SourceID, in.TargetID); err != nil {
		return "", err
	}

	switch m {
	case MutationCreate:
		return s.createRelationship(ctx, db, in)
	case MutationUpdate:
		return s.updateRelationship(ctx, db, in)
	case MutationMerge:
		var existing Relationship
		err := db.WithContext(ctx).First(&existing, "id = ?", in.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.createRelationship(ctx, db, in)
		} else if err != nil {
			return "", errors.Wrapf(err, "failed to load relationship %s for merge", in.ID)
		}
		return s.updateRelationship(ctx, db, in)
	}
	return "", errors.WithStack(errors.ErrInvalidParams)
}

func (s *Store) createRelationship(ctx context.Context, db *gorm.DB, in RelationshipInput) (string, error) {
	row := Relationship{
		ID:         in.ID,
		Type:       in.Type,
		SourceID:   in.SourceID,
		TargetID:   in.TargetID,
		Properties: datatypes.NewJSONType(ensureProperties(in.Properties)),
		Version:    1,
	}
	if row.ID == "" {
		row.ID = newEntityID()
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", errors.Wrapf(err, "failed to create relationship %s", row.ID)
	}
	return row.ID, nil
}

func (s *Store) updateRelationship(ctx context.Context, db *gorm.DB, in RelationshipInput) (string, error) {
	var existing Relationship
	if err := db.WithContext(ctx).First(&existing, "id = ?", in.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.Wrapf(errors.ErrNotFound, "relationship %s", in.ID)
		}
		return "", errors.Wrapf(err, "failed to load relationship %s", in.ID)
	}

	merged := gog.Merge(existing.Properties.Data(), ensureProperties(in.Properties))
	res := db.WithContext(ctx).Model(&Relationship{}).
		Where("id = ? AND version = ?", in.ID, existing.Version).
		Updates(map[string]any{
			"properties": datatypes.NewJSONType(merged),
			"version":    existing.Version + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return "", errors.Wrapf(res.Error, "failed to update relationship %s", in.ID)
	}
	if res.RowsAffected == 0 {
		var current Relationship
		if err := db.WithContext(ctx).First(&current, "id = ?", in.ID).Error; err != nil {
			return "", errors.Wrapf(err, "failed to read relationship %s after conflict", in.ID)
		}
		return "", &ConflictError{EntityID: in.ID, ExpectedVersion: existing.Version, ActualVersion: current.Version}
	}
	return in.ID, nil
}

func (s *Store) requireEndpoints(ctx context.Context, db *gorm.DB, sourceID, targetID string) error {
	var count int64
	if err := db.WithContext(ctx).Model(&Entity{}).
		Where("id IN ?", []string{sourceID, targetID}).
		Count(&count).Error; err != nil {
		return errors.Wrapf(err, "failed to check relationship endpoints")
	}
	if count != 2 {
		return errors.Wrapf(errors.ErrNotFound, "relationship endpoints %s -> %s", sourceID, targetID)
	}
	return nil
}

// UpdateEntity replays a previously-read query result as a conflict-checked
// update using the version the result was read at.
func (s *Store) UpdateEntity(ctx context.Context, result Result, tx *txn.Transaction) error {
	if result.Kind != KindEntity {
		return errors.Wrapf(errors.ErrInvalidParams, "cannot update result of kind %s", result.Kind)
	}
	db, err := s.nativeFor(tx)
	if err != nil {
		return err
	}
	newVersion, err := s.conditionalUpdate(ctx, db, result.ID, result.Version, result.Properties)
	if err != nil {
		return err
	}
	tx.Record("graph.updateEntity", result.ID)
	s.logger.Debug("entity updated",
		slog.String("id", result.ID), slog.Int("version", newVersion))
	return nil
}

// ConditionalUpdate is the single compare-and-swap primitive of the system:
// replace the entity's properties iff its version is still expectedVersion,
// bumping the version by one. A nil transaction runs the statement
// autocommitted.
func (s *Store) ConditionalUpdate(ctx context.Context, tx *txn.Transaction, id string, expectedVersion int, properties map[string]any) (int, error) {
	db := s.db
	if tx != nil {
		var err error
		if db, err = s.nativeFor(tx); err != nil {
			return 0, err
		}
	}
	return s.conditionalUpdate(ctx, db, id, expectedVersion, properties)
}

func (s *Store) conditionalUpdate(ctx context.Context, db *gorm.DB, id string, expectedVersion int, properties map[string]any) (int, error) {
	res := db.WithContext(ctx).Model(&Entity{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"properties": datatypes.NewJSONType(ensureProperties(properties)),
			"version":    expectedVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "conditional update of entity %s failed", id)
	}
	if res.RowsAffected == 0 {
		var current Entity
		if err := db.WithContext(ctx).First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, errors.Wrapf(errors.ErrNotFound, "entity %s", id)
			}
			return 0, errors.Wrapf(err, "failed to read entity %s after conflict", id)
		}
		return 0, &ConflictError{
			EntityID:        id,
			ExpectedVersion: expectedVersion,
			ActualVersion:   current.Version,
		}
	}
	return expectedVersion + 1, nil
}

// BeginTransaction maps the abstract transaction onto a native one.
func (s *Store) BeginTransaction(tx *txn.Transaction) error {
	native := s.db.Begin()
	if native.Error != nil {
		return errors.Wrapf(native.Error, "failed to begin native transaction")
	}

	s.mu.Lock()
	s.native[tx.ID] = native
	s.mu.Unlock()
	return nil
}

// CommitTransaction commits the native transaction. The handle is released
// before the commit is attempted, so even a failing commit cannot leak it.
func (s *Store) CommitTransaction(tx *txn.Transaction) error {
	native, err := s.takeNative(tx)
	if err != nil {
		return err
	}
	return errors.Wrapf(native.Commit().Error, "failed to commit native transaction %s", tx.ID)
}

// RollbackTransaction discards the native transaction.
func (s *Store) RollbackTransaction(tx *txn.Transaction) error {
	native, err := s.takeNative(tx)
	if err != nil {
		return err
	}
	return errors.Wrapf(native.Rollback().Error, "failed to rollback native transaction %s", tx.ID)
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return db.Close(s.db)
}

func (s *Store) nativeFor(tx *txn.Transaction) (*gorm.DB, error) {
	if tx == nil {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "operation requires an open transaction")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	native, ok := s.native[tx.ID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownTransaction, "transaction %s has no native handle", tx.ID)
	}
	return native, nil
}

func (s *Store) takeNative(tx *txn.Transaction) (*gorm.DB, error) {
	if tx == nil {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "nil transaction")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	native, ok := s.native[tx.ID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownTransaction, "transaction %s has no native handle", tx.ID)
	}
	delete(s.native, tx.ID)
	return native, nil
}

func entityResult(e Entity, returnFields []string) Result {
	props := e.Properties.Data()
	if len(returnFields) > 0 {
		props = lo.PickByKeys(props, returnFields)
	}
	return Result{
		Kind:       KindEntity,
		ID:         e.ID,
		Labels:     e.Labels.Data(),
		Properties: props,
		Version:    e.Version,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func relationshipResult(r Relationship, returnFields []string) Result {
	props := r.Properties.Data()
	if len(returnFields) > 0 {
		props = lo.PickByKeys(props, returnFields)
	}
	return Result{
		Kind:       KindRelationship,
		ID:         r.ID,
		Type:       r.Type,
		SourceID:   r.SourceID,
		TargetID:   r.TargetID,
		Properties: props,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func ensureProperties(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}

func failure(err error) TransactionResult {
	return TransactionResult{Success: false, Error: err.Error()}
}
