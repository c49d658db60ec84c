package semantic

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/carebridge/memorycore/errors"
	"github.com/carebridge/memorycore/internal/db"
	"github.com/carebridge/memorycore/scope"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SqliteStore implements Store on SQLite with the sqlite-vec extension.
// Record rows live in a plain table; embeddings live in a vec0 virtual table
// keyed by record id, using the cosine distance metric.
type SqliteStore struct {
	db     *gorm.DB
	vecDim int
	logger *slog.Logger
}

var _ Store = (*SqliteStore)(nil)

type recordRow struct {
	ID        string `gorm:"primaryKey"`
	Content   string `gorm:"type:text"`
	Affect    datatypes.JSONType[*AffectState]
	Source    string
	Tags      datatypes.JSONType[[]string]
	OwnerID   string `gorm:"index"`
	CreatedAt time.Time
}

func (recordRow) TableName() string {
	return "semantic_records"
}

// NewSqliteStore opens (or creates) the semantic store at dbPath with the
// given embedding dimension.
func NewSqliteStore(dbPath string, dimension int, logger *slog.Logger) (*SqliteStore, error) {
	sqlite_vec.Auto()

	conn, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SqliteStore{db: conn, vecDim: dimension, logger: logger}

	if err := conn.AutoMigrate(&recordRow{}); err != nil {
		return nil, errors.Wrapf(err, "failed to migrate semantic records table")
	}
	if err := store.createVectorTable(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SqliteStore) createVectorTable() error {
	var sqliteVersion, vecVersion string
	if err := s.db.Raw("SELECT sqlite_version(), vec_version()").Row().Scan(&sqliteVersion, &vecVersion); err != nil {
		return errors.Wrapf(err, "sqlite-vec extension not properly loaded")
	}

	createTableSQL := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS semantic_vectors USING vec0(
			record_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.vecDim)
	if err := s.db.Exec(createTableSQL).Error; err != nil {
		return errors.Wrapf(err, "failed to create semantic_vectors table")
	}
	return nil
}

// Query implements Store.Query: a plain KNN fetch over the vector table,
// then in-process scope filtering and the shared threshold/sort/limit/affect
// pipeline. vec0 KNN accepts only the MATCH plus k constraints; scope cannot
// be pushed into the vector query.
func (s *SqliteStore) Query(ctx context.Context, q Query, sc scope.Scope) ([]Result, error) {
	if len(q.Embedding) == 0 {
		return []Result{}, nil
	}

	serializedQuery, err := sqlite_vec.SerializeFloat32(q.Embedding)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize query embedding")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	searchSQL := `
		SELECT record_id, distance, embedding
		FROM semantic_vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`
	rows, err := s.db.WithContext(ctx).Raw(searchSQL, serializedQuery, limit*candidateFactor).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "semantic query failed")
	}
	defer rows.Close()

	type match struct {
		distance  float64
		embedding []float32
	}
	matchByID := make(map[string]match)
	var ids []string
	for rows.Next() {
		var (
			id       string
			distance float64
			blob     []byte
		)
		if err := rows.Scan(&id, &distance, &blob); err != nil {
			return nil, errors.Wrapf(err, "failed to scan semantic match row")
		}
		ids = append(ids, id)
		matchByID[id] = match{distance: distance, embedding: deserializeFloat32(blob)}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "semantic query failed")
	}
	if len(ids) == 0 {
		return []Result{}, nil
	}

	var records []recordRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to fetch semantic records")
	}

	results := make([]Result, 0, len(records))
	for _, row := range records {
		record := rowToRecord(row)
		if !inScope(record, sc) {
			continue
		}
		m := matchByID[row.ID]
		record.Embedding = m.embedding
		// Cosine distance; similarity = 1 - distance.
		results = append(results, Result{
			Record:     record,
			Similarity: 1.0 - m.distance,
		})
	}
	return applyQueryFilters(results, q), nil
}

// Store implements Store.Store. Failures become a StorageResult rather than
// an error; callers must check Success.
func (s *SqliteStore) Store(ctx context.Context, in StoreInput, affect *AffectState, sc scope.Scope) StorageResult {
	row := recordRow{
		ID:      in.ID,
		Content: in.Content,
		Affect:  datatypes.NewJSONType(affect),
		Source:  in.Source,
		Tags:    datatypes.NewJSONType(in.Tags),
		OwnerID: ownerFor(in, sc),
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return errors.Wrapf(err, "failed to save semantic record")
		}

		if len(in.Embedding) > 0 {
			serialized, err := sqlite_vec.SerializeFloat32(in.Embedding)
			if err != nil {
				return errors.Wrapf(err, "failed to serialize embedding")
			}
			if err := tx.Exec(
				"INSERT INTO semantic_vectors (record_id, embedding) VALUES (?, ?)",
				row.ID, serialized,
			).Error; err != nil {
				return errors.Wrapf(err, "failed to insert semantic vector")
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("semantic store failed", slog.Any("error", err))
		return StorageResult{Success: false, Error: err.Error()}
	}

	return StorageResult{Success: true, RecordID: row.ID}
}

// Close releases the underlying database connection.
func (s *SqliteStore) Close() error {
	return db.Close(s.db)
}

// deserializeFloat32 is the inverse of sqlite_vec.SerializeFloat32:
// little-endian float32 values packed four bytes apart.
func deserializeFloat32(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func rowToRecord(row recordRow) *Record {
	return &Record{
		ID:        row.ID,
		Content:   row.Content,
		Affect:    row.Affect.Data(),
		Source:    row.Source,
		Tags:      row.Tags.Data(),
		OwnerID:   row.OwnerID,
		CreatedAt: row.CreatedAt,
	}
}
