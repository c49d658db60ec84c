package graph

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entity is a typed graph node. Version starts at 1 and increments by exactly
// one per successful conditional update; every other subsystem relies on that
// for conflict detection.
type Entity struct {
	ID         string                             `gorm:"primaryKey"`
	Labels     datatypes.JSONType[[]string]       `gorm:"not null"`
	Properties datatypes.JSONType[map[string]any] `gorm:"not null"`

	// Ownership columns drive scope filtering.
	UserID    string `gorm:"index:idx_entities_owner"`
	ProjectID string `gorm:"index:idx_entities_owner"`
	ContactID string `gorm:"index:idx_entities_owner"`

	Version   int `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Entity) TableName() string {
	return "entities"
}

// Relationship is a typed edge between two entities. Creating, updating or
// deleting one requires both endpoints to exist.
type Relationship struct {
	ID         string                             `gorm:"primaryKey"`
	Type       string                             `gorm:"index;not null"`
	SourceID   string                             `gorm:"index;not null"`
	TargetID   string                             `gorm:"index;not null"`
	Properties datatypes.JSONType[map[string]any] `gorm:"not null"`

	Version   int `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Relationship) TableName() string {
	return "relationships"
}

func newEntityID() string {
	return uuid.NewString()
}
