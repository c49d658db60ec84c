package graph

import (
	"time"
)

// Operator is one of the six comparison operators accepted by structured
// query filters.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorContains    Operator = "contains"
	OperatorStartsWith  Operator = "startsWith"
	OperatorEndsWith    Operator = "endsWith"
	OperatorGreaterThan Operator = "greaterThan"
	OperatorLessThan    Operator = "lessThan"
)

type (
	// Filter compares one property against a value.
	Filter struct {
		Field string
		Op    Operator
		Value any
	}

	// StructuredQuery is the typed query form: required entity-type
	// patterns, optional relationship-type patterns, property filters and a
	// return-field list. A query with no filters returns all scope-visible
	// rows up to Limit.
	StructuredQuery struct {
		EntityTypes       []string
		RelationshipTypes []string
		Filters           []Filter
		ReturnFields      []string
		Limit             int
	}

	// RawQuery is the fallback form: native SQL over the entities table.
	// The scope clause is still appended around it before execution.
	RawQuery struct {
		SQL    string
		Params []any
	}

	// Query is either a StructuredQuery or a RawQuery; no other query shape
	// is accepted.
	Query interface {
		query()
	}
)

func (*StructuredQuery) query() {}
func (*RawQuery) query()        {}

// ResultKind discriminates entity results from relationship results.
type ResultKind string

const (
	KindEntity       ResultKind = "entity"
	KindRelationship ResultKind = "relationship"
)

// Result is one scope-visible row returned by Query, with the version
// metadata the conditional update needs.
type Result struct {
	Kind ResultKind
	ID   string

	// Entity fields.
	Labels []string

	// Relationship fields.
	Type     string
	SourceID string
	TargetID string

	Properties map[string]any
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Mutation is the closed set of write operations Store accepts.
type Mutation int

const (
	MutationCreate Mutation = iota
	MutationUpdate
	MutationMerge
)

func (m Mutation) String() string {
	switch m {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationMerge:
		return "merge"
	default:
		return "unknown"
	}
}

type (
	// EntityInput is one entity to write.
	EntityInput struct {
		ID         string
		Labels     []string
		Properties map[string]any
		UserID     string
		ProjectID  string
		ContactID  string
	}

	// RelationshipInput is one relationship to write. Both endpoints must
	// already exist in the same transaction's view.
	RelationshipInput struct {
		ID         string
		Type       string
		SourceID   string
		TargetID   string
		Properties map[string]any
	}

	// Data is the payload of one Store call.
	Data struct {
		Mutation      Mutation
		Entities      []EntityInput
		Relationships []RelationshipInput
	}

	// TransactionResult reports the outcome of a Store call. Individual
	// write failures surface here as Success=false; the caller decides
	// whether to roll back.
	TransactionResult struct {
		Success     bool
		AffectedIDs []string
		Error       string
	}
)
