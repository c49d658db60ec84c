package graph

import (
	"fmt"
	"strings"

	"github.com/carebridge/memorycore/errors"
	"github.com/carebridge/memorycore/scope"
	"github.com/samber/lo"
)

// defaultQueryLimit bounds structured queries that carry no limit of their
// own.
const defaultQueryLimit = 100

// Compiled is a native query plus its bind arguments, ready for execution.
type Compiled struct {
	SQL  string
	Args []any
}

// CompileEntityQuery translates a structured query into the entity SELECT,
// always appending the scope disjunction unless the scope is unrestricted.
// It is a pure function so the translation is testable without a live store.
func CompileEntityQuery(q *StructuredQuery, sc scope.Scope) (Compiled, error) {
	var (
		where []string
		args  []any
	)

	if len(q.EntityTypes) > 0 {
		labelTerms := make([]string, 0, len(q.EntityTypes))
		for _, label := range q.EntityTypes {
			labelTerms = append(labelTerms,
				"EXISTS (SELECT 1 FROM json_each(entities.labels) WHERE json_each.value = ?)")
			args = append(args, label)
		}
		where = append(where, "("+strings.Join(labelTerms, " OR ")+")")
	}

	for _, f := range q.Filters {
		term, filterArgs, err := compileFilter("entities.properties", f)
		if err != nil {
			return Compiled{}, err
		}
		where = append(where, term)
		args = append(args, filterArgs...)
	}

	if clause, scopeArgs := compileScopeClause("entities", sc); clause != "" {
		where = append(where, clause)
		args = append(args, scopeArgs...)
	}

	sql := "SELECT * FROM entities"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY entities.created_at, entities.id LIMIT ?"
	args = append(args, limitOrDefault(q.Limit))

	return Compiled{SQL: sql, Args: args}, nil
}

// CompileRelationshipQuery translates the relationship-type patterns of a
// structured query. The scope clause applies to the source endpoint, so a
// relationship is visible exactly when its source entity is.
func CompileRelationshipQuery(q *StructuredQuery, sc scope.Scope) (Compiled, error) {
	var (
		where []string
		args  []any
	)

	if len(q.RelationshipTypes) > 0 {
		placeholders := strings.Repeat("?,", len(q.RelationshipTypes))
		where = append(where, "relationships.type IN ("+placeholders[:len(placeholders)-1]+")")
		for _, t := range q.RelationshipTypes {
			args = append(args, t)
		}
	}

	for _, f := range q.Filters {
		term, filterArgs, err := compileFilter("relationships.properties", f)
		if err != nil {
			return Compiled{}, err
		}
		where = append(where, term)
		args = append(args, filterArgs...)
	}

	if clause, scopeArgs := compileScopeClause("source", sc); clause != "" {
		where = append(where, clause)
		args = append(args, scopeArgs...)
	}

	sql := "SELECT relationships.* FROM relationships" +
		" JOIN entities source ON source.id = relationships.source_id"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY relationships.created_at, relationships.id LIMIT ?"
	args = append(args, limitOrDefault(q.Limit))

	return Compiled{SQL: sql, Args: args}, nil
}

// WrapRawQuery appends the scope clause around a caller-supplied native
// query. The raw form must yield entity-shaped rows.
func WrapRawQuery(q *RawQuery, sc scope.Scope) Compiled {
	clause, scopeArgs := compileScopeClause("raw", sc)
	if clause == "" {
		return Compiled{SQL: q.SQL, Args: q.Params}
	}

	sql := "SELECT * FROM (" + q.SQL + ") AS raw WHERE " + clause
	return Compiled{SQL: sql, Args: append(append([]any{}, q.Params...), scopeArgs...)}
}

func compileFilter(column string, f Filter) (string, []any, error) {
	if !validFieldName(f.Field) {
		return "", nil, errors.Wrapf(errors.ErrInvalidParams, "invalid filter field %q", f.Field)
	}
	extract := fmt.Sprintf("json_extract(%s, '$.%s')", column, f.Field)

	switch f.Op {
	case OperatorEquals:
		return extract + " = ?", []any{f.Value}, nil
	case OperatorContains:
		return extract + " LIKE ?", []any{"%" + fmt.Sprint(f.Value) + "%"}, nil
	case OperatorStartsWith:
		return extract + " LIKE ?", []any{fmt.Sprint(f.Value) + "%"}, nil
	case OperatorEndsWith:
		return extract + " LIKE ?", []any{"%" + fmt.Sprint(f.Value)}, nil
	case OperatorGreaterThan:
		return extract + " > ?", []any{f.Value}, nil
	case OperatorLessThan:
		return extract + " < ?", []any{f.Value}, nil
	default:
		return "", nil, errors.Wrapf(errors.ErrInvalidParams, "unknown filter operator %q", f.Op)
	}
}

// compileScopeClause builds the ownership disjunction. An unrestricted scope
// yields no clause at all.
func compileScopeClause(table string, sc scope.Scope) (string, []any) {
	if sc.Unrestricted() {
		return "", nil
	}

	var (
		terms []string
		args  []any
	)
	appendIn := func(column string, ids []string) {
		if len(ids) == 0 {
			return
		}
		placeholders := strings.Repeat("?,", len(ids))
		terms = append(terms, fmt.Sprintf("%s.%s IN (%s)", table, column, placeholders[:len(placeholders)-1]))
		args = append(args, lo.ToAnySlice(ids)...)
	}
	appendIn("user_id", sc.UserIDs)
	appendIn("project_id", sc.ProjectIDs)
	appendIn("contact_id", sc.ContactIDs)

	return "(" + strings.Join(terms, " OR ") + ")", args
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	return limit
}

func validFieldName(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
