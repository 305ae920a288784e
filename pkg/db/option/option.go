// Package option provides composable gorm query options for the generic
// repository.
package option

import "gorm.io/gorm"

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// Condition expresses a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if cond.Field == "" || cond.Operator == "" {
			return db
		}
		return db.Where(cond.Field+" "+string(cond.Operator)+" ?", cond.Value)
	})
}

// QuerySortBy restricts ordering to an allow-listed set of columns.
type QuerySortBy struct {
	Allow map[string]bool
	Field string
	Desc  bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := sort.Field
		if field == "" {
			field = "created_at"
		}
		if len(sort.Allow) > 0 && !sort.Allow[field] {
			return db
		}
		order := field
		if sort.Desc {
			order += " DESC"
		}
		return db.Order(order)
	})
}

// WithWhere applies a raw conditional clause.
func WithWhere(query string, args ...any) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOffset(offset int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return db
		}
		return db.Offset(offset)
	})
}
