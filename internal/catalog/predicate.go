package catalog

import (
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"babyshop/internal/domain"
	"babyshop/internal/freshness"
)

// Predicate is one conjunct of a QuerySpec.
type Predicate interface {
	Match(p domain.Product) bool
	sqlizer(d Dialect) sq.Sqlizer
}

// Eq is an exact match on id or category.
type Eq struct {
	Field string
	Value any
}

func (e Eq) Match(p domain.Product) bool {
	switch e.Field {
	case "id":
		id, ok := e.Value.(int64)
		return ok && p.ID == id
	case "category":
		s, ok := e.Value.(string)
		return ok && p.Category == s
	}
	return false
}

func (e Eq) sqlizer(Dialect) sq.Sqlizer { return sq.Eq{e.Field: e.Value} }

// ContainsFold is a case-insensitive substring match.
type ContainsFold struct {
	Field  string
	Substr string
}

func (c ContainsFold) Match(p domain.Product) bool {
	if c.Field != "name" {
		return false
	}
	return strings.Contains(FoldString(p.Name), FoldString(c.Substr))
}

func (c ContainsFold) sqlizer(d Dialect) sq.Sqlizer {
	substr := strings.ToLower(c.Substr)
	if d.Fold != "LOWER" {
		substr = FoldString(c.Substr)
	}
	return sq.Expr(d.Fold+"("+c.Field+") LIKE ? ESCAPE '\\'", "%"+escapeLike(substr)+"%")
}

// AtLeast is a lower bound on a timestamp column.
type AtLeast struct {
	Field string
	Value time.Time
}

func (a AtLeast) Match(p domain.Product) bool {
	if a.Field != "created_at" {
		return false
	}
	t, err := freshness.Parse(p.CreatedAt)
	if err != nil {
		return false
	}
	return !t.Before(a.Value)
}

func (a AtLeast) sqlizer(Dialect) sq.Sqlizer { return sq.GtOrEq{a.Field: freshness.Format(a.Value)} }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
