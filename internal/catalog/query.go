// Package catalog turns listing filters into a backend-neutral query description.
// Building a query performs no I/O; the store translates the result with ToSQL and
// tests evaluate it in memory with Matches/Apply.
package catalog

import (
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"

	"babyshop/internal/domain"
	"babyshop/internal/freshness"
)

const Table = "products"

// NewArrivalsLimit caps the home page grid.
const NewArrivalsLimit = 6

type Sort struct {
	Field string
	Desc  bool
}

var DefaultSort = Sort{Field: "created_at", Desc: true}

var sortable = map[string]bool{"created_at": true, "name": true, "price": true, "id": true}

// Filters are the recognized listing options. Zero values mean "not filtered":
// ID 0 and Limit 0 add nothing, and a zero Sort falls back to DefaultSort.
type Filters struct {
	ID           int64
	Category     string
	NameContains string
	FreshOnly    bool
	Limit        int
	Sort         Sort
}

type QuerySpec struct {
	Table      string
	Predicates []Predicate
	Sort       Sort
	Limit      int
}

type Builder struct {
	Categories domain.CategorySet
	Window     time.Duration
}

func NewBuilder(cats domain.CategorySet, window time.Duration) *Builder {
	if window <= 0 {
		window = freshness.DefaultWindow
	}
	return &Builder{Categories: cats, Window: window}
}

func (b *Builder) Build(f Filters, now time.Time) (QuerySpec, error) {
	if f.Limit < 0 {
		return QuerySpec{}, errors.Wrapf(domain.ErrInvalidFilter, "limit %d", f.Limit)
	}
	if f.ID < 0 {
		return QuerySpec{}, errors.Wrapf(domain.ErrInvalidFilter, "id %d", f.ID)
	}
	s := f.Sort
	if s.Field == "" {
		s = DefaultSort
	}
	if !sortable[s.Field] {
		return QuerySpec{}, errors.Wrapf(domain.ErrInvalidFilter, "sort field %q", s.Field)
	}

	q := QuerySpec{Table: Table, Sort: s, Limit: f.Limit}
	if f.ID > 0 {
		q.Predicates = append(q.Predicates, Eq{Field: "id", Value: f.ID})
	}
	if cat := strings.ToLower(strings.TrimSpace(f.Category)); cat != "" {
		if !b.Categories.Has(cat) {
			return QuerySpec{}, errors.Wrapf(domain.ErrInvalidFilter, "category %q", f.Category)
		}
		q.Predicates = append(q.Predicates, Eq{Field: "category", Value: cat})
	}
	if sub := strings.TrimSpace(f.NameContains); sub != "" {
		q.Predicates = append(q.Predicates, ContainsFold{Field: "name", Substr: sub})
	}
	if f.FreshOnly {
		q.Predicates = append(q.Predicates, AtLeast{Field: "created_at", Value: freshness.Cutoff(now, b.Window)})
	}
	return q, nil
}

// Matches evaluates the conjunction of predicates against one row.
func (q QuerySpec) Matches(p domain.Product) bool {
	for _, pr := range q.Predicates {
		if !pr.Match(p) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits rows the way the store would.
func (q QuerySpec) Apply(rows []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(rows))
	for _, p := range rows {
		if q.Matches(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j], q.Sort.Field)
		if c == 0 {
			c = compare(out[i], out[j], "id")
		}
		if q.Sort.Desc {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Dialect is what ToSQL needs to know about the target database.
type Dialect struct {
	Placeholder sq.PlaceholderFormat
	// Fold is the SQL function applied to the column in a substring match. Its
	// Go counterpart is applied to the search text.
	Fold string
}

var (
	// SQLite relies on the fold() function registered by the store, since the
	// built-in LOWER only folds ASCII.
	SQLite   = Dialect{Placeholder: sq.Question, Fold: "fold"}
	Postgres = Dialect{Placeholder: sq.Dollar, Fold: "LOWER"}
)

// FoldString is the Go side of the SQLite fold() function.
func FoldString(s string) string { return cases.Fold().String(s) }

// ToSQL renders a SELECT for the given dialect. Ties on the sort field are broken
// by id in the same direction so pages are stable.
func (q QuerySpec) ToSQL(d Dialect, columns ...string) (string, []any, error) {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	table := q.Table
	if table == "" {
		table = Table
	}
	b := sq.StatementBuilder.PlaceholderFormat(d.Placeholder).Select(columns...).From(table)
	for _, p := range q.Predicates {
		b = b.Where(p.sqlizer(d))
	}
	s := q.Sort
	if s.Field == "" {
		s = DefaultSort
	}
	dir := " ASC"
	if s.Desc {
		dir = " DESC"
	}
	b = b.OrderBy(s.Field+dir, "id"+dir)
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b.ToSql()
}

func compare(a, b domain.Product, field string) int {
	switch field {
	case "id":
		return cmpInt(a.ID, b.ID)
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "price":
		return a.Price.Cmp(b.Price)
	default:
		ta, errA := freshness.Parse(a.CreatedAt)
		tb, errB := freshness.Parse(b.CreatedAt)
		if errA != nil || errB != nil {
			return strings.Compare(a.CreatedAt, b.CreatedAt)
		}
		return ta.Compare(tb)
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
