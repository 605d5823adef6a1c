package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Description string          `db:"description" json:"description"`
	Category    string          `db:"category" json:"category"`
	ImageURL    string          `db:"image_url" json:"image_url,omitempty"`
	IsNew       bool            `db:"is_new" json:"is_new"` // deprecated: derived from CreatedAt
	CreatedAt   string          `db:"created_at" json:"created_at"`
	UpdatedAt   string          `db:"updated_at" json:"updated_at,omitempty"`
}

// ProductPatch lists the columns an update may touch. Nil fields are left as stored.
type ProductPatch struct {
	Name        *string
	Price       *decimal.Decimal
	Description *string
	Category    *string
	ImageURL    *string
	UpdatedAt   string
}

type Category struct {
	Slug        string `yaml:"slug" json:"slug"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// CategorySet is the configured category enumeration, in display order.
type CategorySet struct {
	list []Category
}

func NewCategorySet(cats []Category) CategorySet {
	out := make([]Category, 0, len(cats))
	seen := map[string]bool{}
	for _, c := range cats {
		c.Slug = strings.ToLower(strings.TrimSpace(c.Slug))
		if c.Slug == "" || seen[c.Slug] {
			continue
		}
		if c.Name == "" {
			c.Name = c.Slug
		}
		seen[c.Slug] = true
		out = append(out, c)
	}
	return CategorySet{list: out}
}

func DefaultCategories() []Category {
	return []Category{
		{Slug: "ropa", Name: "Ropa Bebé", Description: "Explora nuestra colección de ropa para bebé"},
		{Slug: "juguetes", Name: "Juguetes", Description: "Diviértete con nuestra selección de juguetes"},
		{Slug: "basicos", Name: "Productos Básicos", Description: "Artículos esenciales para el hogar y cuidado diario"},
	}
}

func (s CategorySet) Has(slug string) bool {
	_, ok := s.Get(slug)
	return ok
}

func (s CategorySet) Get(slug string) (Category, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, c := range s.list {
		if c.Slug == slug {
			return c, true
		}
	}
	return Category{}, false
}

func (s CategorySet) List() []Category {
	out := make([]Category, len(s.list))
	copy(out, s.list)
	return out
}

func (s CategorySet) Len() int { return len(s.list) }
