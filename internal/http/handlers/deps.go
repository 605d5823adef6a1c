package handlers

import (
	"strings"

	"github.com/jmoiron/sqlx"

	"babyshop/internal/catalog"
	"babyshop/internal/config"
	"babyshop/internal/repos"
	"babyshop/internal/services"
	"babyshop/internal/storage"
)

const siteTitle = "Para tu bebé | Productos con amor para los más pequeños"

// Site is the data every page template gets.
type Site struct {
	Title      string
	WhatsApp   string
	Categories []CategoryLink
}

type CategoryLink struct {
	Slug string
	Name string
}

type Deps struct {
	Config          config.Config
	Site            Site
	Auth            *services.AuthService
	Catalog         *services.CatalogService
	Products        *services.ProductService
	Orphans         *repos.OrphanRepo
	Bucket          storage.Bucket
	CategoryHandler *CategoryHandler
	SearchHandler   *SearchHandler
	ContactHandler  *ContactHandler
	ProductHandler  *ProductHandler
	AuthHandler     *AuthHandler
	AdminHandler    *AdminHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, auth *services.AuthService, bucket storage.Bucket) *Deps {
	cats := cfg.CategorySet()
	prodRepo := repos.NewProductRepo(db)
	catRepo := repos.NewCategoryRepo(db)
	orphanRepo := repos.NewOrphanRepo(db)

	catalogSvc := services.NewCatalogService(prodRepo, catRepo, catalog.NewBuilder(cats, cfg.FreshWindow), cfg.RequestTimeout)
	productSvc := services.NewProductService(prodRepo, bucket, orphanRepo, cats, cfg.MaxImageBytes, cfg.RequestTimeout)

	site := Site{Title: siteTitle, WhatsApp: digits(cfg.WhatsApp)}
	for _, c := range cats.List() {
		site.Categories = append(site.Categories, CategoryLink{Slug: c.Slug, Name: c.Name})
	}

	return &Deps{
		Config:          cfg,
		Site:            site,
		Auth:            auth,
		Catalog:         catalogSvc,
		Products:        productSvc,
		Orphans:         orphanRepo,
		Bucket:          bucket,
		CategoryHandler: &CategoryHandler{Catalog: catalogSvc},
		SearchHandler:   &SearchHandler{Catalog: catalogSvc},
		ContactHandler:  &ContactHandler{WhatsApp: site.WhatsApp},
		ProductHandler:  &ProductHandler{Catalog: catalogSvc},
		AuthHandler:     &AuthHandler{Auth: auth, SecureCookie: strings.HasPrefix(cfg.PublicBaseURL, "https://")},
		AdminHandler:    &AdminHandler{Catalog: catalogSvc, Products: productSvc, MaxImageBytes: cfg.MaxImageBytes},
	}
}

// digits keeps only 0-9, the form wa.me links expect.
func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
