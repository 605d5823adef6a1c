package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"babyshop/internal/domain"
	applog "babyshop/internal/log"
	"babyshop/internal/services"
	"babyshop/internal/validate"
)

type CategoryHandler struct {
	Catalog *services.CatalogService
}

// Home shows the category cards and the new-arrivals grid. A failing
// new-arrivals read only hides that section.
func (h *CategoryHandler) Home(c *fiber.Ctx) error {
	data := fiber.Map{"Categories": h.Catalog.CategoryCards(c.UserContext())}
	fresh, err := h.Catalog.NewArrivals(c.UserContext())
	if err != nil {
		applog.Error(c, "home.new_arrivals.fail", err, nil)
		_, msg := classify(err)
		data["Err"] = msg
		fresh = nil
	}
	data["NewArrivals"] = fresh
	return render(c, "home", data)
}

func (h *CategoryHandler) List(c *fiber.Ctx) error {
	slug, ok := validate.Category(c.Params("category"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "category"})
		return notFound(c, "Esa categoría no existe.")
	}
	cat, products, err := h.Catalog.ByCategory(c.UserContext(), slug)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFilter) {
			return notFound(c, "Esa categoría no existe.")
		}
		applog.Error(c, "category.list.fail", err, map[string]any{"category": slug})
		status, msg := classify(err)
		return renderStatus(c, status, "notfound", fiber.Map{"Message": msg})
	}
	return render(c, "category", fiber.Map{"Category": cat, "Products": products, "Count": len(products)})
}
