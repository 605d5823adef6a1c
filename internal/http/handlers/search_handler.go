package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"babyshop/internal/log"
	"babyshop/internal/services"
	"babyshop/internal/validate"
)

type SearchHandler struct {
	Catalog *services.CatalogService
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	rawQ := c.Query("q")
	if strings.TrimSpace(rawQ) == "" {
		// Initial page load: show empty search without errors
		return render(c, "search", fiber.Map{"Q": "", "Products": []any{}, "Count": 0})
	}
	q, ok := validate.Q(rawQ)
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "q", "value": rawQ})
		return renderStatus(c, fiber.StatusBadRequest, "search", fiber.Map{
			"Q": "", "Products": []any{}, "Count": 0, "Err": "Ingresa una búsqueda válida (letras y números).",
		})
	}

	products, err := h.Catalog.Search(c.UserContext(), q)
	if err != nil {
		log.Error(c, "search.error", err, map[string]any{"q": q})
		status, msg := classify(err)
		return renderStatus(c, status, "search", fiber.Map{"Q": q, "Products": []any{}, "Count": 0, "Err": msg})
	}

	return render(c, "search", fiber.Map{"Q": q, "Products": products, "Count": len(products)})
}
