package handlers

import (
	"github.com/gofiber/fiber/v2"

	"babyshop/internal/catalog"
	"babyshop/internal/log"
	"babyshop/internal/services"
	"babyshop/internal/validate"
)

// ProductHandler serves the read-only JSON API.
type ProductHandler struct {
	Catalog *services.CatalogService
}

func apiError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// GET /api/v1/products?category=&q=&fresh=&limit=
func (h *ProductHandler) List(c *fiber.Ctx) error {
	var f catalog.Filters
	if raw := c.Query("category"); raw != "" {
		cat, ok := validate.Category(raw)
		if !ok {
			log.Security(c, "validation.fail", map[string]any{"field": "category"})
			return apiError(c, fiber.StatusBadRequest, "invalid category")
		}
		f.Category = cat
	}
	if raw := c.Query("q"); raw != "" {
		q, ok := validate.Q(raw)
		if !ok {
			log.Security(c, "validation.fail", map[string]any{"field": "q"})
			return apiError(c, fiber.StatusBadRequest, "invalid query")
		}
		f.NameContains = q
	}
	fresh, ok := validate.Flag(c.Query("fresh"))
	if !ok {
		return apiError(c, fiber.StatusBadRequest, "invalid fresh flag")
	}
	f.FreshOnly = fresh
	limit, ok := validate.Limit(c.Query("limit"))
	if !ok {
		return apiError(c, fiber.StatusBadRequest, "invalid limit")
	}
	f.Limit = limit

	items, err := h.Catalog.List(c.UserContext(), f)
	if err != nil {
		status, _ := classify(err)
		if status >= fiber.StatusInternalServerError {
			log.Error(c, "api.products.fail", err, nil)
			return apiError(c, status, "backend unavailable")
		}
		return apiError(c, status, "invalid filter")
	}
	return c.JSON(fiber.Map{"items": items, "count": len(items)})
}

// GET /api/v1/products/:id
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apiError(c, fiber.StatusNotFound, "product not found")
	}
	p, err := h.Catalog.Get(c.UserContext(), id)
	if err != nil {
		status, _ := classify(err)
		if status >= fiber.StatusInternalServerError {
			log.Error(c, "api.product.fail", err, map[string]any{"id": id})
			return apiError(c, status, "backend unavailable")
		}
		return apiError(c, status, "product not found")
	}
	return c.JSON(p)
}
