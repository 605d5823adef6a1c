package handlers

import "github.com/gofiber/fiber/v2"

func render(c *fiber.Ctx, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if site, ok := c.Locals("site").(Site); ok {
		data["Site"] = site
	}
	if c.Locals("admin") != nil {
		data["Admin"] = true
	}
	// Pick up the token the CSRF middleware put into Locals
	tok, _ := c.Locals("CSRFToken").(string)
	if tok == "" {
		// Fall back to the CSRF cookie so forms never carry an empty hidden field.
		tok = c.Cookies("csrf_")
	}
	if tok != "" {
		data["CSRFToken"] = tok
	}
	return c.Render(tmpl, data)
}

// renderStatus sets the status code and renders; the status survives a failed render.
func renderStatus(c *fiber.Ctx, status int, tmpl string, data fiber.Map) error {
	c.Status(status)
	return render(c, tmpl, data)
}

func notFound(c *fiber.Ctx, msg string) error {
	if msg == "" {
		msg = "No encontramos lo que buscabas."
	}
	return renderStatus(c, fiber.StatusNotFound, "notfound", fiber.Map{"Message": msg})
}
