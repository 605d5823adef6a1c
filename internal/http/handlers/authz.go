package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	applog "babyshop/internal/log"
	"babyshop/internal/services"
)

// RequireAdmin lets a request through only with a live admin session; everyone
// else is sent to the login page before the handler runs.
func RequireAdmin(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.Cookies(SessionCookie)
		if tok == "" {
			return c.Redirect("/admin/login")
		}
		sess, ok := auth.Session(tok)
		if !ok {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "unknown_or_expired_session"})
			return c.Redirect("/admin/login")
		}
		c.Locals("admin", sess)
		return c.Next()
	}
}

// AttachAdmin marks the request as admin when a valid session cookie is present,
// so public pages can show the admin link.
func AttachAdmin(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tok := c.Cookies(SessionCookie); tok != "" {
			if sess, ok := auth.Session(tok); ok {
				c.Locals("admin", sess)
			}
		}
		return c.Next()
	}
}

// RequireOrigin rejects state-changing requests whose Origin header names a site
// other than this host or one of allowed. Requests without an Origin header pass
// through to the csrf token check.
func RequireOrigin(allowed []string) fiber.Handler {
	trusted := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		trusted[normalizeOrigin(o)] = true
	}
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		origin := normalizeOrigin(c.Get(fiber.HeaderOrigin))
		if origin == "" || origin == normalizeOrigin(c.BaseURL()) || trusted[origin] {
			return c.Next()
		}
		applog.Security(c, "origin.blocked", map[string]any{"origin": origin})
		return renderStatus(c, fiber.StatusForbidden, "notfound", fiber.Map{"Message": "La verificación de seguridad falló. Recarga la página e intenta de nuevo."})
	}
}

func normalizeOrigin(o string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
}
