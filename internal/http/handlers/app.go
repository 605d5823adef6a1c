package handlers

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/pkg/errors"

	applog "babyshop/internal/log"
)

// ErrorHandler logs the error and shows a friendly page without internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		applog.Error(c, "server.error", err, nil)
	}
	msg := "Algo salió mal. Intenta de nuevo."
	switch code {
	case fiber.StatusNotFound:
		msg = "No encontramos lo que buscabas."
	case fiber.StatusRequestEntityTooLarge:
		msg = "El archivo es demasiado grande."
	}
	if rerr := renderStatus(c, code, "notfound", fiber.Map{"Message": msg}); rerr != nil {
		return c.Status(code).SendString(msg)
	}
	return nil
}

// NewApp builds the fiber app with every middleware and route. views is the
// template engine; staticDir may be empty.
func NewApp(d *Deps, views fiber.Views, staticDir string) *fiber.App {
	cfg := d.Config
	app := fiber.New(fiber.Config{
		Views:        views,
		ErrorHandler: ErrorHandler,
		// room for the multipart envelope around the largest allowed image
		BodyLimit: int(cfg.MaxImageBytes) + 1<<20,
	})

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New(helmet.Config{
		ContentSecurityPolicy: contentSecurityPolicy(cfg.ImageDomains),
	}))
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("site", d.Site)
		return c.Next()
	})
	app.Use(AttachAdmin(d.Auth))
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			p := string(c.Request().URI().Path())
			return strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/media/")
		},
	}))
	app.Use(RequireOrigin(cfg.AllowedOrigins))
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "form:csrf",
		CookieName:     "csrf_",
		ContextKey:     "csrf",
		CookieSameSite: "Lax",
		CookieSecure:   strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"err": err.Error()})
			return renderStatus(c, fiber.StatusForbidden, "notfound", fiber.Map{"Message": "La verificación de seguridad falló. Recarga la página e intenta de nuevo."})
		},
	}))
	app.Use(func(c *fiber.Ctx) error {
		if tok, ok := c.Locals("csrf").(string); ok {
			c.Locals("CSRFToken", tok)
		}
		return c.Next()
	})

	// ---------- Static assets ----------
	if staticDir != "" {
		app.Static("/static", staticDir)
	}
	app.Get("/media/*", mediaHandler(cfg.MediaDir))

	// ---------- Public pages ----------
	app.Get("/", d.CategoryHandler.Home)
	app.Get("/categorias/:category", d.CategoryHandler.List)
	app.Get("/buscar", limiter.New(limiter.Config{Max: 30, Expiration: time.Minute}), d.SearchHandler.Search)
	app.Get("/contacto", d.ContactHandler.Show)

	// ---------- API ----------
	api := app.Group("/api/v1")
	apiLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|api"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.api.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Get("/products", apiLimiter, d.ProductHandler.List)
	api.Get("/products/:id", apiLimiter, d.ProductHandler.Get)

	// ---------- Admin ----------
	app.Get("/admin/login", d.AuthHandler.LoginForm)
	app.Post("/admin/login", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return renderStatus(c, fiber.StatusTooManyRequests, "admin_login", fiber.Map{"Err": "Demasiados intentos. Intenta más tarde."})
		},
	}), d.AuthHandler.Login)
	app.Post("/admin/logout", d.AuthHandler.Logout)

	admin := app.Group("/admin", RequireAdmin(d.Auth))
	admin.Get("/", d.AdminHandler.List)
	admin.Get("/products.csv", d.AdminHandler.ExportCSV)
	admin.Get("/products/new", d.AdminHandler.NewForm)
	admin.Post("/products", d.AdminHandler.Create)
	admin.Get("/products/:id/edit", d.AdminHandler.EditForm)
	admin.Post("/products/:id", d.AdminHandler.Update)
	admin.Post("/products/:id/delete", d.AdminHandler.Delete)

	// ---------- Health & 404 ----------
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return notFound(c, "Página no encontrada.")
	})
	return app
}

// contentSecurityPolicy is helmet's default policy with the configured image
// hosts allowed in img-src.
func contentSecurityPolicy(imageDomains []string) string {
	img := append([]string{"'self'", "data:"}, imageDomains...)
	return strings.Join([]string{
		"default-src 'self'",
		"img-src " + strings.Join(img, " "),
		"style-src 'self' 'unsafe-inline'",
		"script-src 'self'",
		"object-src 'none'",
		"frame-ancestors 'self'",
		"base-uri 'self'",
		"form-action 'self'",
	}, "; ")
}

// mediaHandler serves bucket objects from dir and blocks path traversal.
func mediaHandler(dir string) fiber.Handler {
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	return func(c *fiber.Ctx) error {
		path := c.Params("*")
		rawLower := strings.ToLower(path)
		// Block encoded traversal attempts as well as raw .. or null bytes
		if strings.Contains(rawLower, "..") || strings.Contains(rawLower, "%2e") || strings.Contains(rawLower, "\x00") {
			applog.Security(c, "media.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		clean := filepath.Clean(path)
		if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
			applog.Security(c, "media.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
		return c.SendFile(filepath.Join(dir, clean), true)
	}
}
