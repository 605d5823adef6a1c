package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"babyshop/internal/log"
	"babyshop/internal/services"
	"babyshop/internal/validate"
)

// SessionCookie carries the admin session token. It has no Expires, so it ends
// with the browser session; the server-side TTL bounds it further.
const SessionCookie = "admin_session"

type AuthHandler struct {
	Auth         *services.AuthService
	SecureCookie bool
}

func (h *AuthHandler) LoginForm(c *fiber.Ctx) error {
	if h.Auth.IsAuthenticated(c.Cookies(SessionCookie)) {
		return c.Redirect("/admin")
	}
	return render(c, "admin_login", fiber.Map{"Err": ""})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	pass := c.FormValue("password")
	if !validate.Password(pass) {
		log.Security(c, "auth.login.fail", map[string]any{"reason": "bad_format"})
		return renderStatus(c, fiber.StatusUnauthorized, "admin_login", fiber.Map{"Err": "Contraseña incorrecta"})
	}
	sess, err := h.Auth.Login(pass)
	if err != nil {
		log.Security(c, "auth.login.fail", nil)
		return renderStatus(c, fiber.StatusUnauthorized, "admin_login", fiber.Map{"Err": "Contraseña incorrecta"})
	}
	c.Cookie(&fiber.Cookie{
		Name:        SessionCookie,
		Value:       sess.Token,
		Path:        "/",
		HTTPOnly:    true,
		SameSite:    fiber.CookieSameSiteLaxMode,
		Secure:      h.SecureCookie,
		SessionOnly: true,
	})
	log.Audit(c, "auth.login.success", map[string]any{"expires_at": sess.ExpiresAt})
	return c.Redirect("/admin")
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.Auth.Logout(c.Cookies(SessionCookie))
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   h.SecureCookie,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
	log.Audit(c, "auth.logout", nil)
	return c.Redirect("/")
}
