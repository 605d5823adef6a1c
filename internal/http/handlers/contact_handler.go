package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
)

type ContactHandler struct {
	WhatsApp string
}

func (h *ContactHandler) Show(c *fiber.Ctx) error {
	link := ""
	if h.WhatsApp != "" {
		link = "https://wa.me/" + h.WhatsApp + "?text=" + url.QueryEscape("Hola, quiero información sobre sus productos")
	}
	return render(c, "contact", fiber.Map{"WhatsAppLink": link, "WhatsApp": h.WhatsApp})
}
