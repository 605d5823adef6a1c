package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"babyshop/internal/domain"
)

// classify turns a service error into a status code and a message safe to show.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, "Revisa los datos del formulario."
	case errors.Is(err, domain.ErrInvalidFilter):
		return fiber.StatusBadRequest, "Filtro no válido."
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "El producto ya no está disponible."
	case errors.Is(err, domain.ErrUpload):
		return fiber.StatusBadGateway, "No se pudo subir la imagen. Intenta de nuevo."
	case errors.Is(err, domain.ErrTimeout):
		return fiber.StatusGatewayTimeout, "El servidor tardó demasiado en responder. Intenta de nuevo."
	case errors.Is(err, domain.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable, "El catálogo no está disponible en este momento. Intenta de nuevo."
	default:
		return fiber.StatusInternalServerError, "Algo salió mal. Intenta de nuevo."
	}
}

var fieldMessages = map[string]string{
	"name":        "Ingresa el nombre del producto.",
	"price":       "El precio debe ser un número igual o mayor a cero.",
	"description": "Ingresa una descripción.",
	"category":    "Elige una categoría de la lista.",
	"id":          "Producto no válido.",
}

// fieldError returns the offending field and an inline message for the form.
func fieldError(err error, maxImageBytes int64) (string, string) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		_, msg := classify(err)
		return "", msg
	}
	if ve.Field == "image" {
		return ve.Field, fmt.Sprintf("La imagen debe ser JPG, PNG, GIF o WebP de hasta %s.", sizeLabel(maxImageBytes))
	}
	if msg, ok := fieldMessages[ve.Field]; ok {
		return ve.Field, msg
	}
	return ve.Field, "Revisa los datos del formulario."
}

func sizeLabel(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d KB", n>>10)
}
