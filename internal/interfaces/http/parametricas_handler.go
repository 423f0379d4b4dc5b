package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ubolivar/facturacion-siat/internal/application/facturacion"
)

// ParametricasHandler sincroniza los catálogos del SIAT (protegido, solo admin).
type ParametricasHandler struct {
	parametricas *facturacion.ServicioParametricas
}

// NewParametricasHandler construye el handler.
func NewParametricasHandler(parametricas *facturacion.ServicioParametricas) *ParametricasHandler {
	return &ParametricasHandler{parametricas: parametricas}
}

// Sincronizar descarga actividades económicas y leyendas y actualiza el
// catálogo que usa el constructor de payloads.
// POST /api/parametricas/sincronizacion
func (h *ParametricasHandler) Sincronizar(c *fiber.Ctx) error {
	catalogo, err := h.parametricas.Sincronizar(c.Context())
	if err != nil {
		return responderFalla(c, err)
	}
	return c.JSON(fiber.Map{
		"actividades": len(catalogo.Actividades),
		"leyendas":    len(catalogo.Leyendas),
	})
}
