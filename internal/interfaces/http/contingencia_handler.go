package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ubolivar/facturacion-siat/internal/application/dto"
	"github.com/ubolivar/facturacion-siat/internal/application/facturacion"
	pkgsiat "github.com/ubolivar/facturacion-siat/pkg/siat"
)

// ContingenciaHandler maneja el registro de eventos significativos y la
// regularización de facturas emitidas fuera de línea (protegido, solo admin).
type ContingenciaHandler struct {
	contingencia *facturacion.ServicioContingencia
}

// NewContingenciaHandler construye el handler.
func NewContingenciaHandler(contingencia *facturacion.ServicioContingencia) *ContingenciaHandler {
	return &ContingenciaHandler{contingencia: contingencia}
}

// RegistrarEvento declara ante el SIN una ventana de contingencia.
// POST /api/contingencia/eventos
func (h *ContingenciaHandler) RegistrarEvento(c *fiber.Ctx) error {
	var in dto.RegistrarEventoRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if !pkgsiat.MotivoEventoValido(in.CodigoMotivo) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "codigo_motivo fuera del catálogo 1-7"})
	}
	if in.CufdEvento == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "cufd_evento requerido"})
	}
	if !in.FechaFin.After(in.FechaInicio) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "la ventana del evento es vacía o invertida"})
	}

	evento, err := h.contingencia.RegistrarEvento(c.Context(), in.CodigoMotivo, in.CufdEvento, in.FechaInicio, in.FechaFin)
	if err != nil {
		return responderFalla(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.DesdeEvento(evento))
}

// Regularizar agrupa y envía por paquetes todas las facturas de contingencia
// pendientes del punto de venta.
// POST /api/contingencia/regularizacion
func (h *ContingenciaHandler) Regularizar(c *fiber.Ctx) error {
	if err := h.contingencia.Regularizar(c.Context()); err != nil {
		return responderFalla(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
