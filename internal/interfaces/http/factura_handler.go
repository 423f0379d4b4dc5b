package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ubolivar/facturacion-siat/internal/application/dto"
	"github.com/ubolivar/facturacion-siat/internal/application/facturacion"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
)

// FacturaHandler maneja las peticiones HTTP de emisión, consulta y anulación
// de facturas (protegido).
type FacturaHandler struct {
	emision      *facturacion.ServicioRecepcion
	verificacion *facturacion.ServicioVerificacion
	anulacion    *facturacion.ServicioAnulacion
	facturas     repository.FacturaRepository
}

// NewFacturaHandler construye el handler.
func NewFacturaHandler(
	emision *facturacion.ServicioRecepcion,
	verificacion *facturacion.ServicioVerificacion,
	anulacion *facturacion.ServicioAnulacion,
	facturas repository.FacturaRepository,
) *FacturaHandler {
	return &FacturaHandler{
		emision:      emision,
		verificacion: verificacion,
		anulacion:    anulacion,
		facturas:     facturas,
	}
}

// Emitir emite una factura ante el SIAT.
// POST /api/facturas
func (h *FacturaHandler) Emitir(c *fiber.Ctx) error {
	var in dto.EmitirFacturaRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if len(in.Detalles) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "la factura requiere al menos un detalle"})
	}

	resultado, err := h.emision.EmitirFactura(c.Context(), in.ASolicitud())
	if err != nil {
		return responderFalla(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.DesdeResultadoEmision(resultado))
}

// GetByCUF devuelve la cabecera persistida de una factura.
// GET /api/facturas/:cuf
func (h *FacturaHandler) GetByCUF(c *fiber.Ctx) error {
	cuf := c.Params("cuf")
	if cuf == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "cuf requerido"})
	}
	factura, err := h.facturas.GetByCUF(c.Context(), cuf)
	if err != nil {
		return responderFalla(c, err)
	}
	if factura == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
	}
	return c.JSON(dto.DesdeFactura(factura))
}

// VerificarEstado consulta el estado remoto de una factura sin tocar el
// registro local.
// GET /api/facturas/:cuf/estado
func (h *FacturaHandler) VerificarEstado(c *fiber.Ctx) error {
	cuf := c.Params("cuf")
	if cuf == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "cuf requerido"})
	}
	consulta, err := h.verificacion.VerificarEstado(c.Context(), cuf)
	if err != nil {
		return responderFalla(c, err)
	}
	return c.JSON(dto.DesdeConsulta(consulta))
}

// Reconciliar consulta el estado remoto y lo persiste localmente si la
// transición es válida.
// POST /api/facturas/:cuf/reconciliacion
func (h *FacturaHandler) Reconciliar(c *fiber.Ctx) error {
	cuf := c.Params("cuf")
	if cuf == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "cuf requerido"})
	}
	consulta, err := h.verificacion.Reconciliar(c.Context(), cuf)
	if err != nil {
		return responderFalla(c, err)
	}
	return c.JSON(dto.DesdeConsulta(consulta))
}

// Anular solicita la anulación de una factura y sondea su confirmación.
// POST /api/facturas/:cuf/anulacion
func (h *FacturaHandler) Anular(c *fiber.Ctx) error {
	cuf := c.Params("cuf")
	if cuf == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "cuf requerido"})
	}
	var in dto.AnularFacturaRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.CodigoMotivo <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "codigo_motivo requerido"})
	}

	resultado, err := h.anulacion.Anular(c.Context(), cuf, in.CodigoMotivo)
	if err != nil {
		return responderFalla(c, err)
	}
	return c.JSON(dto.DesdeResultadoAnulacion(resultado))
}
