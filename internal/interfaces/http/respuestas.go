package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ubolivar/facturacion-siat/internal/application/dto"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
)

// responderFalla traduce una falla del dominio SIAT al status HTTP que le
// corresponde. Las fallas transitorias del SIN (995, timeouts) salen como
// 503 para que el cliente reintente o derive a contingencia; las violaciones
// de contrato y de protocolo como 502 porque el upstream respondió mal.
func responderFalla(c *fiber.Ctx, err error) error {
	switch domsiat.TipoDeFalla(err) {
	case domsiat.FallaServicioNoDisponible:
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "SIN_NO_DISPONIBLE", Message: err.Error()})
	case domsiat.FallaViolacionContrato, domsiat.FallaProtocolo:
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "RESPUESTA_INVALIDA_SIN", Message: err.Error()})
	case domsiat.FallaRechazo:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "RECHAZADA", Message: err.Error()})
	case domsiat.FallaFirma:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "FIRMA", Message: err.Error()})
	case domsiat.FallaConfiguracion:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "CONFIGURACION", Message: err.Error()})
	case domsiat.FallaPersistencia:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "PERSISTENCIA", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
