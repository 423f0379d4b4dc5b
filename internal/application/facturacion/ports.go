// Package facturacion contiene los servicios de aplicación de la facturación
// electrónica ante el SIN/SIAT: ciclo de vida de códigos CUIS/CUFD, emisión y
// recepción de facturas, verificación de estado, anulación y contingencia.
package facturacion

import (
	"context"

	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/internal/infrastructure/siat/firma"
)

// Transporte es la vista de aplicación sobre la fábrica de clientes SOAP.
// Las operaciones viajan siempre con una lista ordenada de candidatos
// (servicio, wrapper) por las revisiones de esquema del SIAT.
type Transporte interface {
	LlamarConCandidatos(ctx context.Context, operacion string, candidatos []infrasiat.Candidato, campos []infrasiat.Campo) (*infrasiat.Respuesta, error)
	Sincronizar(ctx context.Context, servicio, operacion, wrapper string, campos []infrasiat.Campo) ([]infrasiat.ParametricaItem, error)
}

// Firmador firma documentos de factura y verifica firmas existentes. La
// verificación jamás lanza: false es siempre un resultado válido y fatal
// para la transmisión.
type Firmador interface {
	Firmar(cuf string, xmlBytes []byte) (*firma.Resultado, error)
	Verificar(rutaFirmada string) bool
}

// TxRunner ejecuta escrituras de factura (cabecera + detalles) de forma atómica.
type TxRunner interface {
	Run(ctx context.Context, fn func(facturas repository.FacturaRepository) error) error
}
