package repository

import (
	"context"

	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/siat"
)

// FacturaRepository puerto de persistencia de facturas. El sistema académico
// es el dueño de la base; aquí solo se leen y escriben los campos que la
// integración SIAT necesita.
type FacturaRepository interface {
	Create(ctx context.Context, f *entity.Factura) error
	CreateDetalle(ctx context.Context, d *entity.DetalleFactura) error
	GetByCUF(ctx context.Context, cuf string) (*entity.Factura, error)
	GetDetalles(ctx context.Context, facturaID string) ([]*entity.DetalleFactura, error)

	// ActualizarEstado persiste una transición de estado. Es una escritura
	// fatal: si falla, la operación que la pidió debe reportar la falla.
	ActualizarEstado(ctx context.Context, cuf string, estado siat.Estado, codigoEstado *int, mensajes string) error

	// PendientesContingencia facturas emitidas fuera de línea aún no
	// regularizadas, para el armado de paquetes.
	PendientesContingencia(ctx context.Context, sucursal, puntoVenta int) ([]*entity.Factura, error)

	// SiguienteNumero reserva el siguiente número de factura del punto de venta.
	SiguienteNumero(ctx context.Context, sucursal, puntoVenta int) (int64, error)
}
