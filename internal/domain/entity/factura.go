package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/ubolivar/facturacion-siat/internal/domain/siat"
)

// Factura cabecera de una factura del sector educativo emitida ante el SIAT.
// El CUF es inmutable una vez calculado: se reproduce desde sus componentes,
// nunca se edita.
type Factura struct {
	ID            string
	NumeroFactura int64
	CUF           string
	CUFD          string // código CUFD vigente al momento de la emisión
	Sucursal      int
	PuntoVenta    int
	TipoEmision   int   // 1 en línea, 2 contingencia
	CodigoEvento  int64 // evento significativo asociado (0 si emisión en línea)
	CAFC          string

	// Datos del estudiante / comprador
	NITComprador     string
	RazonSocial      string
	NombreEstudiante string
	PeriodoAcademico string

	Subtotal        decimal.Decimal
	Descuento       decimal.Decimal
	MontoTotal      decimal.Decimal
	CodigoMoneda    int
	TipoCambio      decimal.Decimal
	MetodoPago      int

	FechaEmision time.Time
	Estado       siat.Estado
	CodigoEstado *int   // último codigoEstado reportado por el SIAT
	Mensajes     string // mensajes textuales del SIAT (rechazo/observación)
	XMLFirmado   string // ruta del XML firmado en el almacén local

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DetalleFactura una línea de la factura (concepto académico).
type DetalleFactura struct {
	ID                 string
	FacturaID          string
	ActividadEconomica string
	CodigoProducto     string
	Descripcion        string
	Cantidad           decimal.Decimal
	PrecioUnitario     decimal.Decimal
	MontoDescuento     decimal.Decimal
	Subtotal           decimal.Decimal
}

// EnContingencia indica si la factura fue emitida fuera de línea.
func (f *Factura) EnContingencia() bool {
	return f.TipoEmision == 2
}
