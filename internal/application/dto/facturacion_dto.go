package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ubolivar/facturacion-siat/internal/application/facturacion"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
)

// ── Emisión ──────────────────────────────────────────────────────────────────

// DetalleEmisionRequest una línea (concepto académico) del body de emisión.
type DetalleEmisionRequest struct {
	ActividadEconomica string          `json:"actividad_economica"`
	CodigoProducto     string          `json:"codigo_producto"`
	Descripcion        string          `json:"descripcion"`
	Cantidad           decimal.Decimal `json:"cantidad"`
	PrecioUnitario     decimal.Decimal `json:"precio_unitario"`
	MontoDescuento     decimal.Decimal `json:"monto_descuento,omitempty"`
}

// EmitirFacturaRequest body para POST /api/facturas.
type EmitirFacturaRequest struct {
	NITComprador     string                  `json:"nit_comprador"`
	RazonSocial      string                  `json:"razon_social"`
	NombreEstudiante string                  `json:"nombre_estudiante"`
	PeriodoAcademico string                  `json:"periodo_academico"`
	MetodoPago       int                     `json:"metodo_pago"`
	Detalles         []DetalleEmisionRequest `json:"detalles"`
}

// ASolicitud traduce el body a la solicitud del servicio de emisión.
func (r EmitirFacturaRequest) ASolicitud() facturacion.SolicitudEmision {
	detalles := make([]facturacion.DetalleEmision, 0, len(r.Detalles))
	for _, d := range r.Detalles {
		detalles = append(detalles, facturacion.DetalleEmision{
			ActividadEconomica: d.ActividadEconomica,
			CodigoProducto:     d.CodigoProducto,
			Descripcion:        d.Descripcion,
			Cantidad:           d.Cantidad,
			PrecioUnitario:     d.PrecioUnitario,
			MontoDescuento:     d.MontoDescuento,
		})
	}
	return facturacion.SolicitudEmision{
		NITComprador:     r.NITComprador,
		RazonSocial:      r.RazonSocial,
		NombreEstudiante: r.NombreEstudiante,
		PeriodoAcademico: r.PeriodoAcademico,
		MetodoPago:       r.MetodoPago,
		Detalles:         detalles,
	}
}

// EmisionResponse desenlace de POST /api/facturas.
type EmisionResponse struct {
	CUF           string `json:"cuf"`
	NumeroFactura int64  `json:"numero_factura"`
	Estado        string `json:"estado"`
	CodigoEstado  *int   `json:"codigo_estado,omitempty"`
	Descripcion   string `json:"descripcion,omitempty"`
}

// DesdeResultadoEmision arma la respuesta a partir del resultado del servicio.
func DesdeResultadoEmision(r *facturacion.ResultadoEmision) EmisionResponse {
	return EmisionResponse{
		CUF:           r.CUF,
		NumeroFactura: r.NumeroFactura,
		Estado:        string(r.Estado),
		CodigoEstado:  r.CodigoEstado,
		Descripcion:   r.Descripcion,
	}
}

// ── Consulta y anulación ─────────────────────────────────────────────────────

// ConsultaEstadoResponse estado reportado por el SIN para una factura.
type ConsultaEstadoResponse struct {
	Estado       string `json:"estado"`
	CodigoEstado *int   `json:"codigo_estado,omitempty"`
	Descripcion  string `json:"descripcion,omitempty"`
}

// DesdeConsulta arma la respuesta a partir de una consulta de estado.
func DesdeConsulta(c *domsiat.ConsultaEstado) ConsultaEstadoResponse {
	return ConsultaEstadoResponse{
		Estado:       string(c.Estado),
		CodigoEstado: c.CodigoEstado,
		Descripcion:  c.Descripcion,
	}
}

// AnularFacturaRequest body para POST /api/facturas/:cuf/anulacion.
type AnularFacturaRequest struct {
	CodigoMotivo int `json:"codigo_motivo"`
}

// AnulacionResponse desenlace de la anulación, con la bitácora de sondeos.
type AnulacionResponse struct {
	CUF      string                   `json:"cuf"`
	Estado   string                   `json:"estado"`
	Intentos int                      `json:"intentos"`
	Bitacora []ConsultaEstadoResponse `json:"bitacora"`
}

// DesdeResultadoAnulacion arma la respuesta del endpoint de anulación.
func DesdeResultadoAnulacion(r *facturacion.ResultadoAnulacion) AnulacionResponse {
	bitacora := make([]ConsultaEstadoResponse, 0, len(r.Bitacora))
	for i := range r.Bitacora {
		bitacora = append(bitacora, DesdeConsulta(&r.Bitacora[i]))
	}
	return AnulacionResponse{
		CUF:      r.CUF,
		Estado:   string(r.Estado),
		Intentos: r.Intentos,
		Bitacora: bitacora,
	}
}

// FacturaResponse cabecera persistida para GET /api/facturas/:cuf.
type FacturaResponse struct {
	CUF              string          `json:"cuf"`
	NumeroFactura    int64           `json:"numero_factura"`
	NITComprador     string          `json:"nit_comprador"`
	RazonSocial      string          `json:"razon_social"`
	NombreEstudiante string          `json:"nombre_estudiante,omitempty"`
	PeriodoAcademico string          `json:"periodo_academico,omitempty"`
	MontoTotal       decimal.Decimal `json:"monto_total"`
	TipoEmision      int             `json:"tipo_emision"`
	FechaEmision     time.Time       `json:"fecha_emision"`
	Estado           string          `json:"estado"`
	CodigoEstado     *int            `json:"codigo_estado,omitempty"`
	Mensajes         string          `json:"mensajes,omitempty"`
}

// DesdeFactura proyecta la entidad a la respuesta pública.
func DesdeFactura(f *entity.Factura) FacturaResponse {
	return FacturaResponse{
		CUF:              f.CUF,
		NumeroFactura:    f.NumeroFactura,
		NITComprador:     f.NITComprador,
		RazonSocial:      f.RazonSocial,
		NombreEstudiante: f.NombreEstudiante,
		PeriodoAcademico: f.PeriodoAcademico,
		MontoTotal:       f.MontoTotal,
		TipoEmision:      f.TipoEmision,
		FechaEmision:     f.FechaEmision,
		Estado:           string(f.Estado),
		CodigoEstado:     f.CodigoEstado,
		Mensajes:         f.Mensajes,
	}
}

// ── Contingencia ─────────────────────────────────────────────────────────────

// RegistrarEventoRequest body para POST /api/contingencia/eventos.
type RegistrarEventoRequest struct {
	CodigoMotivo int       `json:"codigo_motivo"`
	CufdEvento   string    `json:"cufd_evento"`
	FechaInicio  time.Time `json:"fecha_inicio"`
	FechaFin     time.Time `json:"fecha_fin"`
}

// EventoResponse evento significativo registrado ante el SIN.
type EventoResponse struct {
	CodigoMotivo          int       `json:"codigo_motivo"`
	Descripcion           string    `json:"descripcion"`
	CufdEvento            string    `json:"cufd_evento"`
	FechaInicio           time.Time `json:"fecha_inicio"`
	FechaFin              time.Time `json:"fecha_fin"`
	CodigoRecepcionEvento int64     `json:"codigo_recepcion_evento"`
}

// DesdeEvento proyecta el evento persistido a la respuesta pública.
func DesdeEvento(e *entity.EventoSignificativo) EventoResponse {
	return EventoResponse{
		CodigoMotivo:          e.CodigoMotivo,
		Descripcion:           e.Descripcion,
		CufdEvento:            e.CufdEvento,
		FechaInicio:           e.FechaInicio,
		FechaFin:              e.FechaFin,
		CodigoRecepcionEvento: e.CodigoRecepcionEvento,
	}
}
