package facturacion

import (
	"context"

	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
)

// candidatosVerificacion combinaciones (servicio, wrapper) para
// verificacionEstadoFactura, en orden de preferencia.
var candidatosVerificacion = []infrasiat.Candidato{
	{Servicio: infrasiat.ServicioRecepcion, Wrapper: "SolicitudServicioVerificacionEstadoFactura"},
	{Servicio: infrasiat.ServicioRecepcionCompV2, Wrapper: "SolicitudVerificacionEstadoFactura"},
}

// ServicioVerificacion consulta el estado de una factura ante el SIN y lo
// traduce al espejo local con la tabla de mapeo de domain/siat.
type ServicioVerificacion struct {
	cfg        config.SIATConfig
	codigos    *GestorCodigos
	transporte Transporte
	facturas   repository.FacturaRepository
	log        *logger.Logger
}

// NuevoServicioVerificacion construye el servicio.
func NuevoServicioVerificacion(cfg config.SIATConfig, codigos *GestorCodigos, transporte Transporte, facturas repository.FacturaRepository, log *logger.Logger) *ServicioVerificacion {
	return &ServicioVerificacion{cfg: cfg, codigos: codigos, transporte: transporte, facturas: facturas, log: log}
}

// VerificarEstado consulta el estado del CUF. Es una lectura pura: no
// persiste nada; la conciliación local es de Reconciliar.
func (s *ServicioVerificacion) VerificarEstado(ctx context.Context, cuf string) (*domsiat.ConsultaEstado, error) {
	cufd, err := s.codigos.ObtenerCUFD(ctx, s.codigos.AlcancePorDefecto())
	if err != nil {
		return nil, err
	}

	resp, err := s.transporte.LlamarConCandidatos(ctx, infrasiat.OpVerificacionEstado,
		candidatosVerificacion, camposVerificacion(s.cfg, cufd.CuisCodigo, cufd.Codigo, cuf))
	if err != nil {
		return nil, err
	}

	consulta := &domsiat.ConsultaEstado{
		CodigoEstado: resp.CodigoEstado,
		Estado:       domsiat.MapearEstado(resp.CodigoEstado),
		Descripcion:  resp.Descripcion,
	}
	s.log.Debug().
		Str("cuf", cuf).
		Str("estado", string(consulta.Estado)).
		Msg("estado verificado ante el SIN")
	return consulta, nil
}

// Reconciliar verifica el estado remoto y lo persiste localmente solo si
// difiere del registrado y la transición es válida. La lectura local es
// best-effort; la escritura de la transición es fatal si falla.
func (s *ServicioVerificacion) Reconciliar(ctx context.Context, cuf string) (*domsiat.ConsultaEstado, error) {
	consulta, err := s.VerificarEstado(ctx, cuf)
	if err != nil {
		return nil, err
	}

	factura, err := s.facturas.GetByCUF(ctx, cuf)
	if err != nil || factura == nil {
		s.log.Warn().Err(err).Str("cuf", cuf).Msg("factura local no legible durante la conciliación")
		return consulta, nil
	}

	if factura.Estado == consulta.Estado {
		return consulta, nil
	}
	if !domsiat.TransicionValida(factura.Estado, consulta.Estado) {
		s.log.Warn().
			Str("cuf", cuf).
			Str("desde", string(factura.Estado)).
			Str("hacia", string(consulta.Estado)).
			Msg("transición de estado reportada no permitida, no se persiste")
		return consulta, nil
	}
	if err := s.facturas.ActualizarEstado(ctx, cuf, consulta.Estado, consulta.CodigoEstado, consulta.Descripcion); err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir estado conciliado de "+cuf, err)
	}
	return consulta, nil
}
