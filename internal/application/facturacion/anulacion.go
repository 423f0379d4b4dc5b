package facturacion

import (
	"context"
	"fmt"
	"time"

	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
)

// Límites del sondeo post-anulación. El presupuesto total acota la pared de
// reloj aunque el servicio remoto se degrade entre intentos.
const (
	maxSondeosAnulacion  = 4
	esperaEntreSondeos   = 800 * time.Millisecond
	presupuestoAnulacion = 15 * time.Second
)

var candidatosAnulacion = []infrasiat.Candidato{
	{Servicio: infrasiat.ServicioRecepcion, Wrapper: "SolicitudServicioAnulacionFactura"},
	{Servicio: infrasiat.ServicioRecepcionCompV2, Wrapper: "SolicitudAnulacionFactura"},
}

// ResultadoAnulacion desenlace del flujo de anulación. Bitacora conserva, en
// orden, cada consulta de estado realizada, incluida la previa al envío.
type ResultadoAnulacion struct {
	CUF      string
	Estado   domsiat.Estado
	Intentos int // envíos de anulación realizados (0 si ya estaba anulada)
	Bitacora []domsiat.ConsultaEstado
}

// ServicioAnulacion máquina de estados de anulación: verificar, enviar,
// sondear y persistir el estado terminal.
type ServicioAnulacion struct {
	cfg         config.SIATConfig
	codigos     *GestorCodigos
	verificador *ServicioVerificacion
	transporte  Transporte
	facturas    repository.FacturaRepository
	log         *logger.Logger
	alAnular    func(cuf string) // hook de regeneración del documento anulado; puede ser nil
}

// NuevoServicioAnulacion construye el servicio. alAnular se invoca una sola
// vez cuando la anulación llega a estado terminal.
func NuevoServicioAnulacion(
	cfg config.SIATConfig,
	codigos *GestorCodigos,
	verificador *ServicioVerificacion,
	transporte Transporte,
	facturas repository.FacturaRepository,
	log *logger.Logger,
	alAnular func(cuf string),
) *ServicioAnulacion {
	return &ServicioAnulacion{
		cfg:         cfg,
		codigos:     codigos,
		verificador: verificador,
		transporte:  transporte,
		facturas:    facturas,
		log:         log,
		alAnular:    alAnular,
	}
}

// Anular ejecuta el flujo completo de anulación de un CUF.
//
// La verificación previa decide el camino: si el SIN ya reporta ANULADA no
// se envía ninguna solicitud (Intentos queda en 0). Si la factura está
// activa se envía la anulación y se sondea el estado hasta cuatro veces con
// espera fija; si al agotar el presupuesto sigue EN_PROCESO, se devuelve el
// último estado conocido en lugar de bloquear al llamador.
func (s *ServicioAnulacion) Anular(ctx context.Context, cuf string, motivo int) (*ResultadoAnulacion, error) {
	if motivo <= 0 {
		return nil, fmt.Errorf("anulacion: código de motivo %d inválido", motivo)
	}

	ctx, cancel := context.WithTimeout(ctx, presupuestoAnulacion)
	defer cancel()

	resultado := &ResultadoAnulacion{CUF: cuf}

	previa, err := s.verificador.VerificarEstado(ctx, cuf)
	if err != nil {
		return nil, err
	}
	resultado.Bitacora = append(resultado.Bitacora, *previa)
	resultado.Estado = previa.Estado

	if previa.Estado == domsiat.EstadoAnulada {
		s.log.Info().Str("cuf", cuf).Msg("la factura ya estaba anulada, sin envío")
		if err := s.persistirAnulada(ctx, cuf, previa); err != nil {
			return nil, err
		}
		return resultado, nil
	}

	cufd, err := s.codigos.ObtenerCUFD(ctx, s.codigos.AlcancePorDefecto())
	if err != nil {
		return nil, err
	}

	resp, err := s.transporte.LlamarConCandidatos(ctx, infrasiat.OpAnulacionFactura,
		candidatosAnulacion, camposAnulacion(s.cfg, cufd.CuisCodigo, cufd.Codigo, cuf, motivo))
	if err != nil {
		return nil, err
	}
	resultado.Intentos = 1
	if err := clasificarRespuesta(resp, infrasiat.OpAnulacionFactura); err != nil {
		return nil, err
	}

	for sondeo := 0; sondeo < maxSondeosAnulacion; sondeo++ {
		select {
		case <-ctx.Done():
			// Presupuesto agotado o cancelación: la bitácora parcial es válida.
			s.log.Warn().Str("cuf", cuf).Int("sondeos", sondeo).
				Msg("sondeo de anulación interrumpido, devolviendo último estado conocido")
			return resultado, nil
		case <-time.After(esperaEntreSondeos):
		}

		consulta, err := s.verificador.VerificarEstado(ctx, cuf)
		if err != nil {
			s.log.Warn().Err(err).Str("cuf", cuf).Msg("sondeo de anulación fallido")
			continue
		}
		resultado.Bitacora = append(resultado.Bitacora, *consulta)
		resultado.Estado = consulta.Estado

		if consulta.Estado == domsiat.EstadoAnulada {
			if err := s.persistirAnulada(ctx, cuf, consulta); err != nil {
				return nil, err
			}
			if s.alAnular != nil {
				s.alAnular(cuf)
			}
			return resultado, nil
		}
	}

	// El SIN sigue sin confirmar: el último estado conocido es la respuesta.
	s.log.Info().
		Str("cuf", cuf).
		Str("estado", string(resultado.Estado)).
		Msg("anulación sin estado terminal dentro del presupuesto de sondeo")
	return resultado, nil
}

// persistirAnulada escribe el estado terminal una sola vez; si el registro
// local ya está ANULADA no toca nada. La lectura previa es best-effort, la
// escritura de la transición es fatal.
func (s *ServicioAnulacion) persistirAnulada(ctx context.Context, cuf string, consulta *domsiat.ConsultaEstado) error {
	factura, err := s.facturas.GetByCUF(ctx, cuf)
	if err != nil {
		s.log.Warn().Err(err).Str("cuf", cuf).Msg("no se pudo leer la factura local al anular")
	} else if factura == nil || factura.Estado == domsiat.EstadoAnulada {
		return nil
	}
	if err := s.facturas.ActualizarEstado(ctx, cuf, domsiat.EstadoAnulada, consulta.CodigoEstado, consulta.Descripcion); err != nil {
		return domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir estado ANULADA de "+cuf, err)
	}
	return nil
}
