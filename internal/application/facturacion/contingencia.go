package facturacion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/internal/infrastructure/siat/firma"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
	pkgsiat "github.com/ubolivar/facturacion-siat/pkg/siat"
)

const maxSondeosValidacion = 4

var candidatosPaquete = []infrasiat.Candidato{
	{Servicio: infrasiat.ServicioRecepcion, Wrapper: "SolicitudServicioRecepcionPaquete"},
	{Servicio: infrasiat.ServicioRecepcionCompV2, Wrapper: "SolicitudRecepcionPaquete"},
}

var candidatosValidacion = []infrasiat.Candidato{
	{Servicio: infrasiat.ServicioRecepcion, Wrapper: "SolicitudServicioValidacionRecepcionPaquete"},
	{Servicio: infrasiat.ServicioRecepcionCompV2, Wrapper: "SolicitudValidacionRecepcionPaquete"},
}

// ServicioContingencia maneja la facturación fuera de línea: registro de
// eventos significativos, agrupado de facturas pendientes en paquetes y el
// envío/validación de esos paquetes para regularizarlas.
type ServicioContingencia struct {
	cfg        config.SIATConfig
	codigos    *GestorCodigos
	transporte Transporte
	facturas   repository.FacturaRepository
	eventos    repository.EventoRepository
	almacen    firma.Almacen
	log        *logger.Logger
}

// NuevoServicioContingencia construye el servicio.
func NuevoServicioContingencia(
	cfg config.SIATConfig,
	codigos *GestorCodigos,
	transporte Transporte,
	facturas repository.FacturaRepository,
	eventos repository.EventoRepository,
	almacen firma.Almacen,
	log *logger.Logger,
) *ServicioContingencia {
	return &ServicioContingencia{
		cfg:        cfg,
		codigos:    codigos,
		transporte: transporte,
		facturas:   facturas,
		eventos:    eventos,
		almacen:    almacen,
		log:        log,
	}
}

// RegistrarEvento declara ante el SIN la ventana de contingencia con su
// motivo (catálogo 1–7). cufdEvento es el CUFD que estaba vigente cuando
// ocurrió el evento; el código de recepción devuelto legitima las facturas
// emitidas dentro de la ventana.
func (s *ServicioContingencia) RegistrarEvento(ctx context.Context, motivo int, cufdEvento string, inicio, fin time.Time) (*entity.EventoSignificativo, error) {
	if !pkgsiat.MotivoEventoValido(motivo) {
		return nil, fmt.Errorf("contingencia: motivo de evento %d fuera del catálogo 1-7", motivo)
	}
	if !fin.After(inicio) {
		return nil, fmt.Errorf("contingencia: la ventana del evento es vacía o invertida")
	}

	alcance := s.codigos.AlcancePorDefecto()
	cufd, err := s.codigos.ObtenerCUFD(ctx, alcance)
	if err != nil {
		return nil, err
	}

	descripcion := pkgsiat.DescripcionEvento[motivo]
	campos := camposEvento(s.cfg, cufd.CuisCodigo, cufd.Codigo, cufdEvento, motivo, descripcion,
		inicio.Format("2006-01-02T15:04:05.000"), fin.Format("2006-01-02T15:04:05.000"))

	// El nombre de la operación también cambió entre revisiones del SIAT.
	resp, err := s.transporte.LlamarConCandidatos(ctx, infrasiat.OpRegistroEvento,
		[]infrasiat.Candidato{{Servicio: infrasiat.ServicioOperaciones, Wrapper: "SolicitudEventoSignificativo"}},
		campos)
	if err != nil && domsiat.TipoDeFalla(err) == domsiat.FallaProtocolo {
		resp, err = s.transporte.LlamarConCandidatos(ctx, infrasiat.OpRegistrarEvento,
			[]infrasiat.Candidato{{Servicio: infrasiat.ServicioOperaciones, Wrapper: "SolicitudEventoSignificativo"}},
			campos)
	}
	if err != nil {
		return nil, err
	}
	if resp.CodigoRecepcionEvento == 0 {
		return nil, &domsiat.Falla{
			Tipo:    domsiat.FallaViolacionContrato,
			Mensaje: "respuesta de registro de evento sin código de recepción",
			Crudo:   string(resp.Crudo),
		}
	}

	evento := &entity.EventoSignificativo{
		CodigoMotivo:          motivo,
		Descripcion:           descripcion,
		Sucursal:              alcance.Sucursal,
		PuntoVenta:            alcance.PuntoVenta,
		CufdEvento:            cufdEvento,
		FechaInicio:           inicio,
		FechaFin:              fin,
		CodigoRecepcionEvento: resp.CodigoRecepcionEvento,
	}
	if err := s.eventos.Guardar(ctx, evento); err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir evento significativo", err)
	}
	s.log.Info().
		Int("motivo", motivo).
		Int64("codigoRecepcion", resp.CodigoRecepcionEvento).
		Msg("evento significativo registrado")
	return evento, nil
}

// AgruparFacturasPorPaquete agrupa facturas pendientes estrictamente por la
// clave (cufd, codigoEvento): un paquete por clave, sin importar el orden de
// entrada. Dentro de cada paquete las facturas quedan en orden de número.
func AgruparFacturasPorPaquete(facturas []*entity.Factura) []*entity.PaqueteContingencia {
	type clave struct {
		cufd   string
		evento int64
	}
	grupos := make(map[clave][]*entity.Factura)
	for _, f := range facturas {
		k := clave{cufd: f.CUFD, evento: f.CodigoEvento}
		grupos[k] = append(grupos[k], f)
	}

	claves := make([]clave, 0, len(grupos))
	for k := range grupos {
		claves = append(claves, k)
	}
	sort.Slice(claves, func(i, j int) bool {
		if claves[i].cufd != claves[j].cufd {
			return claves[i].cufd < claves[j].cufd
		}
		return claves[i].evento < claves[j].evento
	})

	paquetes := make([]*entity.PaqueteContingencia, 0, len(claves))
	for _, k := range claves {
		fs := grupos[k]
		sort.Slice(fs, func(i, j int) bool { return fs[i].NumeroFactura < fs[j].NumeroFactura })
		paquetes = append(paquetes, &entity.PaqueteContingencia{
			Cufd:         k.cufd,
			CodigoEvento: k.evento,
			Facturas:     fs,
		})
	}
	return paquetes
}

// EnviarPaquete transmite un paquete de contingencia: los XML firmados de
// las facturas en un solo bundle comprimido con su hash y conteo. Devuelve
// el código de recepción asignado y marca las facturas como enviadas.
func (s *ServicioContingencia) EnviarPaquete(ctx context.Context, paquete *entity.PaqueteContingencia) (string, error) {
	if len(paquete.Facturas) == 0 {
		return "", fmt.Errorf("contingencia: paquete sin facturas")
	}

	cufd, err := s.codigos.ObtenerCUFD(ctx, s.codigos.AlcancePorDefecto())
	if err != nil {
		return "", err
	}

	xmls := make([][]byte, 0, len(paquete.Facturas))
	for _, f := range paquete.Facturas {
		x, err := s.almacen.LeerFirmado(f.CUF)
		if err != nil {
			return "", domsiat.NuevaFalla(domsiat.FallaFirma, "leer XML firmado de "+f.CUF, err)
		}
		xmls = append(xmls, x)
	}
	_, archivoB64, hash, err := infrasiat.ComprimirLote(xmls)
	if err != nil {
		return "", err
	}

	cafc := s.cfg.CAFC
	if cafc == "" && paquete.Facturas[0].CAFC != "" {
		cafc = paquete.Facturas[0].CAFC
	}

	fechaEnvio := time.Now().Add(cufd.DesfaseReloj).Format("2006-01-02T15:04:05.000")
	campos := camposRecepcionPaquete(s.cfg, cufd.CuisCodigo, paquete.Cufd, cafc,
		paquete.CodigoEvento, len(paquete.Facturas), archivoB64, fechaEnvio, hash)

	resp, err := s.transporte.LlamarConCandidatos(ctx, infrasiat.OpRecepcionPaquete, candidatosPaquete, campos)
	if err != nil {
		return "", err
	}
	if err := clasificarRespuesta(resp, infrasiat.OpRecepcionPaquete); err != nil {
		return "", err
	}
	if resp.CodigoRecepcion == "" {
		return "", &domsiat.Falla{
			Tipo:    domsiat.FallaViolacionContrato,
			Mensaje: "respuesta de recepción de paquete sin código de recepción",
			Crudo:   string(resp.Crudo),
		}
	}
	paquete.CodigoRecepcion = resp.CodigoRecepcion

	for _, f := range paquete.Facturas {
		if err := s.facturas.ActualizarEstado(ctx, f.CUF, domsiat.EstadoEnviada,
			resp.CodigoEstado, resumenMensajes(resp.Mensajes)); err != nil {
			return "", domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir estado ENVIADA de "+f.CUF, err)
		}
	}

	s.log.Info().
		Str("codigoRecepcion", resp.CodigoRecepcion).
		Int("facturas", len(paquete.Facturas)).
		Int64("codigoEvento", paquete.CodigoEvento).
		Msg("paquete de contingencia enviado")
	return resp.CodigoRecepcion, nil
}

// ValidarPaquete sondea la validación remota de un paquete ya enviado, con
// reintentos acotados. Devuelve la última consulta obtenida; si el SIN sigue
// procesando al agotar los sondeos, el estado devuelto es EN_PROCESO.
func (s *ServicioContingencia) ValidarPaquete(ctx context.Context, codigoRecepcion string) (*domsiat.ConsultaEstado, error) {
	if codigoRecepcion == "" {
		return nil, fmt.Errorf("contingencia: código de recepción vacío")
	}
	cufd, err := s.codigos.ObtenerCUFD(ctx, s.codigos.AlcancePorDefecto())
	if err != nil {
		return nil, err
	}
	campos := camposValidacionPaquete(s.cfg, cufd.CuisCodigo, cufd.Codigo, codigoRecepcion)

	ultima := &domsiat.ConsultaEstado{Estado: domsiat.EstadoEnProceso}
	for sondeo := 0; sondeo < maxSondeosValidacion; sondeo++ {
		if sondeo > 0 {
			select {
			case <-ctx.Done():
				return ultima, nil
			case <-time.After(esperaEntreSondeos):
			}
		}

		resp, err := s.transporte.LlamarConCandidatos(ctx, infrasiat.OpValidacionPaquete, candidatosValidacion, campos)
		if err != nil {
			return nil, err
		}
		if err := clasificarRespuesta(resp, infrasiat.OpValidacionPaquete); err != nil {
			return nil, err
		}

		ultima = &domsiat.ConsultaEstado{
			CodigoEstado: resp.CodigoEstado,
			Estado:       domsiat.MapearEstado(resp.CodigoEstado),
			Descripcion:  resp.Descripcion,
		}
		// 901 es recepción pendiente de validar: se sigue sondeando.
		if resp.CodigoEstado != nil && *resp.CodigoEstado == pkgsiat.CodigoRecibida {
			ultima.Estado = domsiat.EstadoEnProceso
			continue
		}
		return ultima, nil
	}
	return ultima, nil
}

// Regularizar recorre las facturas de contingencia pendientes del punto de
// venta, las agrupa y envía paquete por paquete, validando cada uno y
// persistiendo el estado final de sus facturas.
func (s *ServicioContingencia) Regularizar(ctx context.Context) error {
	alcance := s.codigos.AlcancePorDefecto()
	pendientes, err := s.facturas.PendientesContingencia(ctx, alcance.Sucursal, alcance.PuntoVenta)
	if err != nil {
		return domsiat.NuevaFalla(domsiat.FallaPersistencia, "leer facturas pendientes de contingencia", err)
	}
	if len(pendientes) == 0 {
		return nil
	}

	for _, paquete := range AgruparFacturasPorPaquete(pendientes) {
		codigoRecepcion, err := s.EnviarPaquete(ctx, paquete)
		if err != nil {
			return err
		}
		consulta, err := s.ValidarPaquete(ctx, codigoRecepcion)
		if err != nil {
			return err
		}
		if consulta.Estado == domsiat.EstadoEnProceso || consulta.Estado == domsiat.EstadoDesconocido {
			s.log.Warn().
				Str("codigoRecepcion", codigoRecepcion).
				Str("estado", string(consulta.Estado)).
				Msg("paquete sin estado terminal, se reintentará en la próxima regularización")
			continue
		}
		for _, f := range paquete.Facturas {
			if err := s.facturas.ActualizarEstado(ctx, f.CUF, consulta.Estado,
				consulta.CodigoEstado, consulta.Descripcion); err != nil {
				return domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir estado de "+f.CUF, err)
			}
		}
	}
	return nil
}
