package facturacion

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
	pkgsiat "github.com/ubolivar/facturacion-siat/pkg/siat"
)

// candidatosRecepcion pares (servicio, wrapper) para recepcionFactura, en
// orden de preferencia. La revisión vigente primero, la anterior como
// respaldo de compatibilidad.
var candidatosRecepcion = []infrasiat.Candidato{
	{Servicio: infrasiat.ServicioRecepcion, Wrapper: "SolicitudServicioRecepcionFactura"},
	{Servicio: infrasiat.ServicioRecepcionCompV2, Wrapper: "SolicitudRecepcionFactura"},
}

// SolicitudEmision datos que el sistema académico entrega para emitir una
// factura. Los valores de emisión (tipo, evento, CAFC) solo aplican en
// contingencia.
type SolicitudEmision struct {
	NITComprador     string
	RazonSocial      string
	NombreEstudiante string
	PeriodoAcademico string
	MetodoPago       int

	TipoEmision  int   // 0: usar el configurado
	CodigoEvento int64 // evento significativo asociado (contingencia)
	CAFC         string

	Detalles []DetalleEmision
}

// DetalleEmision una línea de la solicitud.
type DetalleEmision struct {
	ActividadEconomica string
	CodigoProducto     string
	Descripcion        string
	Cantidad           decimal.Decimal
	PrecioUnitario     decimal.Decimal
	MontoDescuento     decimal.Decimal
}

// ResultadoEmision desenlace de una emisión: el CUF asignado, el estado
// local y lo que el SIN respondió, tal cual.
type ResultadoEmision struct {
	CUF            string
	NumeroFactura  int64
	Estado         domsiat.Estado
	CodigoEstado   *int
	Descripcion    string
	Mensajes       []domsiat.Mensaje
	RutaXMLFirmado string
}

// ServicioRecepcion orquesta la emisión de facturas: códigos vigentes, CUF,
// payload, firma, verificación de firma y envío.
type ServicioRecepcion struct {
	cfg         config.SIATConfig
	codigos     *GestorCodigos
	constructor *infrasiat.ConstructorPayload
	firmador    Firmador
	transporte  Transporte
	tx          TxRunner
	facturas    repository.FacturaRepository
	log         *logger.Logger
}

// NuevoServicioRecepcion construye el servicio de emisión.
func NuevoServicioRecepcion(
	cfg config.SIATConfig,
	codigos *GestorCodigos,
	constructor *infrasiat.ConstructorPayload,
	firmador Firmador,
	transporte Transporte,
	tx TxRunner,
	facturas repository.FacturaRepository,
	log *logger.Logger,
) *ServicioRecepcion {
	return &ServicioRecepcion{
		cfg:         cfg,
		codigos:     codigos,
		constructor: constructor,
		firmador:    firmador,
		transporte:  transporte,
		tx:          tx,
		facturas:    facturas,
		log:         log,
	}
}

// EmitirFactura genera, firma, persiste y (si la emisión es en línea) envía
// una factura. Sin un par CUIS+CUFD vigente no se emite nada: los códigos
// vencidos cierran la operación, nunca se reutilizan.
//
// En contingencia (tipoEmision 2 o modo fuera de línea) la factura queda
// firmada y persistida en estado GENERADA; la regulariza el envío por
// paquetes de ServicioContingencia.
func (s *ServicioRecepcion) EmitirFactura(ctx context.Context, sol SolicitudEmision) (*ResultadoEmision, error) {
	if len(sol.Detalles) == 0 {
		return nil, fmt.Errorf("emision: la solicitud no tiene detalles")
	}

	tipoEmision := sol.TipoEmision
	if tipoEmision == 0 {
		tipoEmision = s.cfg.TipoEmision
	}
	if s.cfg.Offline {
		tipoEmision = pkgsiat.TipoEmisionContingencia
	}

	alcance := s.codigos.AlcancePorDefecto()
	cufd, err := s.codigos.ObtenerCUFD(ctx, alcance)
	if err != nil {
		return nil, err
	}

	numero, err := s.facturas.SiguienteNumero(ctx, alcance.Sucursal, alcance.PuntoVenta)
	if err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaPersistencia, "reservar número de factura", err)
	}

	// La fecha de emisión se corrige con el desfase de reloj que reportó el
	// CUFD, para quedar dentro de la tolerancia de la autoridad.
	fechaEmision := time.Now().Add(cufd.DesfaseReloj)
	cuf, err := pkgsiat.GenerarCUF(pkgsiat.CUFCampos{
		NIT:           s.cfg.NIT,
		FechaEmision:  fechaEmision,
		Sucursal:      alcance.Sucursal,
		Modalidad:     s.cfg.Modalidad,
		TipoEmision:   tipoEmision,
		TipoFactura:   s.cfg.TipoFactura,
		DocSector:     s.cfg.CodigoDocSector,
		NumeroFactura: numero,
		PuntoVenta:    alcance.PuntoVenta,
	})
	if err != nil {
		return nil, err
	}

	factura, detalles := s.armarFactura(sol, cuf.Hex, cufd, numero, tipoEmision, fechaEmision)

	payload, err := s.constructor.BuildRecepcionFactura(factura, detalles, cufd.DesfaseReloj)
	if err != nil {
		return nil, err
	}

	archivo := payload.Comprimido
	archivoB64 := payload.Base64
	hash := payload.HashSHA256
	if payload.Formato == "xml" {
		res, err := s.firmador.Firmar(cuf.Hex, payload.Cuerpo)
		if err != nil {
			return nil, domsiat.NuevaFalla(domsiat.FallaFirma, "firmar factura "+cuf.Hex, err)
		}
		// Compuerta de transmisión: una firma que no verifica es fatal.
		if !s.firmador.Verificar(res.RutaFirmada) {
			return nil, domsiat.NuevaFalla(domsiat.FallaFirma,
				"la firma de la factura "+cuf.Hex+" no verifica, no se transmite", nil)
		}
		factura.XMLFirmado = res.RutaFirmada

		firmado, err := os.ReadFile(res.RutaFirmada)
		if err != nil {
			return nil, domsiat.NuevaFalla(domsiat.FallaFirma, "leer XML firmado de "+cuf.Hex, err)
		}
		if archivo, err = infrasiat.Comprimir(firmado); err != nil {
			return nil, fmt.Errorf("emision: comprimir XML firmado: %w", err)
		}
		archivoB64 = base64.StdEncoding.EncodeToString(archivo)
		suma := sha256.Sum256(archivo)
		hash = hex.EncodeToString(suma[:])
	}

	// Cabecera y detalles se escriben en una sola transacción.
	if err := s.tx.Run(ctx, func(repo repository.FacturaRepository) error {
		if err := repo.Create(ctx, factura); err != nil {
			return err
		}
		for _, d := range detalles {
			d.FacturaID = factura.ID
			if err := repo.CreateDetalle(ctx, d); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir factura "+cuf.Hex, err)
	}

	resultado := &ResultadoEmision{
		CUF:            cuf.Hex,
		NumeroFactura:  numero,
		Estado:         domsiat.EstadoGenerada,
		RutaXMLFirmado: factura.XMLFirmado,
	}

	if tipoEmision == pkgsiat.TipoEmisionContingencia {
		s.log.Info().
			Str("cuf", cuf.Hex).
			Int64("numero", numero).
			Msg("factura de contingencia generada, pendiente de regularización")
		return resultado, nil
	}

	campos := camposRecepcionFactura(s.cfg, cufd.CuisCodigo, cufd.Codigo, tipoEmision,
		archivoB64, payload.FechaEnvio.Format("2006-01-02T15:04:05.000"), hash)
	resp, err := s.transporte.LlamarConCandidatos(ctx, infrasiat.OpRecepcionFactura, candidatosRecepcion, campos)
	if err != nil {
		return nil, err
	}
	if err := clasificarRespuesta(resp, infrasiat.OpRecepcionFactura); err != nil {
		return nil, err
	}

	// Resultado normal: codigoEstado y mensajes pasan tal cual, sin
	// reinterpretación local. La transición persistida es GENERADA→ENVIADA.
	if err := s.facturas.ActualizarEstado(ctx, cuf.Hex, domsiat.EstadoEnviada,
		resp.CodigoEstado, resumenMensajes(resp.Mensajes)); err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir estado ENVIADA de "+cuf.Hex, err)
	}

	resultado.Estado = domsiat.EstadoEnviada
	resultado.CodigoEstado = resp.CodigoEstado
	resultado.Descripcion = resp.Descripcion
	resultado.Mensajes = resp.Mensajes

	s.log.Info().
		Str("cuf", cuf.Hex).
		Int64("numero", numero).
		Int("codigoEstado", *resp.CodigoEstado).
		Msg("factura enviada al SIN")
	return resultado, nil
}

// armarFactura construye las entidades de cabecera y detalle desde la solicitud.
func (s *ServicioRecepcion) armarFactura(
	sol SolicitudEmision,
	cufHex string,
	cufd *entity.Cufd,
	numero int64,
	tipoEmision int,
	fechaEmision time.Time,
) (*entity.Factura, []*entity.DetalleFactura) {
	subtotal := decimal.Zero
	descuento := decimal.Zero
	detalles := make([]*entity.DetalleFactura, 0, len(sol.Detalles))
	for _, d := range sol.Detalles {
		bruto := d.Cantidad.Mul(d.PrecioUnitario)
		neto := bruto.Sub(d.MontoDescuento)
		detalles = append(detalles, &entity.DetalleFactura{
			ActividadEconomica: d.ActividadEconomica,
			CodigoProducto:     d.CodigoProducto,
			Descripcion:        d.Descripcion,
			Cantidad:           d.Cantidad,
			PrecioUnitario:     d.PrecioUnitario,
			MontoDescuento:     d.MontoDescuento,
			Subtotal:           neto,
		})
		subtotal = subtotal.Add(bruto)
		descuento = descuento.Add(d.MontoDescuento)
	}

	cafc := sol.CAFC
	if cafc == "" {
		cafc = s.cfg.CAFC
	}

	return &entity.Factura{
		NumeroFactura:    numero,
		CUF:              cufHex,
		CUFD:             cufd.Codigo,
		Sucursal:         cufd.Sucursal,
		PuntoVenta:       cufd.PuntoVenta,
		TipoEmision:      tipoEmision,
		CodigoEvento:     sol.CodigoEvento,
		CAFC:             cafc,
		NITComprador:     sol.NITComprador,
		RazonSocial:      sol.RazonSocial,
		NombreEstudiante: sol.NombreEstudiante,
		PeriodoAcademico: sol.PeriodoAcademico,
		Subtotal:         subtotal,
		Descuento:        descuento,
		MontoTotal:       subtotal.Sub(descuento),
		CodigoMoneda:     1, // bolivianos
		TipoCambio:       decimal.NewFromInt(1),
		MetodoPago:       sol.MetodoPago,
		FechaEmision:     fechaEmision,
		Estado:           domsiat.EstadoGenerada,
	}, detalles
}
