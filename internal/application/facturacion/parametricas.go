package facturacion

import (
	"context"
	"fmt"

	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
)

// ServicioParametricas sincroniza los catálogos paramétricos del SIAT
// (actividades económicas y leyendas) y alimenta con ellos las búsquedas del
// constructor de payloads.
type ServicioParametricas struct {
	cfg         config.SIATConfig
	codigos     *GestorCodigos
	transporte  Transporte
	constructor *infrasiat.ConstructorPayload
	log         *logger.Logger
}

// NuevoServicioParametricas construye el servicio.
func NuevoServicioParametricas(cfg config.SIATConfig, codigos *GestorCodigos, transporte Transporte, constructor *infrasiat.ConstructorPayload, log *logger.Logger) *ServicioParametricas {
	return &ServicioParametricas{cfg: cfg, codigos: codigos, transporte: transporte, constructor: constructor, log: log}
}

// Sincronizar descarga los catálogos y los publica en el constructor de
// payloads. Un catálogo vacío no es error: las búsquedas caerán a los
// valores por defecto, que ya se registran como señal de calidad de datos.
func (s *ServicioParametricas) Sincronizar(ctx context.Context) (*infrasiat.Catalogo, error) {
	cuis, err := s.codigos.ObtenerCUIS(ctx, s.codigos.AlcancePorDefecto())
	if err != nil {
		return nil, err
	}
	campos := s.camposSincronizacion(cuis.Codigo)

	actividades, err := s.transporte.Sincronizar(ctx, infrasiat.ServicioSincronizacion,
		infrasiat.OpSincronizarActividades, "SolicitudSincronizacion", campos)
	if err != nil {
		return nil, err
	}
	leyendas, err := s.transporte.Sincronizar(ctx, infrasiat.ServicioSincronizacion,
		infrasiat.OpSincronizarLeyendas, "SolicitudSincronizacion", campos)
	if err != nil {
		return nil, err
	}

	catalogo := &infrasiat.Catalogo{
		Actividades: make(map[string]string, len(actividades)),
	}
	for _, a := range actividades {
		catalogo.Actividades[a.Codigo] = a.Descripcion
	}
	for _, l := range leyendas {
		if l.Descripcion != "" {
			catalogo.Leyendas = append(catalogo.Leyendas, l.Descripcion)
		}
	}

	s.constructor.ActualizarCatalogo(catalogo)
	s.log.Info().
		Int("actividades", len(catalogo.Actividades)).
		Int("leyendas", len(catalogo.Leyendas)).
		Msg("paramétricas sincronizadas")
	return catalogo, nil
}

func (s *ServicioParametricas) camposSincronizacion(cuis string) []infrasiat.Campo {
	return []infrasiat.Campo{
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", s.cfg.Ambiente)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", s.cfg.PuntoVenta)},
		{Nombre: "codigoSistema", Valor: s.cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", s.cfg.Sucursal)},
		{Nombre: "cuis", Valor: cuis},
		{Nombre: "nit", Valor: fmt.Sprintf("%d", s.cfg.NIT)},
	}
}
