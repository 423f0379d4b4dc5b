package facturacion

import (
	"context"
	"fmt"
	"time"

	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// vigenciaNominalCufd es la vida nominal de un CUFD. La diferencia entre la
// vigencia reportada por el SIN y ahora+nominal es el desfase de reloj de la
// autoridad, que luego corrige fechaEnvio.
const vigenciaNominalCufd = 24 * time.Hour

// GestorCodigos administra el ciclo de vida de los códigos CUIS y CUFD:
// get-or-create con expiración, una sola renovación remota en vuelo por
// alcance (singleflight) y persistencia append-only vía CodigoRepository.
//
// El contrato es cerrado ante códigos vencidos: si no se puede obtener un
// código vigente, la operación falla; nunca se emite con códigos viejos.
type GestorCodigos struct {
	cfg        config.SIATConfig
	transporte Transporte
	repo       repository.CodigoRepository
	log        *logger.Logger
	vuelo      singleflight.Group
}

// NuevoGestorCodigos construye el gestor.
func NuevoGestorCodigos(cfg config.SIATConfig, transporte Transporte, repo repository.CodigoRepository, log *logger.Logger) *GestorCodigos {
	return &GestorCodigos{cfg: cfg, transporte: transporte, repo: repo, log: log}
}

// AlcancePorDefecto devuelve el alcance configurado para la instancia.
func (g *GestorCodigos) AlcancePorDefecto() entity.Alcance {
	return entity.Alcance{
		Ambiente:   g.cfg.Ambiente,
		Sucursal:   g.cfg.Sucursal,
		PuntoVenta: g.cfg.PuntoVenta,
	}
}

// ObtenerCUIS devuelve el CUIS vigente del alcance, renovándolo contra el SIN
// si el cacheado expiró. Llamadas concurrentes del mismo alcance comparten
// una única renovación.
func (g *GestorCodigos) ObtenerCUIS(ctx context.Context, alcance entity.Alcance) (*entity.Cuis, error) {
	ahora := time.Now()
	if c, err := g.repo.CuisVigente(ctx, alcance, ahora); err == nil && c.Vigente(ahora) {
		return c, nil
	} else if err != nil {
		g.log.Warn().Err(err).Msg("lectura de CUIS cacheado fallida, renovando contra el SIN")
	}

	clave := fmt.Sprintf("cuis/%d/%d/%d", alcance.Ambiente, alcance.Sucursal, alcance.PuntoVenta)
	v, err, _ := g.vuelo.Do(clave, func() (interface{}, error) {
		// Releer dentro del vuelo: otro llamador pudo haber renovado ya.
		if c, err := g.repo.CuisVigente(ctx, alcance, time.Now()); err == nil && c.Vigente(time.Now()) {
			return c, nil
		}
		return g.renovarCuis(ctx, alcance)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.Cuis), nil
}

func (g *GestorCodigos) renovarCuis(ctx context.Context, alcance entity.Alcance) (*entity.Cuis, error) {
	campos := []infrasiat.Campo{
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", alcance.Ambiente)},
		{Nombre: "codigoModalidad", Valor: fmt.Sprintf("%d", g.cfg.Modalidad)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", alcance.PuntoVenta)},
		{Nombre: "codigoSistema", Valor: g.cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", alcance.Sucursal)},
		{Nombre: "nit", Valor: fmt.Sprintf("%d", g.cfg.NIT)},
	}
	resp, err := g.transporte.LlamarConCandidatos(ctx, infrasiat.OpCuis,
		[]infrasiat.Candidato{{Servicio: infrasiat.ServicioCodigos, Wrapper: "SolicitudCuis"}},
		campos)
	if err != nil {
		return nil, err
	}
	if resp.Codigo == "" || resp.FechaVigencia == nil {
		return nil, &domsiat.Falla{
			Tipo:    domsiat.FallaViolacionContrato,
			Mensaje: "respuesta de cuis sin código o sin fechaVigencia",
			Crudo:   string(resp.Crudo),
		}
	}

	cuis := &entity.Cuis{
		Ambiente:      alcance.Ambiente,
		Sucursal:      alcance.Sucursal,
		PuntoVenta:    alcance.PuntoVenta,
		Codigo:        resp.Codigo,
		FechaVigencia: *resp.FechaVigencia,
	}
	if err := g.repo.GuardarCuis(ctx, cuis); err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir CUIS renovado", err)
	}
	g.log.Info().
		Str("cuis", cuis.Codigo).
		Time("vigencia", cuis.FechaVigencia).
		Int("sucursal", alcance.Sucursal).
		Int("puntoVenta", alcance.PuntoVenta).
		Msg("CUIS renovado")
	return cuis, nil
}

// ObtenerCUFD devuelve el CUFD vigente del alcance, derivando uno nuevo a
// partir del CUIS vigente si el cacheado expiró. Registra el desfase de reloj
// que la autoridad reporta implícitamente en la vigencia.
func (g *GestorCodigos) ObtenerCUFD(ctx context.Context, alcance entity.Alcance) (*entity.Cufd, error) {
	ahora := time.Now()
	if c, err := g.repo.CufdVigente(ctx, alcance, ahora); err == nil && c.Vigente(ahora) {
		return c, nil
	} else if err != nil {
		g.log.Warn().Err(err).Msg("lectura de CUFD cacheado fallida, renovando contra el SIN")
	}

	clave := fmt.Sprintf("cufd/%d/%d/%d", alcance.Ambiente, alcance.Sucursal, alcance.PuntoVenta)
	v, err, _ := g.vuelo.Do(clave, func() (interface{}, error) {
		if c, err := g.repo.CufdVigente(ctx, alcance, time.Now()); err == nil && c.Vigente(time.Now()) {
			return c, nil
		}
		return g.renovarCufd(ctx, alcance)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.Cufd), nil
}

func (g *GestorCodigos) renovarCufd(ctx context.Context, alcance entity.Alcance) (*entity.Cufd, error) {
	// Un CUFD solo se deriva de un CUIS vigente.
	cuis, err := g.ObtenerCUIS(ctx, alcance)
	if err != nil {
		return nil, err
	}

	solicitadoEn := time.Now()
	campos := []infrasiat.Campo{
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", alcance.Ambiente)},
		{Nombre: "codigoModalidad", Valor: fmt.Sprintf("%d", g.cfg.Modalidad)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", alcance.PuntoVenta)},
		{Nombre: "codigoSistema", Valor: g.cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", alcance.Sucursal)},
		{Nombre: "cuis", Valor: cuis.Codigo},
		{Nombre: "nit", Valor: fmt.Sprintf("%d", g.cfg.NIT)},
	}
	resp, err := g.transporte.LlamarConCandidatos(ctx, infrasiat.OpCufd,
		[]infrasiat.Candidato{{Servicio: infrasiat.ServicioCodigos, Wrapper: "SolicitudCufd"}},
		campos)
	if err != nil {
		return nil, err
	}
	if resp.Codigo == "" || resp.FechaVigencia == nil {
		return nil, &domsiat.Falla{
			Tipo:    domsiat.FallaViolacionContrato,
			Mensaje: "respuesta de cufd sin código o sin fechaVigencia",
			Crudo:   string(resp.Crudo),
		}
	}

	cufd := &entity.Cufd{
		CuisCodigo:    cuis.Codigo,
		Ambiente:      alcance.Ambiente,
		Sucursal:      alcance.Sucursal,
		PuntoVenta:    alcance.PuntoVenta,
		Codigo:        resp.Codigo,
		CodigoControl: resp.CodigoControl,
		Direccion:     resp.Direccion,
		FechaVigencia: *resp.FechaVigencia,
		DesfaseReloj:  resp.FechaVigencia.Sub(solicitadoEn.Add(vigenciaNominalCufd)),
	}
	if err := g.repo.GuardarCufd(ctx, cufd); err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaPersistencia, "persistir CUFD renovado", err)
	}
	g.log.Info().
		Str("cufd", cufd.Codigo).
		Time("vigencia", cufd.FechaVigencia).
		Dur("desfaseReloj", cufd.DesfaseReloj).
		Int("sucursal", alcance.Sucursal).
		Int("puntoVenta", alcance.PuntoVenta).
		Msg("CUFD renovado")
	return cufd, nil
}
