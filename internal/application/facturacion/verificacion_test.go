package facturacion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
)

func verificadorDePrueba(t *testing.T, facturas *repoFacturasFalso, responder func(n int, op string) (*infrasiat.Respuesta, error)) (*ServicioVerificacion, *transporteFalso) {
	t.Helper()
	cfg := configDePrueba()
	transporte := &transporteFalso{responder: responder}
	repoCodigos := &repoCodigosFalso{
		cuis: &entity.Cuis{Codigo: "CUIS-1", FechaVigencia: time.Now().Add(48 * time.Hour)},
		cufd: &entity.Cufd{CuisCodigo: "CUIS-1", Codigo: "CUFD-1", FechaVigencia: time.Now().Add(12 * time.Hour)},
	}
	log := logger.Nop()
	codigos := NuevoGestorCodigos(cfg, transporte, repoCodigos, log)
	return NuevoServicioVerificacion(cfg, codigos, transporte, facturas, log), transporte
}

func TestVerificarEstado_MapeaPorTabla(t *testing.T) {
	casos := []struct {
		codigo int
		estado domsiat.Estado
	}{
		{690, domsiat.EstadoAceptada},
		{908, domsiat.EstadoAnulada},
		{691, domsiat.EstadoAnulada},
		{905, domsiat.EstadoAnulada},
		{904, domsiat.EstadoRechazada},
		{123, domsiat.EstadoRechazada},
	}
	for _, c := range casos {
		svc, _ := verificadorDePrueba(t, nuevoRepoFacturas(), func(n int, op string) (*infrasiat.Respuesta, error) {
			return respuestaConEstado(c.codigo), nil
		})
		consulta, err := svc.VerificarEstado(context.Background(), "CUF-X")
		require.NoError(t, err)
		assert.Equal(t, c.estado, consulta.Estado, "codigoEstado %d", c.codigo)
		require.NotNil(t, consulta.CodigoEstado)
		assert.Equal(t, c.codigo, *consulta.CodigoEstado)
	}
}

func TestVerificarEstado_SinCodigoEsDesconocido(t *testing.T) {
	svc, _ := verificadorDePrueba(t, nuevoRepoFacturas(), func(n int, op string) (*infrasiat.Respuesta, error) {
		return &infrasiat.Respuesta{Descripcion: "sin estado"}, nil
	})
	consulta, err := svc.VerificarEstado(context.Background(), "CUF-X")
	require.NoError(t, err)
	assert.Equal(t, domsiat.EstadoDesconocido, consulta.Estado)
	assert.Nil(t, consulta.CodigoEstado)
}

// TestVerificarEstado_CandidatosEnOrden la consulta lleva la lista ordenada
// de pares (servicio, wrapper); la variante vigente va primero.
func TestVerificarEstado_CandidatosEnOrden(t *testing.T) {
	svc, transporte := verificadorDePrueba(t, nuevoRepoFacturas(), func(n int, op string) (*infrasiat.Respuesta, error) {
		return respuestaConEstado(690), nil
	})
	_, err := svc.VerificarEstado(context.Background(), "CUF-X")
	require.NoError(t, err)

	llamadas := transporte.llamadasDe(infrasiat.OpVerificacionEstado)
	require.Len(t, llamadas, 1)
	require.Len(t, llamadas[0].Candidatos, 2)
	assert.Equal(t, infrasiat.ServicioRecepcion, llamadas[0].Candidatos[0].Servicio)
	assert.Equal(t, infrasiat.ServicioRecepcionCompV2, llamadas[0].Candidatos[1].Servicio)
}

func TestReconciliar_PersisteTransicionValida(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-R", Estado: domsiat.EstadoEnviada})

	svc, _ := verificadorDePrueba(t, facturas, func(n int, op string) (*infrasiat.Respuesta, error) {
		return respuestaConEstado(690), nil
	})
	consulta, err := svc.Reconciliar(context.Background(), "CUF-R")
	require.NoError(t, err)
	assert.Equal(t, domsiat.EstadoAceptada, consulta.Estado)

	f, _ := facturas.GetByCUF(context.Background(), "CUF-R")
	assert.Equal(t, domsiat.EstadoAceptada, f.Estado)
	assert.Equal(t, 1, facturas.actualizados)
}

// TestReconciliar_AceptacionPersisteUnaVez cierre del ciclo de emisión: la
// factura enviada pasa a ACEPTADA con el 690 y una segunda conciliación con
// el mismo 690 no reescribe el estado.
func TestReconciliar_AceptacionPersisteUnaVez(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-1X", Estado: domsiat.EstadoEnviada})

	svc, transporte := verificadorDePrueba(t, facturas, func(n int, op string) (*infrasiat.Respuesta, error) {
		return respuestaConEstado(690), nil
	})

	primera, err := svc.Reconciliar(context.Background(), "CUF-1X")
	require.NoError(t, err)
	assert.Equal(t, domsiat.EstadoAceptada, primera.Estado)

	segunda, err := svc.Reconciliar(context.Background(), "CUF-1X")
	require.NoError(t, err)
	assert.Equal(t, domsiat.EstadoAceptada, segunda.Estado)

	f, _ := facturas.GetByCUF(context.Background(), "CUF-1X")
	assert.Equal(t, domsiat.EstadoAceptada, f.Estado)
	assert.Equal(t, 1, facturas.actualizados, "la aceptación se persiste exactamente una vez")
	assert.Len(t, transporte.llamadasDe(infrasiat.OpVerificacionEstado), 2)
}

// TestReconciliar_NoRetrocedeEstados una ANULADA local jamás vuelve a
// ACEPTADA aunque el SIN lo reporte.
func TestReconciliar_NoRetrocedeEstados(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-A", Estado: domsiat.EstadoAnulada})

	svc, _ := verificadorDePrueba(t, facturas, func(n int, op string) (*infrasiat.Respuesta, error) {
		return respuestaConEstado(690), nil
	})
	_, err := svc.Reconciliar(context.Background(), "CUF-A")
	require.NoError(t, err)

	f, _ := facturas.GetByCUF(context.Background(), "CUF-A")
	assert.Equal(t, domsiat.EstadoAnulada, f.Estado)
	assert.Equal(t, 0, facturas.actualizados)
}

func TestReconciliar_EscrituraFallidaEsFatal(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-F", Estado: domsiat.EstadoEnviada})
	facturas.fallarEscritura = true

	svc, _ := verificadorDePrueba(t, facturas, func(n int, op string) (*infrasiat.Respuesta, error) {
		return respuestaConEstado(690), nil
	})
	_, err := svc.Reconciliar(context.Background(), "CUF-F")
	require.Error(t, err)
	assert.Equal(t, domsiat.FallaPersistencia, domsiat.TipoDeFalla(err))
}
