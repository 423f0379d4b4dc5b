package facturacion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
)

func gestorDePrueba(t *testing.T, responder func(n int, operacion string) (*infrasiat.Respuesta, error)) (*GestorCodigos, *transporteFalso, *repoCodigosFalso) {
	t.Helper()
	transporte := &transporteFalso{responder: responder}
	repo := &repoCodigosFalso{}
	return NuevoGestorCodigos(configDePrueba(), transporte, repo, logger.Nop()), transporte, repo
}

func TestObtenerCUIS_UsaElCacheadoVigente(t *testing.T) {
	gestor, transporte, repo := gestorDePrueba(t, func(n int, op string) (*infrasiat.Respuesta, error) {
		t.Fatal("no debía llamar al SIN")
		return nil, nil
	})
	repo.cuis = &entity.Cuis{
		Ambiente: 2, Codigo: "CUIS-VIGENTE",
		FechaVigencia: time.Now().Add(24 * time.Hour),
	}

	cuis, err := gestor.ObtenerCUIS(context.Background(), gestor.AlcancePorDefecto())
	require.NoError(t, err)
	assert.Equal(t, "CUIS-VIGENTE", cuis.Codigo)
	assert.Empty(t, transporte.llamadas)
}

func TestObtenerCUIS_RenuevaYPersiste(t *testing.T) {
	vigencia := time.Now().Add(365 * 24 * time.Hour)
	gestor, transporte, repo := gestorDePrueba(t, func(n int, op string) (*infrasiat.Respuesta, error) {
		return respuestaCodigo("CUIS-NUEVO", vigencia), nil
	})

	cuis, err := gestor.ObtenerCUIS(context.Background(), gestor.AlcancePorDefecto())
	require.NoError(t, err)
	assert.Equal(t, "CUIS-NUEVO", cuis.Codigo)
	assert.Equal(t, 1, repo.guardadosCuis)
	require.Len(t, transporte.llamadasDe(infrasiat.OpCuis), 1)
}

// TestObtenerCUIS_UnaRenovacionEnVuelo el contrato de concurrencia: por más
// llamadores simultáneos que haya, una sola renovación remota por alcance.
func TestObtenerCUIS_UnaRenovacionEnVuelo(t *testing.T) {
	vigencia := time.Now().Add(24 * time.Hour)
	gestor, transporte, _ := gestorDePrueba(t, func(n int, op string) (*infrasiat.Respuesta, error) {
		time.Sleep(50 * time.Millisecond) // mantener el vuelo abierto
		return respuestaCodigo("CUIS-COMPARTIDO", vigencia), nil
	})

	const llamadores = 16
	var wg sync.WaitGroup
	resultados := make([]string, llamadores)
	for i := 0; i < llamadores; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := gestor.ObtenerCUIS(context.Background(), gestor.AlcancePorDefecto())
			if assert.NoError(t, err) {
				resultados[i] = c.Codigo
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, transporte.llamadasDe(infrasiat.OpCuis), 1,
		"los llamadores concurrentes deben compartir una sola renovación")
	for _, r := range resultados {
		assert.Equal(t, "CUIS-COMPARTIDO", r)
	}
}

func TestObtenerCUFD_ExigeCuisYRegistraDesfase(t *testing.T) {
	// El SIN responde con una vigencia 10 minutos por delante de la nominal:
	// ese corrimiento es el desfase de reloj de la autoridad.
	desfase := 10 * time.Minute
	gestor, transporte, repo := gestorDePrueba(t, func(n int, op string) (*infrasiat.Respuesta, error) {
		switch op {
		case infrasiat.OpCuis:
			return respuestaCodigo("CUIS-1", time.Now().Add(48*time.Hour)), nil
		case infrasiat.OpCufd:
			return respuestaCodigo("CUFD-1", time.Now().Add(vigenciaNominalCufd+desfase)), nil
		}
		t.Fatalf("operación inesperada %s", op)
		return nil, nil
	})

	cufd, err := gestor.ObtenerCUFD(context.Background(), gestor.AlcancePorDefecto())
	require.NoError(t, err)
	assert.Equal(t, "CUFD-1", cufd.Codigo)
	assert.Equal(t, "CUIS-1", cufd.CuisCodigo, "el CUFD se deriva del CUIS vigente")
	assert.Equal(t, 1, repo.guardadosCuis)
	assert.Equal(t, 1, repo.guardadosCufd)
	assert.InDelta(t, desfase.Seconds(), cufd.DesfaseReloj.Seconds(), 5,
		"el desfase registrado debe reflejar el corrimiento reportado")

	// La lista de campos del cufd debe llevar el cuis recién obtenido.
	llamadas := transporte.llamadasDe(infrasiat.OpCufd)
	require.Len(t, llamadas, 1)
	var conCuis bool
	for _, c := range llamadas[0].Campos {
		if c.Nombre == "cuis" && c.Valor == "CUIS-1" {
			conCuis = true
		}
	}
	assert.True(t, conCuis)
}

func TestObtenerCUFD_RespuestaSinCodigoEsViolacionDeContrato(t *testing.T) {
	gestor, _, _ := gestorDePrueba(t, func(n int, op string) (*infrasiat.Respuesta, error) {
		if op == infrasiat.OpCuis {
			return respuestaCodigo("CUIS-1", time.Now().Add(48*time.Hour)), nil
		}
		return &infrasiat.Respuesta{}, nil // cufd sin código ni vigencia
	})

	_, err := gestor.ObtenerCUFD(context.Background(), gestor.AlcancePorDefecto())
	require.Error(t, err)
	assert.True(t, domsiat.EsViolacionContrato(err))
}

// TestObtenerCUFD_FallaCerradaSinRenovacion sin código vigente y con el SIN
// caído, la operación falla; jamás devuelve un código vencido.
func TestObtenerCUFD_FallaCerradaSinRenovacion(t *testing.T) {
	gestor, _, repo := gestorDePrueba(t, func(n int, op string) (*infrasiat.Respuesta, error) {
		return nil, domsiat.NuevaFalla(domsiat.FallaServicioNoDisponible, "SIN caído", nil)
	})
	repo.cufd = &entity.Cufd{
		Codigo:        "CUFD-VENCIDO",
		FechaVigencia: time.Now().Add(-time.Hour),
	}

	_, err := gestor.ObtenerCUFD(context.Background(), gestor.AlcancePorDefecto())
	require.Error(t, err)
	assert.True(t, domsiat.EsServicioNoDisponible(err))
}
