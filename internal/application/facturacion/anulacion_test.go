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

const motivoFacturaMalEmitida = 1

func anuladorDePrueba(t *testing.T, facturas *repoFacturasFalso, responder func(n int, op string) (*infrasiat.Respuesta, error), alAnular func(cuf string)) (*ServicioAnulacion, *transporteFalso) {
	t.Helper()
	cfg := configDePrueba()
	transporte := &transporteFalso{responder: responder}
	repoCodigos := &repoCodigosFalso{
		cuis: &entity.Cuis{Codigo: "CUIS-1", FechaVigencia: time.Now().Add(48 * time.Hour)},
		cufd: &entity.Cufd{CuisCodigo: "CUIS-1", Codigo: "CUFD-1", FechaVigencia: time.Now().Add(12 * time.Hour)},
	}
	log := logger.Nop()
	codigos := NuevoGestorCodigos(cfg, transporte, repoCodigos, log)
	verificador := NuevoServicioVerificacion(cfg, codigos, transporte, facturas, log)
	return NuevoServicioAnulacion(cfg, codigos, verificador, transporte, facturas, log, alAnular), transporte
}

// TestAnular_YaAnuladaCortaEnSeco si la verificación previa ya reporta
// ANULADA no sale ninguna solicitud de anulación e Intentos queda en 0.
func TestAnular_YaAnuladaCortaEnSeco(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-1", Estado: domsiat.EstadoAnulada})

	svc, transporte := anuladorDePrueba(t, facturas, func(n int, op string) (*infrasiat.Respuesta, error) {
		require.Equal(t, infrasiat.OpVerificacionEstado, op, "solo debe verificar")
		return respuestaConEstado(908), nil
	}, nil)

	res, err := svc.Anular(context.Background(), "CUF-1", motivoFacturaMalEmitida)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Intentos)
	assert.Equal(t, domsiat.EstadoAnulada, res.Estado)
	assert.Len(t, res.Bitacora, 1)
	assert.Empty(t, transporte.llamadasDe(infrasiat.OpAnulacionFactura))
}

// TestAnular_FlujoCompleto verifica, envía, sondea hasta confirmar y
// persiste el terminal una sola vez.
func TestAnular_FlujoCompleto(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-2", Estado: domsiat.EstadoAceptada})

	verificaciones := 0
	responder := func(n int, op string) (*infrasiat.Respuesta, error) {
		switch op {
		case infrasiat.OpVerificacionEstado:
			verificaciones++
			if verificaciones <= 2 { // previa + primer sondeo: aún activa
				return respuestaConEstado(690), nil
			}
			return respuestaConEstado(905), nil
		case infrasiat.OpAnulacionFactura:
			return respuestaConEstado(905), nil
		}
		t.Fatalf("operación inesperada %s", op)
		return nil, nil
	}

	var regenerado string
	svc, transporte := anuladorDePrueba(t, facturas, responder, func(cuf string) { regenerado = cuf })

	res, err := svc.Anular(context.Background(), "CUF-2", motivoFacturaMalEmitida)
	require.NoError(t, err)
	assert.Equal(t, domsiat.EstadoAnulada, res.Estado)
	assert.Equal(t, 1, res.Intentos)
	// Bitácora ordenada: previa (ACEPTADA), sondeo 1 (ACEPTADA), sondeo 2 (ANULADA).
	require.Len(t, res.Bitacora, 3)
	assert.Equal(t, domsiat.EstadoAceptada, res.Bitacora[0].Estado)
	assert.Equal(t, domsiat.EstadoAnulada, res.Bitacora[2].Estado)

	assert.Len(t, transporte.llamadasDe(infrasiat.OpAnulacionFactura), 1)
	assert.Equal(t, "CUF-2", regenerado, "el hook de regeneración se dispara al confirmar")

	f, _ := facturas.GetByCUF(context.Background(), "CUF-2")
	assert.Equal(t, domsiat.EstadoAnulada, f.Estado)
	assert.Equal(t, 1, facturas.actualizados, "el terminal se persiste exactamente una vez")
}

// TestAnular_SinConfirmacionDevuelveUltimoEstado agotados los sondeos sin
// terminal, se devuelve el último estado conocido en vez de bloquear.
func TestAnular_SinConfirmacionDevuelveUltimoEstado(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-3", Estado: domsiat.EstadoAceptada})

	svc, transporte := anuladorDePrueba(t, facturas, func(n int, op string) (*infrasiat.Respuesta, error) {
		return respuestaConEstado(690), nil // el SIN nunca confirma
	}, nil)

	inicio := time.Now()
	res, err := svc.Anular(context.Background(), "CUF-3", motivoFacturaMalEmitida)
	require.NoError(t, err)
	assert.Equal(t, domsiat.EstadoAceptada, res.Estado)
	assert.Equal(t, 1, res.Intentos)
	assert.Len(t, res.Bitacora, 1+maxSondeosAnulacion)
	assert.Less(t, time.Since(inicio), presupuestoAnulacion)
	assert.Len(t, transporte.llamadasDe(infrasiat.OpAnulacionFactura), 1)

	f, _ := facturas.GetByCUF(context.Background(), "CUF-3")
	assert.Equal(t, domsiat.EstadoAceptada, f.Estado, "sin terminal no se toca el estado local")
}

// TestAnular_CancelacionConservaBitacora el llamador puede cancelar el
// sondeo; la bitácora parcial sigue siendo válida.
func TestAnular_CancelacionConservaBitacora(t *testing.T) {
	facturas := nuevoRepoFacturas()
	_ = facturas.Create(context.Background(), &entity.Factura{CUF: "CUF-4", Estado: domsiat.EstadoAceptada})

	ctx, cancel := context.WithCancel(context.Background())
	svc, _ := anuladorDePrueba(t, facturas, func(n int, op string) (*infrasiat.Respuesta, error) {
		if op == infrasiat.OpAnulacionFactura {
			cancel() // cancelar apenas enviada la anulación
		}
		return respuestaConEstado(690), nil
	}, nil)

	res, err := svc.Anular(ctx, "CUF-4", motivoFacturaMalEmitida)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Intentos)
	require.NotEmpty(t, res.Bitacora)
	assert.Equal(t, domsiat.EstadoAceptada, res.Bitacora[0].Estado)
}

func TestAnular_MotivoInvalido(t *testing.T) {
	svc, transporte := anuladorDePrueba(t, nuevoRepoFacturas(), func(n int, op string) (*infrasiat.Respuesta, error) {
		return nil, nil
	}, nil)
	_, err := svc.Anular(context.Background(), "CUF-5", 0)
	require.Error(t, err)
	assert.Empty(t, transporte.llamadas)
}
