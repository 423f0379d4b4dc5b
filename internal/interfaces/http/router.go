package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ubolivar/facturacion-siat/internal/application/facturacion"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
)

// Roles reconocidos por la fachada. El cajero emite y consulta; las
// operaciones de contingencia y catálogos quedan para el admin.
const (
	RolCajero = "cajero"
	RolAdmin  = "admin"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Emision      *facturacion.ServicioRecepcion
	Verificacion *facturacion.ServicioVerificacion
	Anulacion    *facturacion.ServicioAnulacion
	Contingencia *facturacion.ServicioContingencia
	Parametricas *facturacion.ServicioParametricas
	Facturas     repository.FacturaRepository
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Toda la API es protegida: la consume el sistema académico, no el público.
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	facturas := protected.Group("/facturas", RequireRole(RolCajero, RolAdmin))
	facturaHandler := NewFacturaHandler(deps.Emision, deps.Verificacion, deps.Anulacion, deps.Facturas)
	facturas.Post("/", facturaHandler.Emitir)
	facturas.Get("/:cuf", facturaHandler.GetByCUF)
	facturas.Get("/:cuf/estado", facturaHandler.VerificarEstado)
	facturas.Post("/:cuf/reconciliacion", facturaHandler.Reconciliar)
	facturas.Post("/:cuf/anulacion", facturaHandler.Anular)

	contingencia := protected.Group("/contingencia", RequireRole(RolAdmin))
	contingenciaHandler := NewContingenciaHandler(deps.Contingencia)
	contingencia.Post("/eventos", contingenciaHandler.RegistrarEvento)
	contingencia.Post("/regularizacion", contingenciaHandler.Regularizar)

	parametricas := protected.Group("/parametricas", RequireRole(RolAdmin))
	parametricasHandler := NewParametricasHandler(deps.Parametricas)
	parametricas.Post("/sincronizacion", parametricasHandler.Sincronizar)
}
