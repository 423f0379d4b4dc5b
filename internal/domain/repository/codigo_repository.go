package repository

import (
	"context"
	"time"

	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
)

// CodigoRepository caché persistente de códigos de autorización CUIS/CUFD,
// indexado por alcance (ambiente, sucursal, puntoVenta). Los códigos nunca se
// mutan: cada renovación inserta una fila nueva y las consultas devuelven la
// vigente más reciente.
type CodigoRepository interface {
	CuisVigente(ctx context.Context, a entity.Alcance, ahora time.Time) (*entity.Cuis, error)
	GuardarCuis(ctx context.Context, c *entity.Cuis) error

	CufdVigente(ctx context.Context, a entity.Alcance, ahora time.Time) (*entity.Cufd, error)
	GuardarCufd(ctx context.Context, c *entity.Cufd) error
}

// EventoRepository persistencia de eventos significativos registrados.
type EventoRepository interface {
	Guardar(ctx context.Context, e *entity.EventoSignificativo) error
	GetPorCodigoRecepcion(ctx context.Context, codigo int64) (*entity.EventoSignificativo, error)
}

// AuditoriaRepository bitácora append-only de llamadas SOAP. La escritura es
// best-effort: un fallo aquí jamás aborta la operación primaria.
type AuditoriaRepository interface {
	Registrar(ctx context.Context, a *entity.AuditoriaSoap) error
}
