package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
)

var _ repository.EventoRepository = (*EventoRepo)(nil)

// EventoRepo persistencia de eventos significativos sobre PostgreSQL.
type EventoRepo struct {
	q Querier
}

// NewEventoRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEventoRepository(q Querier) *EventoRepo {
	return &EventoRepo{q: q}
}

// Guardar inserta un evento significativo ya registrado ante el SIN.
func (r *EventoRepo) Guardar(ctx context.Context, e *entity.EventoSignificativo) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO eventos_significativos (id, codigo_motivo, descripcion, sucursal, punto_venta,
		                                    cufd_evento, fecha_inicio, fecha_fin, codigo_recepcion_evento, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		e.ID, e.CodigoMotivo, e.Descripcion, e.Sucursal, e.PuntoVenta,
		e.CufdEvento, e.FechaInicio, e.FechaFin, e.CodigoRecepcionEvento, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evento significativo: %w", err)
	}
	return nil
}

// GetPorCodigoRecepcion busca un evento por el código que asignó el SIN.
// Devuelve nil si no existe.
func (r *EventoRepo) GetPorCodigoRecepcion(ctx context.Context, codigo int64) (*entity.EventoSignificativo, error) {
	query := `
		SELECT id, codigo_motivo, descripcion, sucursal, punto_venta,
		       cufd_evento, fecha_inicio, fecha_fin, codigo_recepcion_evento, created_at
		FROM eventos_significativos WHERE codigo_recepcion_evento = $1`
	var e entity.EventoSignificativo
	err := r.q.QueryRow(ctx, query, codigo).Scan(
		&e.ID, &e.CodigoMotivo, &e.Descripcion, &e.Sucursal, &e.PuntoVenta,
		&e.CufdEvento, &e.FechaInicio, &e.FechaFin, &e.CodigoRecepcionEvento, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get evento: %w", err)
	}
	return &e, nil
}
