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

var _ repository.CodigoRepository = (*CodigoRepo)(nil)

// CodigoRepo caché persistente de CUIS/CUFD sobre PostgreSQL. Las filas son
// append-only: cada renovación inserta, las consultas toman la vigente más
// reciente por alcance.
type CodigoRepo struct {
	q Querier
}

// NewCodigoRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCodigoRepository(q Querier) *CodigoRepo {
	return &CodigoRepo{q: q}
}

// CuisVigente devuelve el CUIS vigente más reciente del alcance, o nil.
func (r *CodigoRepo) CuisVigente(ctx context.Context, a entity.Alcance, ahora time.Time) (*entity.Cuis, error) {
	query := `
		SELECT id, ambiente, sucursal, punto_venta, codigo, fecha_vigencia, created_at
		FROM cuis
		WHERE ambiente = $1 AND sucursal = $2 AND punto_venta = $3 AND fecha_vigencia > $4
		ORDER BY fecha_vigencia DESC
		LIMIT 1`
	var c entity.Cuis
	err := r.q.QueryRow(ctx, query, a.Ambiente, a.Sucursal, a.PuntoVenta, ahora).Scan(
		&c.ID, &c.Ambiente, &c.Sucursal, &c.PuntoVenta, &c.Codigo, &c.FechaVigencia, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cuis vigente: %w", err)
	}
	return &c, nil
}

// GuardarCuis inserta un CUIS recién obtenido.
func (r *CodigoRepo) GuardarCuis(ctx context.Context, c *entity.Cuis) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO cuis (id, ambiente, sucursal, punto_venta, codigo, fecha_vigencia, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.Ambiente, c.Sucursal, c.PuntoVenta, c.Codigo, c.FechaVigencia, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cuis: %w", err)
	}
	return nil
}

// CufdVigente devuelve el CUFD vigente más reciente del alcance, o nil.
func (r *CodigoRepo) CufdVigente(ctx context.Context, a entity.Alcance, ahora time.Time) (*entity.Cufd, error) {
	query := `
		SELECT id, cuis_codigo, ambiente, sucursal, punto_venta, codigo,
		       codigo_control, direccion, fecha_vigencia, desfase_reloj_ms, created_at
		FROM cufd
		WHERE ambiente = $1 AND sucursal = $2 AND punto_venta = $3 AND fecha_vigencia > $4
		ORDER BY fecha_vigencia DESC
		LIMIT 1`
	var c entity.Cufd
	var desfaseMs int64
	err := r.q.QueryRow(ctx, query, a.Ambiente, a.Sucursal, a.PuntoVenta, ahora).Scan(
		&c.ID, &c.CuisCodigo, &c.Ambiente, &c.Sucursal, &c.PuntoVenta, &c.Codigo,
		&c.CodigoControl, &c.Direccion, &c.FechaVigencia, &desfaseMs, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cufd vigente: %w", err)
	}
	c.DesfaseReloj = time.Duration(desfaseMs) * time.Millisecond
	return &c, nil
}

// GuardarCufd inserta un CUFD recién obtenido.
func (r *CodigoRepo) GuardarCufd(ctx context.Context, c *entity.Cufd) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO cufd (id, cuis_codigo, ambiente, sucursal, punto_venta, codigo,
		                  codigo_control, direccion, fecha_vigencia, desfase_reloj_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.CuisCodigo, c.Ambiente, c.Sucursal, c.PuntoVenta, c.Codigo,
		c.CodigoControl, c.Direccion, c.FechaVigencia, c.DesfaseReloj.Milliseconds(), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cufd: %w", err)
	}
	return nil
}
