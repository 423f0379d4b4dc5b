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
	"github.com/ubolivar/facturacion-siat/internal/domain/siat"
)

var _ repository.FacturaRepository = (*FacturaRepo)(nil)

// FacturaRepo implementación de FacturaRepository sobre PostgreSQL (usable con pool o tx).
type FacturaRepo struct {
	q Querier
}

// NewFacturaRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFacturaRepository(q Querier) *FacturaRepo {
	return &FacturaRepo{q: q}
}

const columnasFactura = `
	id, numero_factura, cuf, cufd, sucursal, punto_venta, tipo_emision,
	codigo_evento, cafc, nit_comprador, razon_social, nombre_estudiante,
	periodo_academico, subtotal, descuento, monto_total, codigo_moneda,
	tipo_cambio, metodo_pago, fecha_emision, estado, codigo_estado,
	mensajes, xml_firmado, created_at, updated_at`

// Create persiste la cabecera de la factura.
func (r *FacturaRepo) Create(ctx context.Context, f *entity.Factura) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	query := `
		INSERT INTO facturas (` + columnasFactura + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`
	_, err := r.q.Exec(ctx, query,
		f.ID, f.NumeroFactura, f.CUF, f.CUFD, f.Sucursal, f.PuntoVenta, f.TipoEmision,
		f.CodigoEvento, nullIfEmpty(f.CAFC), f.NITComprador, f.RazonSocial, f.NombreEstudiante,
		f.PeriodoAcademico, f.Subtotal, f.Descuento, f.MontoTotal, f.CodigoMoneda,
		f.TipoCambio, f.MetodoPago, f.FechaEmision, string(f.Estado), f.CodigoEstado,
		nullIfEmpty(f.Mensajes), nullIfEmpty(f.XMLFirmado), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cuf ya registrado: %w", err)
		}
		return fmt.Errorf("insert factura: %w", err)
	}
	return nil
}

// CreateDetalle persiste una línea de detalle.
func (r *FacturaRepo) CreateDetalle(ctx context.Context, d *entity.DetalleFactura) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	query := `
		INSERT INTO factura_detalles (id, factura_id, actividad_economica, codigo_producto,
		                              descripcion, cantidad, precio_unitario, monto_descuento, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		d.ID, d.FacturaID, d.ActividadEconomica, d.CodigoProducto,
		d.Descripcion, d.Cantidad, d.PrecioUnitario, d.MontoDescuento, d.Subtotal,
	)
	if err != nil {
		return fmt.Errorf("insert detalle factura: %w", err)
	}
	return nil
}

// GetByCUF obtiene una factura por su CUF. Devuelve nil si no existe.
func (r *FacturaRepo) GetByCUF(ctx context.Context, cuf string) (*entity.Factura, error) {
	query := `SELECT ` + columnasFactura + ` FROM facturas WHERE cuf = $1`
	f, err := scanFactura(r.q.QueryRow(ctx, query, cuf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get factura: %w", err)
	}
	return f, nil
}

// GetDetalles obtiene todas las líneas de una factura.
func (r *FacturaRepo) GetDetalles(ctx context.Context, facturaID string) ([]*entity.DetalleFactura, error) {
	query := `
		SELECT id, factura_id, actividad_economica, codigo_producto,
		       descripcion, cantidad, precio_unitario, monto_descuento, subtotal
		FROM factura_detalles WHERE factura_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, facturaID)
	if err != nil {
		return nil, fmt.Errorf("list detalles: %w", err)
	}
	defer rows.Close()
	var list []*entity.DetalleFactura
	for rows.Next() {
		var d entity.DetalleFactura
		if err := rows.Scan(&d.ID, &d.FacturaID, &d.ActividadEconomica, &d.CodigoProducto,
			&d.Descripcion, &d.Cantidad, &d.PrecioUnitario, &d.MontoDescuento, &d.Subtotal); err != nil {
			return nil, fmt.Errorf("scan detalle: %w", err)
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}

// ActualizarEstado persiste una transición de estado de la factura.
func (r *FacturaRepo) ActualizarEstado(ctx context.Context, cuf string, estado siat.Estado, codigoEstado *int, mensajes string) error {
	query := `
		UPDATE facturas
		SET estado        = $2,
		    codigo_estado = COALESCE($3, codigo_estado),
		    mensajes      = COALESCE($4, mensajes),
		    updated_at    = $5
		WHERE cuf = $1`
	tag, err := r.q.Exec(ctx, query, cuf, string(estado), codigoEstado, nullIfEmpty(mensajes), time.Now())
	if err != nil {
		return fmt.Errorf("actualizar estado factura: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("actualizar estado factura: cuf %s no existe", cuf)
	}
	return nil
}

// PendientesContingencia lista facturas emitidas fuera de línea que todavía
// no fueron aceptadas ni anuladas, en orden de emisión.
func (r *FacturaRepo) PendientesContingencia(ctx context.Context, sucursal, puntoVenta int) ([]*entity.Factura, error) {
	query := `SELECT ` + columnasFactura + `
		FROM facturas
		WHERE sucursal = $1 AND punto_venta = $2 AND tipo_emision = 2
		  AND estado NOT IN ($3, $4)
		ORDER BY fecha_emision, numero_factura`
	rows, err := r.q.Query(ctx, query, sucursal, puntoVenta,
		string(siat.EstadoAceptada), string(siat.EstadoAnulada))
	if err != nil {
		return nil, fmt.Errorf("list pendientes contingencia: %w", err)
	}
	defer rows.Close()
	var list []*entity.Factura
	for rows.Next() {
		f, err := scanFactura(rows)
		if err != nil {
			return nil, fmt.Errorf("scan factura: %w", err)
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

// SiguienteNumero reserva el siguiente número de factura del punto de venta.
// El contador vive en una fila por (sucursal, puntoVenta); el UPSERT hace la
// reserva atómica aun con emisiones concurrentes.
func (r *FacturaRepo) SiguienteNumero(ctx context.Context, sucursal, puntoVenta int) (int64, error) {
	query := `
		INSERT INTO numeracion_facturas (sucursal, punto_venta, ultimo_numero)
		VALUES ($1, $2, 1)
		ON CONFLICT (sucursal, punto_venta)
		DO UPDATE SET ultimo_numero = numeracion_facturas.ultimo_numero + 1
		RETURNING ultimo_numero`
	var numero int64
	if err := r.q.QueryRow(ctx, query, sucursal, puntoVenta).Scan(&numero); err != nil {
		return 0, fmt.Errorf("reservar numero de factura: %w", err)
	}
	return numero, nil
}

// scanFactura lee una fila con las columnas de columnasFactura, en su orden.
func scanFactura(row pgx.Row) (*entity.Factura, error) {
	var f entity.Factura
	var estado string
	var cafc, mensajes, xmlFirmado *string
	err := row.Scan(
		&f.ID, &f.NumeroFactura, &f.CUF, &f.CUFD, &f.Sucursal, &f.PuntoVenta, &f.TipoEmision,
		&f.CodigoEvento, &cafc, &f.NITComprador, &f.RazonSocial, &f.NombreEstudiante,
		&f.PeriodoAcademico, &f.Subtotal, &f.Descuento, &f.MontoTotal, &f.CodigoMoneda,
		&f.TipoCambio, &f.MetodoPago, &f.FechaEmision, &estado, &f.CodigoEstado,
		&mensajes, &xmlFirmado, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Estado = siat.Estado(estado)
	f.CAFC = derefStr(cafc)
	f.Mensajes = derefStr(mensajes)
	f.XMLFirmado = derefStr(xmlFirmado)
	return &f, nil
}
