package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
)

var _ repository.AuditoriaRepository = (*AuditoriaRepo)(nil)

// AuditoriaRepo bitácora append-only de llamadas SOAP. Quien la usa trata el
// error como no fatal; aquí solo se reporta.
type AuditoriaRepo struct {
	q Querier
}

// NewAuditoriaRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAuditoriaRepository(q Querier) *AuditoriaRepo {
	return &AuditoriaRepo{q: q}
}

// Registrar inserta un registro de auditoría.
func (r *AuditoriaRepo) Registrar(ctx context.Context, a *entity.AuditoriaSoap) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO auditoria_soap (id, servicio, operacion, solicitud, respuesta, exito, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		a.ID, a.Servicio, a.Operacion, a.Solicitud, a.Respuesta, a.Exito, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert auditoria soap: %w", err)
	}
	return nil
}
