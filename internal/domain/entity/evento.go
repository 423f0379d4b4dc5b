package entity

import "time"

// EventoSignificativo registro de justificación de contingencia ante el SIN.
// El código de recepción que devuelve la autoridad legitima las facturas
// emitidas fuera de línea dentro de la ventana [FechaInicio, FechaFin].
type EventoSignificativo struct {
	ID                    string
	CodigoMotivo          int // catálogo 1–7
	Descripcion           string
	Sucursal              int
	PuntoVenta            int
	CufdEvento            string // CUFD vigente cuando ocurrió el evento
	FechaInicio           time.Time
	FechaFin              time.Time
	CodigoRecepcionEvento int64 // asignado por el SIN al registrar
	CreatedAt             time.Time
}

// PaqueteContingencia agrupa facturas pendientes de regularización que
// comparten exactamente un CUFD y un contexto de evento.
type PaqueteContingencia struct {
	Cufd            string
	CodigoEvento    int64
	Facturas        []*Factura
	CodigoRecepcion string // asignado por el SIN al enviar el paquete
}

// AuditoriaSoap registro append-only de una llamada al SIAT: petición y
// respuesta crudas. Es evidencia de auditoría; nunca condiciona el resultado
// de la operación primaria.
type AuditoriaSoap struct {
	ID        string
	Servicio  string
	Operacion string
	Solicitud string
	Respuesta string
	Exito     bool
	CreatedAt time.Time
}
