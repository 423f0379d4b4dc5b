// Package siat define el vocabulario de dominio de la integración con el
// SIN/SIAT: estados de factura, taxonomía de fallas y resultados
// estructurados que consumen los módulos externos del sistema académico.
package siat

import (
	"errors"
	"fmt"
)

// TipoFalla clasifica las fallas de la integración. Los llamadores deciden
// por tipo, no por texto del mensaje.
type TipoFalla int

const (
	// FallaProtocolo transporte, timeout o autenticación contra el SIAT.
	// Se reintenta sobre las variantes conocidas de servicio/wrapper.
	FallaProtocolo TipoFalla = iota + 1
	// FallaServicioNoDisponible código 995 del SIAT: condición transitoria,
	// el llamador debe derivar a contingencia. Nunca es un rechazo.
	FallaServicioNoDisponible
	// FallaViolacionContrato la respuesta no trae codigoEstado: el contrato
	// del servicio está roto. Fatal, sin reintentos, sin valores por defecto.
	FallaViolacionContrato
	// FallaRechazo el SIAT devolvió un estado definitivo de no-aceptación;
	// se expone con su lista de mensajes textual.
	FallaRechazo
	// FallaFirma certificado/llave ausente o verificación de firma fallida.
	// Corta la transmisión de la factura.
	FallaFirma
	// FallaPersistencia escritura local de transición de estado fallida.
	FallaPersistencia
	// FallaConfiguracion precondición de configuración incumplida (ej. TokenApi vacío).
	FallaConfiguracion
)

// String nombre legible del tipo de falla.
func (t TipoFalla) String() string {
	switch t {
	case FallaProtocolo:
		return "PROTOCOLO"
	case FallaServicioNoDisponible:
		return "SERVICIO_NO_DISPONIBLE"
	case FallaViolacionContrato:
		return "VIOLACION_CONTRATO"
	case FallaRechazo:
		return "RECHAZO"
	case FallaFirma:
		return "FIRMA"
	case FallaPersistencia:
		return "PERSISTENCIA"
	case FallaConfiguracion:
		return "CONFIGURACION"
	default:
		return "DESCONOCIDA"
	}
}

// Mensaje un mensaje codificado devuelto por el SIAT.
type Mensaje struct {
	Codigo      int
	Descripcion string
}

// Falla es el error estructurado de toda operación pública: tipo, mensaje
// legible y, cuando existe, el payload crudo de la autoridad para diagnóstico.
type Falla struct {
	Tipo     TipoFalla
	Mensaje  string
	Mensajes []Mensaje // mensajes textuales del SIAT, tal cual llegaron
	Crudo    string    // respuesta cruda (XML/JSON) si está disponible
	Origen   error
}

// Error implementa error.
func (f *Falla) Error() string {
	if f.Origen != nil {
		return fmt.Sprintf("siat [%s]: %s: %v", f.Tipo, f.Mensaje, f.Origen)
	}
	return fmt.Sprintf("siat [%s]: %s", f.Tipo, f.Mensaje)
}

// Unwrap expone la causa para errors.Is / errors.As.
func (f *Falla) Unwrap() error { return f.Origen }

// NuevaFalla construye una Falla del tipo dado.
func NuevaFalla(tipo TipoFalla, mensaje string, origen error) *Falla {
	return &Falla{Tipo: tipo, Mensaje: mensaje, Origen: origen}
}

// TipoDeFalla devuelve el tipo si err es (o envuelve) una Falla; 0 si no.
func TipoDeFalla(err error) TipoFalla {
	var f *Falla
	if errors.As(err, &f) {
		return f.Tipo
	}
	return 0
}

// EsServicioNoDisponible indica si err corresponde al sentinela 995.
func EsServicioNoDisponible(err error) bool {
	return TipoDeFalla(err) == FallaServicioNoDisponible
}

// EsViolacionContrato indica si la respuesta rompió el contrato del servicio.
func EsViolacionContrato(err error) bool {
	return TipoDeFalla(err) == FallaViolacionContrato
}
