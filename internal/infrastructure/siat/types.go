// Package siat implementa el transporte SOAP hacia los servicios web del
// SIN/SIAT y el armado de payloads de factura. Las respuestas del SIAT son
// laxas y cambian entre revisiones de esquema; por eso la extracción de
// campos se hace sobre el DOM (etree) buscando por nombre de elemento, no
// con structs rígidos por operación.
package siat

import (
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
)

// Nombres de servicio del SIAT consumidos por la integración.
const (
	ServicioCodigos         = "FacturacionCodigos"
	ServicioSincronizacion  = "FacturacionSincronizacion"
	ServicioRecepcion       = "ServicioFacturacionElectronica"
	ServicioRecepcionCompV2 = "ServicioFacturacion" // revisión anterior del esquema
	ServicioOperaciones     = "FacturacionOperaciones"
)

// Operaciones remotas.
const (
	OpCuis                   = "cuis"
	OpCufd                   = "cufd"
	OpSincronizarActividades = "sincronizarActividades"
	OpSincronizarLeyendas    = "sincronizarListaLeyendasFactura"
	OpRecepcionFactura       = "recepcionFactura"
	OpRecepcionPaquete       = "recepcionPaqueteFactura"
	OpVerificacionEstado     = "verificacionEstadoFactura"
	OpAnulacionFactura       = "anulacionFactura"
	OpRegistroEvento         = "registroEventoSignificativo"
	OpRegistrarEvento        = "registrarEventoSignificativo" // variante de esquema
	OpValidacionPaquete      = "validacionRecepcionPaqueteFactura"
)

// Candidato un par (servicio, wrapper) a intentar en orden. Las revisiones
// del SIAT han renombrado tanto servicios como elementos de solicitud; la
// lista ordenada reemplaza cualquier reflexión o herencia.
type Candidato struct {
	Servicio string
	Wrapper  string
}

// Respuesta resultado genérico de una llamada al SIAT. Los campos que la
// operación no devuelve quedan en su valor cero; CodigoEstado distingue
// explícitamente "ausente" (nil) de cualquier valor numérico.
type Respuesta struct {
	Codigo                string // <codigo> (CUIS/CUFD)
	CodigoControl         string
	Direccion             string
	FechaVigencia         *time.Time
	CodigoEstado          *int
	CodigoRecepcion       string
	CodigoRecepcionEvento int64
	Descripcion           string
	Transaccion           bool
	Mensajes              []domsiat.Mensaje
	Crudo                 []byte // cuerpo SOAP completo, para auditoría/diagnóstico
}

// ParametricaItem una entrada de un catálogo sincronizado
// (actividades económicas, leyendas, métodos de pago).
type ParametricaItem struct {
	Codigo      string
	Descripcion string
}

// extraerRespuesta localiza el elemento de respuesta dentro del Body SOAP.
// Busca primero los contenedores conocidos; si ninguno aparece, toma el
// primer nieto del Body (wrapper de respuesta → contenedor).
func extraerRespuesta(doc *etree.Document) *etree.Element {
	conocidos := []string{
		"RespuestaCuis",
		"RespuestaCufd",
		"RespuestaServicioFacturacion",
		"RespuestaRecepcion",
		"RespuestaListaActividades",
		"RespuestaListaParametricasLeyendas",
	}
	for _, tag := range conocidos {
		if el := buscarPorTag(doc.Root(), tag); el != nil {
			return el
		}
	}
	body := buscarPorTag(doc.Root(), "Body")
	if body == nil {
		return nil
	}
	for _, wrapper := range body.ChildElements() {
		if hijos := wrapper.ChildElements(); len(hijos) > 0 {
			return hijos[0]
		}
		return wrapper
	}
	return nil
}

// buscarPorTag búsqueda en profundidad por nombre local de elemento,
// ignorando prefijos de namespace.
func buscarPorTag(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == tag {
		return el
	}
	for _, hijo := range el.ChildElements() {
		if found := buscarPorTag(hijo, tag); found != nil {
			return found
		}
	}
	return nil
}

// parsearRespuesta transforma el elemento de respuesta en una Respuesta.
func parsearRespuesta(el *etree.Element, crudo []byte) *Respuesta {
	r := &Respuesta{Crudo: crudo}
	if el == nil {
		return r
	}

	r.Codigo = textoHijo(el, "codigo")
	r.CodigoControl = textoHijo(el, "codigoControl")
	r.Direccion = textoHijo(el, "direccion")
	r.CodigoRecepcion = textoHijo(el, "codigoRecepcion")
	r.Descripcion = textoHijo(el, "codigoDescripcion")
	if r.Descripcion == "" {
		r.Descripcion = textoHijo(el, "descripcion")
	}
	r.Transaccion = strings.EqualFold(textoHijo(el, "transaccion"), "true")

	if s := textoHijo(el, "codigoEstado"); s != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			r.CodigoEstado = &v
		}
	}
	if s := textoHijo(el, "codigoRecepcionEventoSignificativo"); s != "" {
		r.CodigoRecepcionEvento, _ = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	} else if s := textoHijo(el, "codigoRecepcionEvento"); s != "" {
		r.CodigoRecepcionEvento, _ = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	if s := textoHijo(el, "fechaVigencia"); s != "" {
		if t, ok := parsearFechaSIAT(s); ok {
			r.FechaVigencia = &t
		}
	}

	for _, m := range buscarTodosPorTag(el, "mensajesList") {
		msg := domsiat.Mensaje{Descripcion: textoHijo(m, "descripcion")}
		if c := textoHijo(m, "codigo"); c != "" {
			msg.Codigo, _ = strconv.Atoi(strings.TrimSpace(c))
		}
		if msg.Codigo != 0 || msg.Descripcion != "" {
			r.Mensajes = append(r.Mensajes, msg)
		}
	}
	return r
}

// parsearParametricas extrae los pares código/descripción de una respuesta
// de sincronización de catálogos.
func parsearParametricas(el *etree.Element) []ParametricaItem {
	var items []ParametricaItem
	for _, hijo := range buscarTodosPorTag(el, "listaCodigos") {
		it := ParametricaItem{
			Codigo:      textoHijo(hijo, "codigoClasificador"),
			Descripcion: textoHijo(hijo, "descripcion"),
		}
		if it.Codigo != "" || it.Descripcion != "" {
			items = append(items, it)
		}
	}
	// Revisiones anteriores usan listaActividades / listaLeyendas.
	if len(items) == 0 {
		for _, tag := range []string{"listaActividades", "listaLeyendas"} {
			for _, hijo := range buscarTodosPorTag(el, tag) {
				it := ParametricaItem{
					Codigo:      textoHijo(hijo, "codigoCaeb"),
					Descripcion: textoHijo(hijo, "descripcion"),
				}
				if it.Codigo == "" {
					it.Codigo = textoHijo(hijo, "codigoClasificador")
				}
				if it.Descripcion == "" {
					it.Descripcion = textoHijo(hijo, "descripcionLeyenda")
				}
				if it.Codigo != "" || it.Descripcion != "" {
					items = append(items, it)
				}
			}
		}
	}
	return items
}

func textoHijo(el *etree.Element, tag string) string {
	for _, hijo := range el.ChildElements() {
		if hijo.Tag == tag {
			return strings.TrimSpace(hijo.Text())
		}
	}
	// un nivel más abajo, por wrappers intermedios de algunas revisiones
	for _, hijo := range el.ChildElements() {
		for _, nieto := range hijo.ChildElements() {
			if nieto.Tag == tag {
				return strings.TrimSpace(nieto.Text())
			}
		}
	}
	return ""
}

func buscarTodosPorTag(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if e.Tag == tag {
			out = append(out, e)
			return
		}
		for _, hijo := range e.ChildElements() {
			walk(hijo)
		}
	}
	if el != nil {
		walk(el)
	}
	return out
}

// parsearFechaSIAT tolera los formatos de fecha que el SIAT ha usado:
// RFC3339 con zona, fecha-hora con milisegundos sin zona, y epoch millis.
func parsearFechaSIAT(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	formatos := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000-07:00",
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
	}
	for _, f := range formatos {
		if t, err := time.Parse(f, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}
