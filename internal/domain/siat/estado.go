package siat

// Estado es el espejo local del estado que reporta el SIAT para una factura.
type Estado string

const (
	EstadoAceptada    Estado = "ACEPTADA"
	EstadoAnulada     Estado = "ANULADA"
	EstadoRechazada   Estado = "RECHAZADA"
	EstadoEnProceso   Estado = "EN_PROCESO"
	EstadoDesconocido Estado = "DESCONOCIDO"
)

// Estados locales previos a la respuesta de la autoridad.
const (
	EstadoGenerada Estado = "GENERADA"
	EstadoEnviada  Estado = "ENVIADA"
)

// estadoPorCodigo tabla exhaustiva de mapeo codigoEstado → Estado. Todo
// código no listado es RECHAZADA; la ausencia de código es DESCONOCIDO.
// Mantener como tabla, no como cadena de condicionales: es la referencia
// auditable del mapeo.
var estadoPorCodigo = map[int]Estado{
	690: EstadoAceptada,
	908: EstadoAnulada,
	691: EstadoAnulada,
	905: EstadoAnulada,
}

// MapearEstado traduce el codigoEstado del SIAT al estado local.
// codigo == nil (respuesta sin código) es DESCONOCIDO.
func MapearEstado(codigo *int) Estado {
	if codigo == nil {
		return EstadoDesconocido
	}
	if e, ok := estadoPorCodigo[*codigo]; ok {
		return e
	}
	return EstadoRechazada
}

// transiciones válidas del ciclo de vida local. EN_PROCESO puede revisitarse
// durante el sondeo; ACEPTADA→ANULADA es de una sola vía.
var transiciones = map[Estado][]Estado{
	EstadoGenerada:  {EstadoEnviada},
	EstadoEnviada:   {EstadoAceptada, EstadoRechazada, EstadoEnProceso},
	EstadoEnProceso: {EstadoAceptada, EstadoRechazada, EstadoEnProceso},
	EstadoAceptada:  {EstadoAnulada},
}

// TransicionValida indica si el paso desde→hacia respeta el ciclo de vida.
func TransicionValida(desde, hacia Estado) bool {
	for _, permitido := range transiciones[desde] {
		if permitido == hacia {
			return true
		}
	}
	return false
}

// ConsultaEstado una entrada de la bitácora de verificación de estado.
type ConsultaEstado struct {
	CodigoEstado *int
	Estado       Estado
	Descripcion  string
}
