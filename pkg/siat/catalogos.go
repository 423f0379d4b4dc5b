// Package siat contiene catálogos y constantes alineados a las paramétricas
// del SIN/SIAT (Bolivia) usadas por la facturación del sector educativo.
package siat

// =============================================================================
// Ambientes y modalidades
// =============================================================================

const (
	AmbienteProduccion = 1
	AmbientePruebas    = 2

	ModalidadElectronica   = 1 // Facturación electrónica en línea
	ModalidadComputarizada = 2 // Facturación computarizada en línea

	TipoEmisionEnLinea      = 1
	TipoEmisionContingencia = 2

	TipoFacturaCreditoFiscal = 1

	DocSectorEducativo   = 11 // Factura comercial sector educativo
	DocSectorCompraVenta = 1
)

// =============================================================================
// Eventos significativos (justificación de contingencia)
// Catálogo oficial: códigos 1 a 7.
// =============================================================================

const (
	EventoCorteInternet           = 1 // Corte del servicio de Internet
	EventoInaccesibilidadSoftware = 2 // Inaccesibilidad al software de facturación
	EventoCorteEnergia            = 3 // Corte de suministro de energía eléctrica
	EventoVirusInformatico        = 4 // Virus informático o falla de software
	EventoFallaHardware           = 5 // Falla de hardware del sistema de facturación
	EventoInaccesibilidadSIN      = 6 // Inaccesibilidad a los servicios web del SIN
	EventoVentaEnLugarSinInternet = 7 // Venta en lugares sin conexión a Internet
)

// MotivoEventoValido indica si el código de motivo pertenece al catálogo 1–7.
func MotivoEventoValido(codigo int) bool {
	return codigo >= EventoCorteInternet && codigo <= EventoVentaEnLugarSinInternet
}

// DescripcionEvento descripciones oficiales por código de motivo.
var DescripcionEvento = map[int]string{
	EventoCorteInternet:           "CORTE DEL SERVICIO DE INTERNET",
	EventoInaccesibilidadSoftware: "INACCESIBILIDAD AL SOFTWARE DE FACTURACION",
	EventoCorteEnergia:            "CORTE DE SUMINISTRO DE ENERGIA ELECTRICA",
	EventoVirusInformatico:        "VIRUS INFORMATICO O FALLA DE SOFTWARE",
	EventoFallaHardware:           "FALLA DE HARDWARE DEL SISTEMA DE FACTURACION",
	EventoInaccesibilidadSIN:      "INACCESIBILIDAD AL SERVICIO WEB DEL SIN",
	EventoVentaEnLugarSinInternet: "VENTA EN LUGARES SIN CONEXION A INTERNET",
}

// =============================================================================
// Métodos de pago (paramétrica tipoMetodoPago) - códigos de uso frecuente
// =============================================================================

const (
	MetodoPagoEfectivo      = 1
	MetodoPagoTarjeta       = 2
	MetodoPagoCheque        = 3
	MetodoPagoTransferencia = 7
	MetodoPagoDeposito      = 8
)

// MetodoPagoPorDefecto se usa cuando la paramétrica no está sincronizada.
const MetodoPagoPorDefecto = MetodoPagoEfectivo

// =============================================================================
// Leyendas y actividades (valores por defecto cuando la paramétrica falta)
// =============================================================================

const (
	// LeyendaPorDefecto leyenda de la Ley 453 usada como respaldo.
	LeyendaPorDefecto = "Ley N° 453: Tienes derecho a recibir información sobre las características y contenidos de los servicios que utilices."
	// ActividadEconomicaPorDefecto código CAEB de enseñanza superior.
	ActividadEconomicaPorDefecto = "853000"
)

// =============================================================================
// Códigos de respuesta del SIAT referenciados por la lógica de recepción
// =============================================================================

const (
	CodigoRecibida             = 901 // Recepción pendiente de validación
	CodigoValidada             = 902 // Validada
	CodigoObservada            = 904 // Observada
	CodigoAnulacionConfirmada  = 905
	CodigoServicioNoDisponible = 995 // Sentinela: derivar a contingencia
)
