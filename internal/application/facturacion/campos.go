package facturacion

import (
	"fmt"

	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	pkgsiat "github.com/ubolivar/facturacion-siat/pkg/siat"
)

// Los esquemas del SIAT serializan los campos de solicitud en orden
// alfabético estricto; cada operación arma aquí su lista literal completa
// para que el orden sea auditable de un vistazo.

func camposRecepcionFactura(cfg config.SIATConfig, cuis, cufd string, tipoEmision int, archivoB64, fechaEnvio, hash string) []infrasiat.Campo {
	return []infrasiat.Campo{
		{Nombre: "archivo", Valor: archivoB64},
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", cfg.Ambiente)},
		{Nombre: "codigoDocumentoSector", Valor: fmt.Sprintf("%d", cfg.CodigoDocSector)},
		{Nombre: "codigoEmision", Valor: fmt.Sprintf("%d", tipoEmision)},
		{Nombre: "codigoModalidad", Valor: fmt.Sprintf("%d", cfg.Modalidad)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", cfg.PuntoVenta)},
		{Nombre: "codigoSistema", Valor: cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", cfg.Sucursal)},
		{Nombre: "cufd", Valor: cufd},
		{Nombre: "cuis", Valor: cuis},
		{Nombre: "fechaEnvio", Valor: fechaEnvio},
		{Nombre: "hashArchivo", Valor: hash},
		{Nombre: "nitEmisor", Valor: fmt.Sprintf("%d", cfg.NIT)},
		{Nombre: "tipoFacturaDocumento", Valor: fmt.Sprintf("%d", cfg.TipoFactura)},
	}
}

func camposRecepcionPaquete(cfg config.SIATConfig, cuis, cufd, cafc string, codigoEvento int64, cantidad int, archivoB64, fechaEnvio, hash string) []infrasiat.Campo {
	campos := []infrasiat.Campo{
		{Nombre: "archivo", Valor: archivoB64},
	}
	if cafc != "" {
		campos = append(campos, infrasiat.Campo{Nombre: "cafc", Valor: cafc})
	}
	return append(campos,
		infrasiat.Campo{Nombre: "cantidadFacturas", Valor: fmt.Sprintf("%d", cantidad)},
		infrasiat.Campo{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", cfg.Ambiente)},
		infrasiat.Campo{Nombre: "codigoDocumentoSector", Valor: fmt.Sprintf("%d", cfg.CodigoDocSector)},
		infrasiat.Campo{Nombre: "codigoEmision", Valor: "2"},
		// codigoEvento va siempre: el esquema lo exige aunque no aplique (0).
		infrasiat.Campo{Nombre: "codigoEvento", Valor: fmt.Sprintf("%d", codigoEvento)},
		infrasiat.Campo{Nombre: "codigoModalidad", Valor: fmt.Sprintf("%d", cfg.Modalidad)},
		infrasiat.Campo{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", cfg.PuntoVenta)},
		infrasiat.Campo{Nombre: "codigoSistema", Valor: cfg.CodigoSistema},
		infrasiat.Campo{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", cfg.Sucursal)},
		infrasiat.Campo{Nombre: "cufd", Valor: cufd},
		infrasiat.Campo{Nombre: "cuis", Valor: cuis},
		infrasiat.Campo{Nombre: "fechaEnvio", Valor: fechaEnvio},
		infrasiat.Campo{Nombre: "hashArchivo", Valor: hash},
		infrasiat.Campo{Nombre: "nitEmisor", Valor: fmt.Sprintf("%d", cfg.NIT)},
		infrasiat.Campo{Nombre: "tipoFacturaDocumento", Valor: fmt.Sprintf("%d", cfg.TipoFactura)},
	)
}

func camposVerificacion(cfg config.SIATConfig, cuis, cufd, cuf string) []infrasiat.Campo {
	return []infrasiat.Campo{
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", cfg.Ambiente)},
		{Nombre: "codigoDocumentoSector", Valor: fmt.Sprintf("%d", cfg.CodigoDocSector)},
		{Nombre: "codigoEmision", Valor: fmt.Sprintf("%d", cfg.TipoEmision)},
		{Nombre: "codigoModalidad", Valor: fmt.Sprintf("%d", cfg.Modalidad)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", cfg.PuntoVenta)},
		{Nombre: "codigoSistema", Valor: cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", cfg.Sucursal)},
		{Nombre: "cuf", Valor: cuf},
		{Nombre: "cufd", Valor: cufd},
		{Nombre: "cuis", Valor: cuis},
		{Nombre: "nitEmisor", Valor: fmt.Sprintf("%d", cfg.NIT)},
		{Nombre: "tipoFacturaDocumento", Valor: fmt.Sprintf("%d", cfg.TipoFactura)},
	}
}

func camposAnulacion(cfg config.SIATConfig, cuis, cufd, cuf string, motivo int) []infrasiat.Campo {
	return []infrasiat.Campo{
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", cfg.Ambiente)},
		{Nombre: "codigoDocumentoSector", Valor: fmt.Sprintf("%d", cfg.CodigoDocSector)},
		{Nombre: "codigoEmision", Valor: fmt.Sprintf("%d", cfg.TipoEmision)},
		{Nombre: "codigoModalidad", Valor: fmt.Sprintf("%d", cfg.Modalidad)},
		{Nombre: "codigoMotivo", Valor: fmt.Sprintf("%d", motivo)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", cfg.PuntoVenta)},
		{Nombre: "codigoSistema", Valor: cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", cfg.Sucursal)},
		{Nombre: "cuf", Valor: cuf},
		{Nombre: "cufd", Valor: cufd},
		{Nombre: "cuis", Valor: cuis},
		{Nombre: "nitEmisor", Valor: fmt.Sprintf("%d", cfg.NIT)},
		{Nombre: "tipoFacturaDocumento", Valor: fmt.Sprintf("%d", cfg.TipoFactura)},
	}
}

func camposValidacionPaquete(cfg config.SIATConfig, cuis, cufd, codigoRecepcion string) []infrasiat.Campo {
	return []infrasiat.Campo{
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", cfg.Ambiente)},
		{Nombre: "codigoDocumentoSector", Valor: fmt.Sprintf("%d", cfg.CodigoDocSector)},
		{Nombre: "codigoEmision", Valor: "2"},
		{Nombre: "codigoModalidad", Valor: fmt.Sprintf("%d", cfg.Modalidad)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", cfg.PuntoVenta)},
		{Nombre: "codigoRecepcion", Valor: codigoRecepcion},
		{Nombre: "codigoSistema", Valor: cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", cfg.Sucursal)},
		{Nombre: "cufd", Valor: cufd},
		{Nombre: "cuis", Valor: cuis},
		{Nombre: "nitEmisor", Valor: fmt.Sprintf("%d", cfg.NIT)},
		{Nombre: "tipoFacturaDocumento", Valor: fmt.Sprintf("%d", cfg.TipoFactura)},
	}
}

func camposEvento(cfg config.SIATConfig, cuis, cufd, cufdEvento string, motivo int, descripcion string, inicio, fin string) []infrasiat.Campo {
	return []infrasiat.Campo{
		{Nombre: "codigoAmbiente", Valor: fmt.Sprintf("%d", cfg.Ambiente)},
		{Nombre: "codigoMotivoEvento", Valor: fmt.Sprintf("%d", motivo)},
		{Nombre: "codigoPuntoVenta", Valor: fmt.Sprintf("%d", cfg.PuntoVenta)},
		{Nombre: "codigoSistema", Valor: cfg.CodigoSistema},
		{Nombre: "codigoSucursal", Valor: fmt.Sprintf("%d", cfg.Sucursal)},
		{Nombre: "cufd", Valor: cufd},
		{Nombre: "cufdEvento", Valor: cufdEvento},
		{Nombre: "cuis", Valor: cuis},
		{Nombre: "descripcion", Valor: descripcion},
		{Nombre: "fechaHoraFinEvento", Valor: fin},
		{Nombre: "fechaHoraInicioEvento", Valor: inicio},
		{Nombre: "nit", Valor: fmt.Sprintf("%d", cfg.NIT)},
	}
}

// clasificarRespuesta separa los tres desenlaces de una operación de
// recepción, sin mezclarlos:
//
//   - código 995 (en codigoEstado o en la lista de mensajes): servicio no
//     disponible, condición transitoria que deriva a contingencia;
//   - codigoEstado ausente: violación de contrato, fatal y sin reintento;
//   - cualquier otro caso: resultado normal, codigoEstado y mensajes pasan
//     al llamador tal cual.
func clasificarRespuesta(resp *infrasiat.Respuesta, operacion string) error {
	if noDisponible(resp) {
		return &domsiat.Falla{
			Tipo:     domsiat.FallaServicioNoDisponible,
			Mensaje:  "el SIN reporta servicio no disponible (995) en " + operacion,
			Mensajes: resp.Mensajes,
			Crudo:    string(resp.Crudo),
		}
	}
	if resp.CodigoEstado == nil {
		return &domsiat.Falla{
			Tipo:     domsiat.FallaViolacionContrato,
			Mensaje:  "respuesta de " + operacion + " sin codigoEstado",
			Mensajes: resp.Mensajes,
			Crudo:    string(resp.Crudo),
		}
	}
	return nil
}

func noDisponible(resp *infrasiat.Respuesta) bool {
	if resp.CodigoEstado != nil && *resp.CodigoEstado == pkgsiat.CodigoServicioNoDisponible {
		return true
	}
	for _, m := range resp.Mensajes {
		if m.Codigo == pkgsiat.CodigoServicioNoDisponible {
			return true
		}
	}
	return false
}

// resumenMensajes aplana la lista de mensajes del SIAT para persistirla.
func resumenMensajes(mensajes []domsiat.Mensaje) string {
	out := ""
	for i, m := range mensajes {
		if i > 0 {
			out += "; "
		}
		if m.Codigo != 0 {
			out += fmt.Sprintf("[%d] ", m.Codigo)
		}
		out += m.Descripcion
	}
	return out
}
