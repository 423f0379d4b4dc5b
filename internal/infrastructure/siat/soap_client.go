package siat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
)

const (
	nsSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	nsSiat    = "https://siat.impuestos.gob.bo/"

	maxCuerpoRespuesta = 4 << 20 // 4 MB
)

// Campo un campo de la solicitud SIAT. El orden de la lista es el orden de
// serialización: los esquemas del SIAT son sensibles al orden de elementos.
type Campo struct {
	Nombre string
	Valor  string
}

// Fabrica construye clientes autenticados por servicio remoto. Es el único
// punto por el que pasa todo el transporte hacia el SIAT.
type Fabrica struct {
	cfg        config.SIATConfig
	httpClient *http.Client
	log        *logger.Logger
	auditoria  repository.AuditoriaRepository // puede ser nil: auditoría deshabilitada
}

// NuevaFabrica crea la fábrica de clientes. El timeout de red es generoso:
// los servicios del SIAT pueden tardar varios segundos en responder.
func NuevaFabrica(cfg config.SIATConfig, log *logger.Logger, auditoria repository.AuditoriaRepository) *Fabrica {
	return &Fabrica{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
		auditoria:  auditoria,
	}
}

// Cliente construye un cliente para el servicio indicado. El TokenApi es una
// precondición dura: sin él no se construye ningún cliente y no hay reintento.
func (f *Fabrica) Cliente(servicio string) (*Cliente, error) {
	if f.cfg.TokenAPI == "" {
		return nil, domsiat.NuevaFalla(domsiat.FallaConfiguracion,
			"TokenApi no configurado: no se puede construir el cliente "+servicio, nil)
	}
	return &Cliente{
		servicio: servicio,
		url:      fmt.Sprintf("%s/%s", f.cfg.BaseURL, servicio),
		fabrica:  f,
	}, nil
}

// Cliente cliente SOAP de un servicio concreto del SIAT.
type Cliente struct {
	servicio string
	url      string
	fabrica  *Fabrica
}

// Llamar ejecuta una operación: refresca el WSDL (nunca se cachea: el SIAT
// revisa esquemas sin aviso), arma el envelope con el wrapper indicado,
// envía con la cabecera apikey y devuelve la respuesta genérica parseada.
func (c *Cliente) Llamar(ctx context.Context, operacion, wrapper string, campos []Campo) (*Respuesta, error) {
	f := c.fabrica
	if f.cfg.Offline {
		return nil, domsiat.NuevaFalla(domsiat.FallaServicioNoDisponible,
			"modo fuera de línea activo: "+operacion+" no se envía", nil)
	}

	if err := c.refrescarWSDL(ctx); err != nil {
		return nil, err
	}

	solicitud, err := c.armarEnvelope(operacion, wrapper, campos)
	if err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaProtocolo, "armar envelope "+operacion, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(solicitud))
	if err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaProtocolo, "crear request "+operacion, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")
	req.Header.Set("apikey", "TokenApi "+f.cfg.TokenAPI)

	f.log.Debug().
		Str("servicio", c.servicio).
		Str("operacion", operacion).
		Str("wrapper", wrapper).
		Msg("llamada SIAT")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		c.auditar(ctx, operacion, solicitud, nil, false)
		if ctx.Err() != nil {
			return nil, domsiat.NuevaFalla(domsiat.FallaProtocolo, "timeout o cancelación en "+operacion, ctx.Err())
		}
		return nil, domsiat.NuevaFalla(domsiat.FallaProtocolo, "llamada HTTP fallida en "+operacion, err)
	}
	defer resp.Body.Close()

	crudo, err := io.ReadAll(io.LimitReader(resp.Body, maxCuerpoRespuesta))
	if err != nil {
		c.auditar(ctx, operacion, solicitud, nil, false)
		return nil, domsiat.NuevaFalla(domsiat.FallaProtocolo, "leer respuesta de "+operacion, err)
	}
	c.auditar(ctx, operacion, solicitud, crudo, resp.StatusCode < 300)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domsiat.NuevaFalla(domsiat.FallaProtocolo,
			fmt.Sprintf("autenticación rechazada (%d) en %s", resp.StatusCode, operacion), nil)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(crudo); err != nil {
		return nil, &domsiat.Falla{
			Tipo:    domsiat.FallaProtocolo,
			Mensaje: "respuesta SOAP no parseable en " + operacion,
			Crudo:   string(crudo),
			Origen:  err,
		}
	}

	if fault := buscarPorTag(doc.Root(), "Fault"); fault != nil {
		return nil, &domsiat.Falla{
			Tipo:    domsiat.FallaProtocolo,
			Mensaje: fmt.Sprintf("SOAP Fault [%s] en %s: %s", textoHijo(fault, "faultcode"), operacion, textoHijo(fault, "faultstring")),
			Crudo:   string(crudo),
		}
	}

	return parsearRespuesta(extraerRespuesta(doc), crudo), nil
}

// Sincronizar ejecuta una operación de sincronización de paramétricas y
// devuelve los pares código/descripción del catálogo.
func (c *Cliente) Sincronizar(ctx context.Context, operacion, wrapper string, campos []Campo) ([]ParametricaItem, error) {
	resp, err := c.Llamar(ctx, operacion, wrapper, campos)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(resp.Crudo); err != nil {
		return nil, domsiat.NuevaFalla(domsiat.FallaProtocolo, "releer respuesta de "+operacion, err)
	}
	return parsearParametricas(extraerRespuesta(doc)), nil
}

// Sincronizar construye el cliente del servicio y ejecuta una operación de
// sincronización de paramétricas.
func (f *Fabrica) Sincronizar(ctx context.Context, servicio, operacion, wrapper string, campos []Campo) ([]ParametricaItem, error) {
	cliente, err := f.Cliente(servicio)
	if err != nil {
		return nil, err
	}
	return cliente.Sincronizar(ctx, operacion, wrapper, campos)
}

// LlamarConCandidatos intenta la lista ordenada de pares (servicio, wrapper)
// y se detiene en el primer éxito; si todos fallan devuelve el último error.
// Las fallas de configuración y de contrato no se reintentan sobre variantes.
func (f *Fabrica) LlamarConCandidatos(ctx context.Context, operacion string, candidatos []Candidato, campos []Campo) (*Respuesta, error) {
	if len(candidatos) == 0 {
		return nil, domsiat.NuevaFalla(domsiat.FallaConfiguracion, "sin candidatos para "+operacion, nil)
	}
	var ultimo error
	for _, cand := range candidatos {
		cliente, err := f.Cliente(cand.Servicio)
		if err != nil {
			return nil, err // precondición de configuración: no se reintenta
		}
		resp, err := cliente.Llamar(ctx, operacion, cand.Wrapper, campos)
		if err == nil {
			return resp, nil
		}
		switch domsiat.TipoDeFalla(err) {
		case domsiat.FallaViolacionContrato, domsiat.FallaServicioNoDisponible, domsiat.FallaConfiguracion:
			return nil, err
		}
		ultimo = err
		f.log.Warn().
			Str("servicio", cand.Servicio).
			Str("wrapper", cand.Wrapper).
			Str("operacion", operacion).
			Err(err).
			Msg("candidato SIAT fallido, probando siguiente variante")
	}
	return nil, ultimo
}

// refrescarWSDL descarga el WSDL del servicio antes de cada llamada. No se
// cachea: la autoridad publica revisiones de esquema sin aviso y un WSDL
// viejo produce rechazos silenciosos.
func (c *Cliente) refrescarWSDL(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?wsdl", nil)
	if err != nil {
		return domsiat.NuevaFalla(domsiat.FallaProtocolo, "crear request WSDL "+c.servicio, err)
	}
	req.Header.Set("apikey", "TokenApi "+c.fabrica.cfg.TokenAPI)

	resp, err := c.fabrica.httpClient.Do(req)
	if err != nil {
		return domsiat.NuevaFalla(domsiat.FallaProtocolo, "obtener WSDL de "+c.servicio, err)
	}
	defer resp.Body.Close()
	// Se descarta el contenido: el fetch valida disponibilidad y autenticación.
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxCuerpoRespuesta)); err != nil {
		return domsiat.NuevaFalla(domsiat.FallaProtocolo, "leer WSDL de "+c.servicio, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domsiat.NuevaFalla(domsiat.FallaProtocolo,
			fmt.Sprintf("WSDL de %s devolvió %d", c.servicio, resp.StatusCode), nil)
	}
	return nil
}

// armarEnvelope serializa el envelope SOAP 1.1 con la operación y el wrapper
// de solicitud indicados, en el orden exacto de los campos.
func (c *Cliente) armarEnvelope(operacion, wrapper string, campos []Campo) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", nsSoapEnv)
	env.CreateAttr("xmlns:siat", nsSiat)
	env.CreateElement("soapenv:Header")
	body := env.CreateElement("soapenv:Body")

	op := body.CreateElement("siat:" + operacion)
	sol := op
	if wrapper != "" {
		sol = op.CreateElement(wrapper)
	}
	for _, campo := range campos {
		sol.CreateElement(campo.Nombre).SetText(campo.Valor)
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// auditar persiste la petición/respuesta cruda. Best-effort: un fallo aquí
// se registra en el log y jamás altera el resultado de la llamada.
func (c *Cliente) auditar(ctx context.Context, operacion string, solicitud, respuesta []byte, exito bool) {
	f := c.fabrica
	if f.auditoria == nil {
		return
	}
	registro := &entity.AuditoriaSoap{
		ID:        uuid.New().String(),
		Servicio:  c.servicio,
		Operacion: operacion,
		Solicitud: string(solicitud),
		Respuesta: string(respuesta),
		Exito:     exito,
		CreatedAt: time.Now(),
	}
	if err := f.auditoria.Registrar(ctx, registro); err != nil {
		f.log.Warn().Err(err).
			Str("operacion", operacion).
			Msg("no se pudo persistir la auditoría SOAP")
	}
}
