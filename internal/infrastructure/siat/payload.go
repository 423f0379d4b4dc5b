package siat

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
	"unicode"

	"github.com/beevik/etree"
	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
	pkgsiat "github.com/ubolivar/facturacion-siat/pkg/siat"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Payload cuerpo de factura listo para transmitir: el documento plano, su
// versión comprimida (gzip) en base64 y el hash SHA-256 de los bytes
// comprimidos, que es lo que el SIAT verifica.
type Payload struct {
	Cuerpo     []byte // XML o JSON plano
	Formato    string // "xml" | "json"
	Comprimido []byte
	Base64     string
	HashSHA256 string
	FechaEnvio time.Time
}

// Catalogo catálogos sincronizados desde las paramétricas del SIAT. Cuando
// una entrada falta, el constructor usa el valor por defecto documentado y
// lo registra como señal de calidad de datos.
type Catalogo struct {
	MetodosPago map[int]string    // código → descripción
	Leyendas    []string          // leyendas vigentes
	Actividades map[string]string // código CAEB → descripción
}

// ConstructorPayload arma los cuerpos de recepcionFactura según
// (modalidad, sector documento).
type ConstructorPayload struct {
	cfg      config.SIATConfig
	log      *logger.Logger
	catalogo *Catalogo
}

// NuevoConstructorPayload crea el constructor. catalogo puede ser nil: todas
// las búsquedas caerán a los valores por defecto (y quedarán registradas).
func NuevoConstructorPayload(cfg config.SIATConfig, log *logger.Logger, catalogo *Catalogo) *ConstructorPayload {
	return &ConstructorPayload{cfg: cfg, log: log, catalogo: catalogo}
}

// ActualizarCatalogo reemplaza los catálogos tras una sincronización de paramétricas.
func (b *ConstructorPayload) ActualizarCatalogo(c *Catalogo) {
	b.catalogo = c
}

// BuildRecepcionFactura construye el cuerpo de la factura. Sector educativo
// o modalidad en línea producen el XML de orden fijo
// facturaComputarizadaSectorEducativo; los sectores de comercio bajo
// modalidad por lotes producen la estructura JSON cabecera/detalle.
// desfaseReloj es el reportado por el CUFD vigente: fechaEnvio debe quedar
// dentro de la tolerancia de ±5 minutos del reloj de la autoridad.
func (b *ConstructorPayload) BuildRecepcionFactura(
	f *entity.Factura,
	detalles []*entity.DetalleFactura,
	desfaseReloj time.Duration,
) (*Payload, error) {
	if f == nil {
		return nil, fmt.Errorf("payload: factura nula")
	}
	if len(detalles) == 0 {
		return nil, fmt.Errorf("payload: la factura debe tener al menos un detalle")
	}

	fechaEnvio := time.Now().Add(desfaseReloj)

	var cuerpo []byte
	var formato string
	var err error

	educativo := b.cfg.CodigoDocSector == pkgsiat.DocSectorEducativo
	enLinea := b.cfg.Modalidad == pkgsiat.ModalidadElectronica
	if educativo || enLinea {
		cuerpo, err = b.armarXMLEducativo(f, detalles)
		formato = "xml"
	} else {
		cuerpo, err = b.armarJSONComercio(f, detalles)
		formato = "json"
	}
	if err != nil {
		return nil, err
	}

	comprimido, err := Comprimir(cuerpo)
	if err != nil {
		return nil, fmt.Errorf("payload: comprimir cuerpo: %w", err)
	}
	hash := sha256.Sum256(comprimido)

	return &Payload{
		Cuerpo:     cuerpo,
		Formato:    formato,
		Comprimido: comprimido,
		Base64:     base64.StdEncoding.EncodeToString(comprimido),
		HashSHA256: hex.EncodeToString(hash[:]),
		FechaEnvio: fechaEnvio,
	}, nil
}

// armarXMLEducativo genera el XML de orden fijo del sector educativo.
// El orden de los elementos es el del esquema: reordenarlos produce rechazo.
func (b *ConstructorPayload) armarXMLEducativo(f *entity.Factura, detalles []*entity.DetalleFactura) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	raiz := doc.CreateElement("facturaComputarizadaSectorEducativo")
	cab := raiz.CreateElement("cabecera")

	pon := func(padre *etree.Element, nombre, valor string) {
		el := padre.CreateElement(nombre)
		if valor == "" {
			el.CreateAttr("xsi:nil", "true")
			return
		}
		el.SetText(valor)
	}
	raiz.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")

	pon(cab, "nitEmisor", fmt.Sprintf("%d", b.cfg.NIT))
	pon(cab, "numeroFactura", fmt.Sprintf("%d", f.NumeroFactura))
	pon(cab, "cuf", f.CUF)
	pon(cab, "cufd", f.CUFD)
	pon(cab, "codigoSucursal", fmt.Sprintf("%d", f.Sucursal))
	pon(cab, "codigoPuntoVenta", fmt.Sprintf("%d", f.PuntoVenta))
	pon(cab, "fechaEmision", f.FechaEmision.Format("2006-01-02T15:04:05.000"))
	pon(cab, "nombreRazonSocial", NormalizarTexto(f.RazonSocial))
	pon(cab, "numeroDocumento", f.NITComprador)
	pon(cab, "nombreEstudiante", NormalizarTexto(f.NombreEstudiante))
	pon(cab, "periodoFacturado", NormalizarTexto(f.PeriodoAcademico))
	pon(cab, "codigoMetodoPago", fmt.Sprintf("%d", b.metodoPago(f)))
	pon(cab, "montoTotal", f.MontoTotal.Round(2).StringFixed(2))
	pon(cab, "montoTotalSujetoIva", f.MontoTotal.Round(2).StringFixed(2))
	pon(cab, "codigoMoneda", fmt.Sprintf("%d", f.CodigoMoneda))
	pon(cab, "tipoCambio", f.TipoCambio.Round(2).StringFixed(2))
	pon(cab, "montoTotalMoneda", f.MontoTotal.Round(2).StringFixed(2))
	pon(cab, "descuentoAdicional", f.Descuento.Round(2).StringFixed(2))
	if f.EnContingencia() {
		pon(cab, "cafc", f.CAFC)
	} else {
		pon(cab, "cafc", "")
	}
	pon(cab, "leyenda", b.leyenda())
	pon(cab, "usuario", "sistema-academico")
	pon(cab, "codigoDocumentoSector", fmt.Sprintf("%d", b.cfg.CodigoDocSector))

	for _, d := range detalles {
		det := raiz.CreateElement("detalle")
		pon(det, "actividadEconomica", b.actividad(d))
		pon(det, "codigoProductoSin", d.CodigoProducto)
		pon(det, "codigoProducto", d.CodigoProducto)
		pon(det, "descripcion", NormalizarTexto(d.Descripcion))
		pon(det, "cantidad", d.Cantidad.Round(2).StringFixed(2))
		pon(det, "unidadMedida", "58") // servicio
		pon(det, "precioUnitario", d.PrecioUnitario.Round(2).StringFixed(2))
		pon(det, "montoDescuento", d.MontoDescuento.Round(2).StringFixed(2))
		pon(det, "subTotal", d.Subtotal.Round(2).StringFixed(2))
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("payload: serializar XML educativo: %w", err)
	}
	return buf.Bytes(), nil
}

// armarJSONComercio genera la estructura cabecera/detalle JSON del sector
// comercial (modalidad por lotes).
func (b *ConstructorPayload) armarJSONComercio(f *entity.Factura, detalles []*entity.DetalleFactura) ([]byte, error) {
	type detalleJSON struct {
		ActividadEconomica string `json:"actividadEconomica"`
		CodigoProducto     string `json:"codigoProducto"`
		Descripcion        string `json:"descripcion"`
		Cantidad           string `json:"cantidad"`
		PrecioUnitario     string `json:"precioUnitario"`
		MontoDescuento     string `json:"montoDescuento"`
		SubTotal           string `json:"subTotal"`
	}
	type cabeceraJSON struct {
		NITEmisor          int64  `json:"nitEmisor"`
		NumeroFactura      int64  `json:"numeroFactura"`
		CUF                string `json:"cuf"`
		CUFD               string `json:"cufd"`
		CodigoSucursal     int    `json:"codigoSucursal"`
		CodigoPuntoVenta   int    `json:"codigoPuntoVenta"`
		FechaEmision       string `json:"fechaEmision"`
		NombreRazonSocial  string `json:"nombreRazonSocial"`
		NumeroDocumento    string `json:"numeroDocumento"`
		CodigoMetodoPago   int    `json:"codigoMetodoPago"`
		MontoTotal         string `json:"montoTotal"`
		DescuentoAdicional string `json:"descuentoAdicional"`
		Leyenda            string `json:"leyenda"`
	}

	cab := cabeceraJSON{
		NITEmisor:          b.cfg.NIT,
		NumeroFactura:      f.NumeroFactura,
		CUF:                f.CUF,
		CUFD:               f.CUFD,
		CodigoSucursal:     f.Sucursal,
		CodigoPuntoVenta:   f.PuntoVenta,
		FechaEmision:       f.FechaEmision.Format("2006-01-02T15:04:05.000"),
		NombreRazonSocial:  NormalizarTexto(f.RazonSocial),
		NumeroDocumento:    f.NITComprador,
		CodigoMetodoPago:   b.metodoPago(f),
		MontoTotal:         f.MontoTotal.Round(2).StringFixed(2),
		DescuentoAdicional: f.Descuento.Round(2).StringFixed(2),
		Leyenda:            b.leyenda(),
	}

	dets := make([]detalleJSON, 0, len(detalles))
	for _, d := range detalles {
		dets = append(dets, detalleJSON{
			ActividadEconomica: b.actividad(d),
			CodigoProducto:     d.CodigoProducto,
			Descripcion:        NormalizarTexto(d.Descripcion),
			Cantidad:           d.Cantidad.Round(2).StringFixed(2),
			PrecioUnitario:     d.PrecioUnitario.Round(2).StringFixed(2),
			MontoDescuento:     d.MontoDescuento.Round(2).StringFixed(2),
			SubTotal:           d.Subtotal.Round(2).StringFixed(2),
		})
	}

	return json.Marshal(map[string]interface{}{
		"cabecera": cab,
		"detalle":  dets,
	})
}

// ── Búsquedas de catálogo con respaldo ────────────────────────────────────────

func (b *ConstructorPayload) metodoPago(f *entity.Factura) int {
	if f.MetodoPago != 0 {
		if b.catalogo == nil || b.catalogo.MetodosPago == nil {
			return f.MetodoPago
		}
		if _, ok := b.catalogo.MetodosPago[f.MetodoPago]; ok {
			return f.MetodoPago
		}
	}
	b.log.Warn().
		Int("metodoPago", f.MetodoPago).
		Int("porDefecto", pkgsiat.MetodoPagoPorDefecto).
		Msg("método de pago ausente del catálogo, usando valor por defecto")
	return pkgsiat.MetodoPagoPorDefecto
}

func (b *ConstructorPayload) leyenda() string {
	if b.catalogo != nil && len(b.catalogo.Leyendas) > 0 {
		return b.catalogo.Leyendas[0]
	}
	b.log.Warn().Msg("catálogo de leyendas no sincronizado, usando leyenda por defecto")
	return pkgsiat.LeyendaPorDefecto
}

func (b *ConstructorPayload) actividad(d *entity.DetalleFactura) string {
	if d.ActividadEconomica != "" {
		if b.catalogo == nil || b.catalogo.Actividades == nil {
			return d.ActividadEconomica
		}
		if _, ok := b.catalogo.Actividades[d.ActividadEconomica]; ok {
			return d.ActividadEconomica
		}
	}
	b.log.Warn().
		Str("actividad", d.ActividadEconomica).
		Str("porDefecto", pkgsiat.ActividadEconomicaPorDefecto).
		Msg("actividad económica ausente del catálogo, usando valor por defecto")
	return pkgsiat.ActividadEconomicaPorDefecto
}

// ── Compresión y empaquetado ─────────────────────────────────────────────────

// Comprimir devuelve los bytes gzip del cuerpo.
func Comprimir(cuerpo []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(cuerpo); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ComprimirLote empaqueta varios XML de factura en un solo bundle
// comprimido y devuelve (comprimido, base64, hashSHA256hex).
func ComprimirLote(xmls [][]byte) ([]byte, string, string, error) {
	var bundle bytes.Buffer
	bundle.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<paqueteFacturas>\n")
	for _, x := range xmls {
		// quitar la declaración XML de cada documento interno
		s := string(x)
		if i := bytes.Index(x, []byte("?>")); i != -1 {
			s = string(x[i+2:])
		}
		bundle.WriteString(s)
		bundle.WriteString("\n")
	}
	bundle.WriteString("</paqueteFacturas>")

	comprimido, err := Comprimir(bundle.Bytes())
	if err != nil {
		return nil, "", "", fmt.Errorf("payload: comprimir lote: %w", err)
	}
	hash := sha256.Sum256(comprimido)
	return comprimido, base64.StdEncoding.EncodeToString(comprimido), hex.EncodeToString(hash[:]), nil
}

// NormalizarTexto lleva el texto libre a una forma segura para los esquemas
// del SIAT: descompone acentos (NFD), elimina marcas diacríticas y controla
// caracteres no imprimibles. El escape XML lo hace el serializador.
func NormalizarTexto(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	limpio, _, err := transform.String(t, s)
	if err != nil {
		limpio = s
	}
	out := make([]rune, 0, len(limpio))
	for _, r := range limpio {
		if unicode.IsPrint(r) {
			out = append(out, r)
		}
	}
	return string(out)
}
