// Servicio de firma digital XMLDSig (enveloped) para los documentos de
// factura enviados al SIAT. Firma RSA-SHA256 sobre SignedInfo canonicalizado
// (C14N exclusivo), con el certificado X.509 del emisor embebido.

package firma

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
	"github.com/ucarion/c14n"
)

// Algoritmos y namespaces XMLDSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14NExclusivo   = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2000/09/xmldsig#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Resultado rutas producidas por una firma exitosa.
type Resultado struct {
	RutaSinFirma string
	RutaFirmada  string
}

// Servicio firma y verifica documentos XML de factura.
type Servicio struct {
	cert    tls.Certificate
	almacen Almacen
	log     *logger.Logger
}

// NuevoServicio construye el servicio con el certificado ya cargado.
func NuevoServicio(cert tls.Certificate, almacen Almacen, log *logger.Logger) (*Servicio, error) {
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return nil, fmt.Errorf("firma: certificado vacío: verifica el directorio de certificados")
	}
	if _, ok := cert.PrivateKey.(*rsa.PrivateKey); !ok {
		return nil, fmt.Errorf("firma: el certificado debe incluir llave privada RSA")
	}
	return &Servicio{cert: cert, almacen: almacen, log: log}, nil
}

// Firmar escribe el documento sin firmar, produce la firma enveloped y
// escribe el documento firmado en el directorio de firmados. Las escrituras
// son idempotentes: re-firmar el mismo CUF sobreescribe ambos archivos.
func (s *Servicio) Firmar(cuf string, xmlBytes []byte) (*Resultado, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("firma: XML vacío")
	}
	priv := s.cert.PrivateKey.(*rsa.PrivateKey)

	rutaSinFirma, err := s.almacen.GuardarSinFirma(cuf, xmlBytes)
	if err != nil {
		return nil, err
	}

	// 1) Digest del documento canonicalizado (sin firma todavía).
	canonicalDoc, err := canonicalizar(xmlBytes)
	if err != nil {
		return nil, fmt.Errorf("firma: canonicalizar documento: %w", err)
	}
	docDigest := sha256.Sum256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo con referencia URI="" y transformada enveloped.
	signedInfoXML := construirSignedInfo(docDigestB64)
	canonicalSignedInfo, err := canonicalizar([]byte(signedInfoXML))
	if err != nil {
		return nil, fmt.Errorf("firma: canonicalizar SignedInfo: %w", err)
	}

	// 3) Firma RSA-SHA256 del SignedInfo canonicalizado.
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("firma: firmar SignedInfo: %w", err)
	}

	// 4) Certificado embebido.
	x509Cert, err := x509.ParseCertificate(s.cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("firma: parsear certificado: %w", err)
	}

	signatureXML := construirSignature(
		signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw),
	)

	// 5) Inyectar ds:Signature como último hijo de la raíz (enveloped).
	firmado, err := inyectarFirma(xmlBytes, signatureXML)
	if err != nil {
		return nil, err
	}

	rutaFirmada, err := s.almacen.GuardarFirmado(cuf, firmado)
	if err != nil {
		return nil, err
	}
	return &Resultado{RutaSinFirma: rutaSinFirma, RutaFirmada: rutaFirmada}, nil
}

// Verificar valida el documento firmado completo: el certificado embebido
// debe ser el del emisor configurado, la firma RSA-SHA256 sobre SignedInfo
// debe verificar con su llave pública y el digest del documento (transformada
// enveloped: sin el nodo Signature) debe coincidir con ds:DigestValue. Nunca
// propaga errores: archivo ausente, XML no parseable o estructura incompleta
// devuelven false con el motivo en el log. Un false aquí es una compuerta
// dura: la factura no se transmite.
func (s *Servicio) Verificar(rutaFirmada string) bool {
	data, err := os.ReadFile(rutaFirmada)
	if err != nil {
		s.log.Error().Err(err).Str("ruta", rutaFirmada).Msg("verificación: no se pudo leer el XML firmado")
		return false
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		s.log.Error().Err(err).Str("ruta", rutaFirmada).Msg("verificación: XML no parseable")
		return false
	}

	sig := buscarElemento(doc.Root(), "Signature")
	if sig == nil {
		s.log.Error().Str("ruta", rutaFirmada).Msg("verificación: nodo Signature ausente")
		return false
	}
	signedInfo := buscarElemento(sig, "SignedInfo")
	sigValue := buscarElemento(sig, "SignatureValue")
	certNode := buscarElemento(sig, "X509Certificate")
	digestNode := buscarElemento(signedInfo, "DigestValue")
	if signedInfo == nil || sigValue == nil || certNode == nil || digestNode == nil {
		s.log.Error().Str("ruta", rutaFirmada).Msg("verificación: estructura de firma incompleta")
		return false
	}

	// El certificado embebido debe ser exactamente el del emisor configurado:
	// una firma válida con cualquier otro certificado no autoriza transmitir.
	certDER, err := base64.StdEncoding.DecodeString(limpiarBase64(certNode.Text()))
	if err != nil {
		s.log.Error().Err(err).Msg("verificación: certificado embebido no es base64")
		return false
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		s.log.Error().Err(err).Msg("verificación: certificado embebido no parseable")
		return false
	}
	propio, err := x509.ParseCertificate(s.cert.Certificate[0])
	if err != nil {
		s.log.Error().Err(err).Msg("verificación: certificado configurado no parseable")
		return false
	}
	if DigestCertificado(cert) != DigestCertificado(propio) {
		s.log.Error().Str("ruta", rutaFirmada).Msg("verificación: el certificado embebido no es el del emisor configurado")
		return false
	}
	pub, ok := propio.PublicKey.(*rsa.PublicKey)
	if !ok {
		s.log.Error().Msg("verificación: la llave pública del certificado no es RSA")
		return false
	}

	// Reserializar y canonicalizar SignedInfo.
	siDoc := etree.NewDocument()
	siCopia := signedInfo.Copy()
	siCopia.CreateAttr("xmlns:ds", NamespaceDS)
	siDoc.SetRoot(siCopia)
	var buf bytes.Buffer
	if _, err := siDoc.WriteTo(&buf); err != nil {
		s.log.Error().Err(err).Msg("verificación: reserializar SignedInfo")
		return false
	}
	canonical, err := canonicalizar(buf.Bytes())
	if err != nil {
		s.log.Error().Err(err).Msg("verificación: canonicalizar SignedInfo")
		return false
	}

	firma, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValue.Text()))
	if err != nil {
		s.log.Error().Err(err).Msg("verificación: SignatureValue no es base64")
		return false
	}
	hash := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], firma); err != nil {
		s.log.Error().Err(err).Str("ruta", rutaFirmada).Msg("verificación: firma inválida")
		return false
	}

	// Transformada enveloped: el digest referenciado cubre el documento sin
	// el nodo Signature. Un DigestValue que no coincide es contenido alterado
	// después de firmar.
	digestEsperado, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestNode.Text()))
	if err != nil {
		s.log.Error().Err(err).Msg("verificación: DigestValue no es base64")
		return false
	}
	if padre := sig.Parent(); padre != nil {
		padre.RemoveChild(sig)
	}
	var docBuf bytes.Buffer
	if _, err := doc.WriteTo(&docBuf); err != nil {
		s.log.Error().Err(err).Msg("verificación: reserializar documento sin firma")
		return false
	}
	canonicalDoc, err := canonicalizar(docBuf.Bytes())
	if err != nil {
		s.log.Error().Err(err).Msg("verificación: canonicalizar documento")
		return false
	}
	docHash := sha256.Sum256(canonicalDoc)
	if !bytes.Equal(docHash[:], digestEsperado) {
		s.log.Error().Str("ruta", rutaFirmada).Msg("verificación: el digest del documento no coincide, contenido alterado tras la firma")
		return false
	}
	return true
}

// ── helpers ───────────────────────────────────────────────────────────────────

func canonicalizar(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func construirSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14NExclusivo + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14NExclusivo + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func construirSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

// inyectarFirma parsea el XML, añade ds:Signature como último hijo de la
// raíz y serializa.
func inyectarFirma(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("firma: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("firma: documento sin raíz")
	}

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("firma: parsear nodo Signature: %w", err)
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		root.AddChild(sigRoot)
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("firma: serializar XML firmado: %w", err)
	}
	return out.Bytes(), nil
}

// buscarElemento búsqueda en profundidad por nombre local, ignorando prefijo.
func buscarElemento(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == tag {
		return el
	}
	for _, hijo := range el.ChildElements() {
		if found := buscarElemento(hijo, tag); found != nil {
			return found
		}
	}
	return nil
}

func limpiarBase64(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
