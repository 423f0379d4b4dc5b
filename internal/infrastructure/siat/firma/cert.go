// Carga de certificado desde .p12 (PKCS#12) o par PEM.

package firma

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"
)

// CargarCertificado busca el certificado del emisor en el directorio fijo de
// certificados: primero certificado.p12, luego el par certificado.pem +
// llave.pem. La llave privada es obligatoria para firmar.
func CargarCertificado(dir, password string) (tls.Certificate, error) {
	p12 := filepath.Join(dir, "certificado.p12")
	if _, err := os.Stat(p12); err == nil {
		return CargarDesdeP12(p12, password)
	}
	return CargarDesdePEM(filepath.Join(dir, "certificado.pem"), filepath.Join(dir, "llave.pem"))
}

// CargarDesdeP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func CargarDesdeP12(ruta, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(ruta)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("firma: leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("firma: decodificar p12: %w", err)
	}
	// pkcs12.Decode devuelve un solo certificado; para el SIAT basta la hoja.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// CargarDesdePEM carga certificado y llave desde archivos PEM. Si llavePath
// no existe se intenta un PEM combinado (cert + llave en el mismo archivo).
func CargarDesdePEM(certPath, llavePath string) (tls.Certificate, error) {
	if _, err := os.Stat(llavePath); err != nil {
		llavePath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, llavePath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("firma: cargar PEM: %w", err)
	}
	return cert, nil
}

// DigestCertificado devuelve el digest SHA-256 del certificado en Base64.
// La verificación lo usa para comparar el certificado embebido en el
// documento con el del emisor configurado.
func DigestCertificado(cert *x509.Certificate) string {
	h := sha256.Sum256(cert.Raw)
	return base64.StdEncoding.EncodeToString(h[:])
}
