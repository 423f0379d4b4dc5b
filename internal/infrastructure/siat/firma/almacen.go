// Package firma implementa la firma y verificación XMLDSig de los documentos
// de factura, y el almacén local de XML sin firmar / firmados indexado por CUF.
package firma

import (
	"fmt"
	"os"
	"path/filepath"
)

// Almacen guarda y recupera los XML por CUF. La interfaz desacopla la firma
// del medio físico: hoy disco local, mañana un object storage, sin tocar la
// lógica criptográfica.
type Almacen interface {
	GuardarSinFirma(cuf string, xml []byte) (ruta string, err error)
	GuardarFirmado(cuf string, xml []byte) (ruta string, err error)
	LeerFirmado(cuf string) ([]byte, error)
	RutaFirmado(cuf string) string
}

// AlmacenDisco implementación sobre el sistema de archivos: dos directorios
// fijos, creación idempotente, escrituras re-intentables.
type AlmacenDisco struct {
	dirSinFirma string
	dirFirmado  string
}

// NuevoAlmacenDisco crea el almacén y asegura ambos directorios.
func NuevoAlmacenDisco(dirSinFirma, dirFirmado string) (*AlmacenDisco, error) {
	for _, dir := range []string{dirSinFirma, dirFirmado} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("firma: crear directorio %s: %w", dir, err)
		}
	}
	return &AlmacenDisco{dirSinFirma: dirSinFirma, dirFirmado: dirFirmado}, nil
}

// GuardarSinFirma escribe el XML sin firmar bajo {dir}/{cuf}.xml.
func (a *AlmacenDisco) GuardarSinFirma(cuf string, xml []byte) (string, error) {
	ruta := filepath.Join(a.dirSinFirma, cuf+".xml")
	if err := os.WriteFile(ruta, xml, 0o644); err != nil {
		return "", fmt.Errorf("firma: escribir XML sin firma: %w", err)
	}
	return ruta, nil
}

// GuardarFirmado escribe el XML firmado bajo {dir}/{cuf}.xml.
func (a *AlmacenDisco) GuardarFirmado(cuf string, xml []byte) (string, error) {
	ruta := filepath.Join(a.dirFirmado, cuf+".xml")
	if err := os.WriteFile(ruta, xml, 0o644); err != nil {
		return "", fmt.Errorf("firma: escribir XML firmado: %w", err)
	}
	return ruta, nil
}

// LeerFirmado recupera el XML firmado del CUF.
func (a *AlmacenDisco) LeerFirmado(cuf string) ([]byte, error) {
	return os.ReadFile(a.RutaFirmado(cuf))
}

// RutaFirmado devuelve la ruta del XML firmado del CUF (exista o no).
func (a *AlmacenDisco) RutaFirmado(cuf string) string {
	return filepath.Join(a.dirFirmado, cuf+".xml")
}
