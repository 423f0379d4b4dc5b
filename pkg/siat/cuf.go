// Package siat: cálculo del CUF (Código Único de Facturación) según el
// estándar del SIN/SIAT (Bolivia). Determinista: los mismos campos producen
// siempre el mismo CUF. Sin I/O de red ni de disco.

package siat

import (
	"fmt"
	"strings"
	"time"
)

// Anchos fijos de cada campo dentro de la cadena de 53 dígitos.
const (
	anchoNIT         = 13
	anchoFecha       = 17 // YYYYMMDDHHmmss000
	anchoSucursal    = 4
	anchoModalidad   = 1
	anchoTipoEmision = 1
	anchoTipoFactura = 1
	anchoDocSector   = 2
	anchoNumero      = 10
	anchoPuntoVenta  = 4
)

// CUFCampos agrupa los componentes del CUF en el orden exigido por el SIAT.
type CUFCampos struct {
	NIT           int64
	FechaEmision  time.Time
	Sucursal      int
	Modalidad     int
	TipoEmision   int
	TipoFactura   int
	DocSector     int
	NumeroFactura int64
	PuntoVenta    int
}

// CUF es el resultado del cálculo: el hexadecimal en mayúsculas que viaja en
// la factura, el dígito verificador mod-11, la cadena decimal completa de 54
// dígitos y la cadena base de 53 dígitos previa al dígito.
type CUF struct {
	Hex     string
	DV      int
	Decimal string
	Cadena  string
}

// GenerarCUF arma la cadena de 53 dígitos con cada campo en ancho fijo,
// calcula el dígito verificador módulo 11 y convierte el decimal de 54
// dígitos a hexadecimal en mayúsculas.
//
// Campos numéricos más largos que su ancho se truncan por la izquierda del
// valor (se conservan los primeros dígitos) antes de rellenar con ceros.
// Este comportamiento replica al sistema autorizado ante el SIN: cambiarlo
// rompería la reproducibilidad de CUFs ya emitidos.
func GenerarCUF(c CUFCampos) (CUF, error) {
	if c.FechaEmision.IsZero() {
		return CUF{}, fmt.Errorf("siat: FechaEmision es obligatoria para el CUF")
	}

	cadena := campoFijo(c.NIT, anchoNIT) +
		c.FechaEmision.Format("20060102150405") + "000" +
		campoFijo(int64(c.Sucursal), anchoSucursal) +
		campoFijo(int64(c.Modalidad), anchoModalidad) +
		campoFijo(int64(c.TipoEmision), anchoTipoEmision) +
		campoFijo(int64(c.TipoFactura), anchoTipoFactura) +
		campoFijo(int64(c.DocSector), anchoDocSector) +
		campoFijo(c.NumeroFactura, anchoNumero) +
		campoFijo(int64(c.PuntoVenta), anchoPuntoVenta)

	dv := DigitoMod11(cadena)
	decimal := cadena + fmt.Sprintf("%d", dv)

	hexa, err := DecimalAHex(decimal)
	if err != nil {
		return CUF{}, fmt.Errorf("siat: convertir CUF a hexadecimal: %w", err)
	}

	return CUF{
		Hex:     hexa,
		DV:      dv,
		Decimal: decimal,
		Cadena:  cadena,
	}, nil
}

// campoFijo deja el valor en exactamente `ancho` dígitos: trunca los dígitos
// sobrantes (conservando los primeros) y rellena con ceros a la izquierda.
// Valores negativos se degradan a su valor absoluto sin signo.
func campoFijo(v int64, ancho int) string {
	if v < 0 {
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	if len(s) > ancho {
		s = s[:ancho]
	}
	return strings.Repeat("0", ancho-len(s)) + s
}

// pesos cíclicos 2..9 aplicados de derecha a izquierda.
var pesosMod11 = [8]int{2, 3, 4, 5, 6, 7, 8, 9}

// DigitoMod11 calcula el dígito verificador módulo 11 de una cadena de
// dígitos: suma ponderada con pesos cíclicos 2..9 de derecha a izquierda,
// dígito = 11 - (suma % 11), con los remapeos 11→0 y 10→1.
func DigitoMod11(cadena string) int {
	suma := 0
	n := len(cadena)
	for i := 0; i < n; i++ {
		d := int(cadena[n-1-i] - '0')
		suma += d * pesosMod11[i%8]
	}
	return RemapearMod11(11 - (suma % 11))
}

// RemapearMod11 aplica los remapeos del estándar: 11→0 y 10→1.
// Expuesto para poder verificar los dos casos límite en tests.
func RemapearMod11(bruto int) int {
	switch bruto {
	case 11:
		return 0
	case 10:
		return 1
	default:
		return bruto
	}
}

// DecimalAHex convierte una cadena decimal arbitrariamente larga a
// hexadecimal en mayúsculas mediante divisiones sucesivas entre 16 sobre la
// cadena de dígitos. Un decimal de 54 dígitos no cabe en ningún entero
// nativo, por eso la división se hace dígito a dígito.
func DecimalAHex(decimal string) (string, error) {
	if decimal == "" {
		return "", fmt.Errorf("cadena decimal vacía")
	}
	for i := 0; i < len(decimal); i++ {
		if decimal[i] < '0' || decimal[i] > '9' {
			return "", fmt.Errorf("carácter no numérico %q en posición %d", decimal[i], i)
		}
	}

	const digitosHex = "0123456789ABCDEF"

	resto := strings.TrimLeft(decimal, "0")
	if resto == "" {
		return "0", nil
	}

	var invertido []byte
	for resto != "" {
		var cociente strings.Builder
		acarreo := 0
		for i := 0; i < len(resto); i++ {
			actual := acarreo*10 + int(resto[i]-'0')
			q := actual / 16
			acarreo = actual % 16
			if cociente.Len() > 0 || q > 0 {
				cociente.WriteByte(byte('0' + q))
			}
		}
		invertido = append(invertido, digitosHex[acarreo])
		resto = cociente.String()
	}

	// Los dígitos hex salen del menos al más significativo.
	out := make([]byte, len(invertido))
	for i := range invertido {
		out[i] = invertido[len(invertido)-1-i]
	}
	return string(out), nil
}
