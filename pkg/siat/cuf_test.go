package siat_test

import (
	"math/big"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubolivar/facturacion-siat/pkg/siat"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestGenerarCUF_VectorExacto valida que el cálculo del CUF produce el valor
// exacto esperado para campos conocidos.
//
// Este test es el "canario en la mina" de la integración SIAT: si alguien
// modifica inadvertidamente el relleno de campos, los pesos del módulo 11 o
// la conversión a hexadecimal, el test falla antes de llegar a producción.
//
// Vector de referencia:
//
//	Cadena  = 0000123456789 + 20250115103000000 + 0000 + 2 + 1 + 1 + 11 +
//	          0000000042 + 0000                                  (53 dígitos)
//	DV      = 4 (módulo 11, pesos cíclicos 2..9 de derecha a izquierda)
//	Decimal = 000012345678920250115103000000000021111000000004200004
// ──────────────────────────────────────────────────────────────────────────────

const cufEsperado = "8727F63A18CAD6A5B46A39C3AD4B09F03ED859644"

func camposDePrueba() siat.CUFCampos {
	return siat.CUFCampos{
		NIT:           123456789,
		FechaEmision:  time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		Sucursal:      0,
		Modalidad:     2,
		TipoEmision:   1,
		TipoFactura:   1,
		DocSector:     11,
		NumeroFactura: 42,
		PuntoVenta:    0,
	}
}

func TestGenerarCUF_VectorExacto(t *testing.T) {
	cuf, err := siat.GenerarCUF(camposDePrueba())
	require.NoError(t, err, "GenerarCUF no debe fallar con campos válidos")

	assert.Equal(t, cufEsperado, cuf.Hex,
		"El CUF debe coincidir exactamente con el vector de referencia")
	assert.Equal(t, 4, cuf.DV)
	assert.Len(t, cuf.Cadena, 53, "la cadena base debe tener 53 dígitos")
	assert.Len(t, cuf.Decimal, 54, "el decimal con dígito verificador debe tener 54 dígitos")
	assert.Equal(t,
		"000012345678920250115103000000000021111000000004200004",
		cuf.Decimal)
}

// TestGenerarCUF_Determinista verifica que dos llamadas con los mismos campos
// producen siempre el mismo CUF (función pura, sin aleatoriedad).
func TestGenerarCUF_Determinista(t *testing.T) {
	c1, err1 := siat.GenerarCUF(camposDePrueba())
	c2, err2 := siat.GenerarCUF(camposDePrueba())

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, c1, c2, "el mismo input siempre debe producir el mismo CUF")
}

// TestGenerarCUF_SensibleACadaCampo verifica que cambiar cualquier campo
// individual cambia el CUF resultante.
func TestGenerarCUF_SensibleACadaCampo(t *testing.T) {
	base, err := siat.GenerarCUF(camposDePrueba())
	require.NoError(t, err)

	variantes := map[string]siat.CUFCampos{}

	c := camposDePrueba()
	c.NIT = 987654321
	variantes["nit"] = c

	c = camposDePrueba()
	c.FechaEmision = c.FechaEmision.Add(time.Second)
	variantes["fechaEmision"] = c

	c = camposDePrueba()
	c.Sucursal = 1
	variantes["sucursal"] = c

	c = camposDePrueba()
	c.Modalidad = 1
	variantes["modalidad"] = c

	c = camposDePrueba()
	c.TipoEmision = 2
	variantes["tipoEmision"] = c

	c = camposDePrueba()
	c.TipoFactura = 2
	variantes["tipoFactura"] = c

	c = camposDePrueba()
	c.DocSector = 1
	variantes["docSector"] = c

	c = camposDePrueba()
	c.NumeroFactura = 43
	variantes["numeroFactura"] = c

	c = camposDePrueba()
	c.PuntoVenta = 3
	variantes["puntoVenta"] = c

	for campo, cc := range variantes {
		variado, err := siat.GenerarCUF(cc)
		require.NoError(t, err, campo)
		assert.NotEqual(t, base.Hex, variado.Hex,
			"cambiar %s debe cambiar el CUF", campo)
	}
}

func TestGenerarCUF_ErrorSinFecha(t *testing.T) {
	c := camposDePrueba()
	c.FechaEmision = time.Time{}
	_, err := siat.GenerarCUF(c)
	assert.Error(t, err, "sin fecha de emisión no hay CUF")
}

// TestGenerarCUF_TruncaCamposLargos documenta el comportamiento de
// compatibilidad: un número de factura de más de 10 dígitos se trunca a sus
// primeros 10 dígitos en vez de fallar.
func TestGenerarCUF_TruncaCamposLargos(t *testing.T) {
	c := camposDePrueba()
	c.NumeroFactura = 12345678901234 // 14 dígitos
	cuf, err := siat.GenerarCUF(c)
	require.NoError(t, err)
	assert.Contains(t, cuf.Cadena, "1234567890", "se conservan los primeros 10 dígitos")
	assert.Len(t, cuf.Cadena, 53)
}

// ── Módulo 11 ─────────────────────────────────────────────────────────────────

func TestDigitoMod11_CadenaDeCeros(t *testing.T) {
	// Suma ponderada 0 → bruto 11 → remapeo a 0.
	assert.Equal(t, 0, siat.DigitoMod11(strings.Repeat("0", 53)))
}

func TestRemapearMod11_CasosLimite(t *testing.T) {
	assert.Equal(t, 1, siat.RemapearMod11(10), "bruto 10 debe remapear a 1")
	assert.Equal(t, 0, siat.RemapearMod11(11), "bruto 11 debe remapear a 0")
	for bruto := 1; bruto <= 9; bruto++ {
		assert.Equal(t, bruto, siat.RemapearMod11(bruto))
	}
}

// ── Conversión decimal → hexadecimal ─────────────────────────────────────────

func TestDecimalAHex_Cero(t *testing.T) {
	h, err := siat.DecimalAHex("0")
	require.NoError(t, err)
	assert.Equal(t, "0", h)

	h, err = siat.DecimalAHex(strings.Repeat("0", 54))
	require.NoError(t, err)
	assert.Equal(t, "0", h, "54 ceros siguen siendo el valor cero")
}

func TestDecimalAHex_MaximoDe54Nueves(t *testing.T) {
	nueves := strings.Repeat("9", 54)
	h, err := siat.DecimalAHex(nueves)
	require.NoError(t, err)

	esperado := new(big.Int)
	esperado.SetString(nueves, 10)
	assert.Equal(t, strings.ToUpper(esperado.Text(16)), h)
}

// TestDecimalAHex_AleatoriosContraBigInt contrasta la división sucesiva
// contra math/big para 20 decimales aleatorios de 54 dígitos.
func TestDecimalAHex_AleatoriosContraBigInt(t *testing.T) {
	rng := rand.New(rand.NewSource(42)) // semilla fija: test reproducible

	for i := 0; i < 20; i++ {
		var sb strings.Builder
		sb.WriteByte(byte('1' + rng.Intn(9))) // primer dígito no cero
		for j := 1; j < 54; j++ {
			sb.WriteByte(byte('0' + rng.Intn(10)))
		}
		dec := sb.String()

		h, err := siat.DecimalAHex(dec)
		require.NoError(t, err, dec)

		esperado := new(big.Int)
		esperado.SetString(dec, 10)
		assert.Equal(t, strings.ToUpper(esperado.Text(16)), h,
			"conversión incorrecta para %s", dec)
	}
}

func TestDecimalAHex_RechazaNoNumericos(t *testing.T) {
	_, err := siat.DecimalAHex("12A4")
	assert.Error(t, err)

	_, err = siat.DecimalAHex("")
	assert.Error(t, err)
}
