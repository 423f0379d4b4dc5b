package entity

import "time"

// Alcance identifica el ámbito de un código de autorización del SIAT.
// Los CUIS y CUFD se emiten y cachean por (ambiente, sucursal, puntoVenta).
type Alcance struct {
	Ambiente   int
	Sucursal   int
	PuntoVenta int
}

// Cuis código de autorización del sistema por sucursal/punto de venta.
// De grano grueso y larga vigencia. Nunca se muta: al expirar se
// reemplaza por uno nuevo.
type Cuis struct {
	ID            string
	Ambiente      int
	Sucursal      int
	PuntoVenta    int
	Codigo        string
	FechaVigencia time.Time
	CreatedAt     time.Time
}

// Vigente indica si el CUIS sigue siendo utilizable en el instante dado.
func (c *Cuis) Vigente(ahora time.Time) bool {
	return c != nil && c.Codigo != "" && ahora.Before(c.FechaVigencia)
}

// Alcance devuelve la clave de ámbito del código.
func (c *Cuis) Alcance() Alcance {
	return Alcance{Ambiente: c.Ambiente, Sucursal: c.Sucursal, PuntoVenta: c.PuntoVenta}
}

// Cufd código único de facturación diaria, derivado de un CUIS. Vigencia
// corta (clase diaria). Incluye el código de control que viaja en la
// factura y el desfase de reloj que reporta la autoridad.
type Cufd struct {
	ID            string
	CuisCodigo    string
	Ambiente      int
	Sucursal      int
	PuntoVenta    int
	Codigo        string
	CodigoControl string
	Direccion     string
	FechaVigencia time.Time
	DesfaseReloj  time.Duration // hora-del-SIN menos hora local al emitirse
	CreatedAt     time.Time
}

// Vigente indica si el CUFD sigue siendo utilizable en el instante dado.
func (c *Cufd) Vigente(ahora time.Time) bool {
	return c != nil && c.Codigo != "" && ahora.Before(c.FechaVigencia)
}

// Alcance devuelve la clave de ámbito del código.
func (c *Cufd) Alcance() Alcance {
	return Alcance{Ambiente: c.Ambiente, Sucursal: c.Sucursal, PuntoVenta: c.PuntoVenta}
}
