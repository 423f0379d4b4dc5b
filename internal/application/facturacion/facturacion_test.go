package facturacion

// Dobles de prueba compartidos por los tests del paquete: transporte SOAP,
// repositorios en memoria, firmador y almacén de XML.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ubolivar/facturacion-siat/internal/domain/entity"
	"github.com/ubolivar/facturacion-siat/internal/domain/repository"
	domsiat "github.com/ubolivar/facturacion-siat/internal/domain/siat"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/internal/infrastructure/siat/firma"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	pkgsiat "github.com/ubolivar/facturacion-siat/pkg/siat"
)

func configDePrueba() config.SIATConfig {
	return config.SIATConfig{
		Ambiente:        pkgsiat.AmbientePruebas,
		NIT:             123456789,
		CodigoSistema:   "SIS-UNI-01",
		Sucursal:        0,
		PuntoVenta:      0,
		CodigoDocSector: pkgsiat.DocSectorEducativo,
		Modalidad:       pkgsiat.ModalidadComputarizada,
		TipoEmision:     pkgsiat.TipoEmisionEnLinea,
		TipoFactura:     pkgsiat.TipoFacturaCreditoFiscal,
		BaseURL:         "https://pilotosiat.example",
		TokenAPI:        "token-de-prueba",
	}
}

// ── transporte ───────────────────────────────────────────────────────────────

type llamada struct {
	Operacion  string
	Candidatos []infrasiat.Candidato
	Campos     []infrasiat.Campo
}

// transporteFalso responde según la función responder y registra cada llamada.
type transporteFalso struct {
	mu           sync.Mutex
	llamadas     []llamada
	responder    func(n int, operacion string) (*infrasiat.Respuesta, error)
	parametricas map[string][]infrasiat.ParametricaItem
}

func (t *transporteFalso) LlamarConCandidatos(ctx context.Context, operacion string, candidatos []infrasiat.Candidato, campos []infrasiat.Campo) (*infrasiat.Respuesta, error) {
	t.mu.Lock()
	t.llamadas = append(t.llamadas, llamada{Operacion: operacion, Candidatos: candidatos, Campos: campos})
	n := len(t.llamadas)
	t.mu.Unlock()
	return t.responder(n, operacion)
}

func (t *transporteFalso) Sincronizar(ctx context.Context, servicio, operacion, wrapper string, campos []infrasiat.Campo) ([]infrasiat.ParametricaItem, error) {
	t.mu.Lock()
	t.llamadas = append(t.llamadas, llamada{Operacion: operacion, Campos: campos})
	t.mu.Unlock()
	return t.parametricas[operacion], nil
}

func (t *transporteFalso) llamadasDe(operacion string) []llamada {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []llamada
	for _, l := range t.llamadas {
		if l.Operacion == operacion {
			out = append(out, l)
		}
	}
	return out
}

func respuestaConEstado(codigo int) *infrasiat.Respuesta {
	return &infrasiat.Respuesta{CodigoEstado: &codigo, Transaccion: true}
}

func respuestaCodigo(codigo string, vigencia time.Time) *infrasiat.Respuesta {
	return &infrasiat.Respuesta{Codigo: codigo, CodigoControl: "CC-1", FechaVigencia: &vigencia}
}

// ── repositorios ─────────────────────────────────────────────────────────────

type repoCodigosFalso struct {
	mu            sync.Mutex
	cuis          *entity.Cuis
	cufd          *entity.Cufd
	guardadosCuis int
	guardadosCufd int
}

func (r *repoCodigosFalso) CuisVigente(ctx context.Context, a entity.Alcance, ahora time.Time) (*entity.Cuis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cuis != nil && r.cuis.Vigente(ahora) {
		return r.cuis, nil
	}
	return nil, nil
}

func (r *repoCodigosFalso) GuardarCuis(ctx context.Context, c *entity.Cuis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cuis = c
	r.guardadosCuis++
	return nil
}

func (r *repoCodigosFalso) CufdVigente(ctx context.Context, a entity.Alcance, ahora time.Time) (*entity.Cufd, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cufd != nil && r.cufd.Vigente(ahora) {
		return r.cufd, nil
	}
	return nil, nil
}

func (r *repoCodigosFalso) GuardarCufd(ctx context.Context, c *entity.Cufd) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cufd = c
	r.guardadosCufd++
	return nil
}

type repoFacturasFalso struct {
	mu              sync.Mutex
	facturas        map[string]*entity.Factura
	detalles        map[string][]*entity.DetalleFactura
	siguiente       int64
	actualizados    int
	fallarEscritura bool
}

func nuevoRepoFacturas() *repoFacturasFalso {
	return &repoFacturasFalso{
		facturas: make(map[string]*entity.Factura),
		detalles: make(map[string][]*entity.DetalleFactura),
	}
}

func (r *repoFacturasFalso) Create(ctx context.Context, f *entity.Factura) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID == "" {
		f.ID = fmt.Sprintf("fac-%d", len(r.facturas)+1)
	}
	r.facturas[f.CUF] = f
	return nil
}

func (r *repoFacturasFalso) CreateDetalle(ctx context.Context, d *entity.DetalleFactura) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detalles[d.FacturaID] = append(r.detalles[d.FacturaID], d)
	return nil
}

func (r *repoFacturasFalso) GetByCUF(ctx context.Context, cuf string) (*entity.Factura, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.facturas[cuf], nil
}

func (r *repoFacturasFalso) GetDetalles(ctx context.Context, facturaID string) ([]*entity.DetalleFactura, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detalles[facturaID], nil
}

func (r *repoFacturasFalso) ActualizarEstado(ctx context.Context, cuf string, estado domsiat.Estado, codigoEstado *int, mensajes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallarEscritura {
		return fmt.Errorf("escritura denegada")
	}
	f, ok := r.facturas[cuf]
	if !ok {
		return fmt.Errorf("cuf %s no existe", cuf)
	}
	f.Estado = estado
	f.CodigoEstado = codigoEstado
	f.Mensajes = mensajes
	r.actualizados++
	return nil
}

func (r *repoFacturasFalso) PendientesContingencia(ctx context.Context, sucursal, puntoVenta int) ([]*entity.Factura, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Factura
	for _, f := range r.facturas {
		if f.EnContingencia() && f.Estado != domsiat.EstadoAceptada && f.Estado != domsiat.EstadoAnulada {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *repoFacturasFalso) SiguienteNumero(ctx context.Context, sucursal, puntoVenta int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.siguiente++
	return r.siguiente, nil
}

// txFalso ejecuta el callback directamente sobre el repositorio dado.
type txFalso struct {
	repo *repoFacturasFalso
}

func (t *txFalso) Run(ctx context.Context, fn func(facturas repository.FacturaRepository) error) error {
	return fn(t.repo)
}

type repoEventosFalso struct {
	mu      sync.Mutex
	eventos []*entity.EventoSignificativo
}

func (r *repoEventosFalso) Guardar(ctx context.Context, e *entity.EventoSignificativo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventos = append(r.eventos, e)
	return nil
}

func (r *repoEventosFalso) GetPorCodigoRecepcion(ctx context.Context, codigo int64) (*entity.EventoSignificativo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.eventos {
		if e.CodigoRecepcionEvento == codigo {
			return e, nil
		}
	}
	return nil, nil
}

// ── firma ────────────────────────────────────────────────────────────────────

// firmadorFalso escribe el documento tal cual a disco y responde a Verificar
// con un valor fijo.
type firmadorFalso struct {
	dir      string
	verifica bool
	firmas   int
}

func (f *firmadorFalso) Firmar(cuf string, xmlBytes []byte) (*firma.Resultado, error) {
	f.firmas++
	ruta := filepath.Join(f.dir, cuf+".xml")
	if err := os.WriteFile(ruta, xmlBytes, 0o644); err != nil {
		return nil, err
	}
	return &firma.Resultado{RutaSinFirma: ruta, RutaFirmada: ruta}, nil
}

func (f *firmadorFalso) Verificar(rutaFirmada string) bool { return f.verifica }

// almacenFalso guarda los XML en memoria.
type almacenFalso struct {
	mu       sync.Mutex
	firmados map[string][]byte
}

func nuevoAlmacenFalso() *almacenFalso {
	return &almacenFalso{firmados: make(map[string][]byte)}
}

func (a *almacenFalso) GuardarSinFirma(cuf string, xml []byte) (string, error) { return cuf, nil }

func (a *almacenFalso) GuardarFirmado(cuf string, xml []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.firmados[cuf] = xml
	return cuf, nil
}

func (a *almacenFalso) LeerFirmado(cuf string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	x, ok := a.firmados[cuf]
	if !ok {
		return nil, fmt.Errorf("sin XML firmado para %s", cuf)
	}
	return x, nil
}

func (a *almacenFalso) RutaFirmado(cuf string) string { return cuf }
