package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ubolivar/facturacion-siat/internal/application/facturacion"
	"github.com/ubolivar/facturacion-siat/internal/infrastructure/postgres"
	infrasiat "github.com/ubolivar/facturacion-siat/internal/infrastructure/siat"
	"github.com/ubolivar/facturacion-siat/internal/infrastructure/siat/firma"
	httpRouter "github.com/ubolivar/facturacion-siat/internal/interfaces/http"
	"github.com/ubolivar/facturacion-siat/pkg/config"
	"github.com/ubolivar/facturacion-siat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Int("ambiente_siat", cfg.SIAT.Ambiente).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	facturaRepo := postgres.NewFacturaRepository(pool)
	codigoRepo := postgres.NewCodigoRepository(pool)
	eventoRepo := postgres.NewEventoRepository(pool)
	auditoriaRepo := postgres.NewAuditoriaRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Firma digital: certificado del emisor y almacén de XML en disco.
	cert, err := firma.CargarCertificado(cfg.SIAT.CertDir, cfg.SIAT.CertPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("cargar certificado de firma")
	}
	almacen, err := firma.NuevoAlmacenDisco(cfg.SIAT.DirXMLSinFirma, cfg.SIAT.DirXMLFirmado)
	if err != nil {
		log.Fatal().Err(err).Msg("crear almacén de XML")
	}
	firmador, err := firma.NuevoServicio(cert, almacen, log)
	if err != nil {
		log.Fatal().Err(err).Msg("servicio de firma")
	}

	transporte := infrasiat.NuevaFabrica(cfg.SIAT, log, auditoriaRepo)
	constructor := infrasiat.NuevoConstructorPayload(cfg.SIAT, log, nil)

	codigos := facturacion.NuevoGestorCodigos(cfg.SIAT, transporte, codigoRepo, log)
	emision := facturacion.NuevoServicioRecepcion(cfg.SIAT, codigos, constructor, firmador, transporte, txRunner, facturaRepo, log)
	verificacion := facturacion.NuevoServicioVerificacion(cfg.SIAT, codigos, transporte, facturaRepo, log)
	anulacion := facturacion.NuevoServicioAnulacion(cfg.SIAT, codigos, verificacion, transporte, facturaRepo, log, nil)
	contingencia := facturacion.NuevoServicioContingencia(cfg.SIAT, codigos, transporte, facturaRepo, eventoRepo, almacen, log)
	parametricas := facturacion.NuevoServicioParametricas(cfg.SIAT, codigos, transporte, constructor, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Emision:      emision,
		Verificacion: verificacion,
		Anulacion:    anulacion,
		Contingencia: contingencia,
		Parametricas: parametricas,
		Facturas:     facturaRepo,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
