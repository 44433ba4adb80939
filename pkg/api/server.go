package api

import (
	"context"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/api/routes"
	"github.com/awphi/esp32-cambridge-transit/pkg/http_server"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func NewApp(cache routes.SnapshotCache) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(http_server.NewLogger())

	webApp.Get("version", routes.APIVersion)
	webApp.Get("metrics", adaptor.HTTPHandler(promhttp.Handler()))

	routes.HealthRouter(webApp.Group("/health"), cache)
	routes.DeparturesRouter(webApp, cache)

	return webApp
}

// SetupServer serves until ctx is done, then shuts the server down gracefully.
func SetupServer(ctx context.Context, listen string, cache routes.SnapshotCache) error {
	webApp := NewApp(cache)

	listenErr := make(chan error, 1)
	go func() {
		log.Info().Str("listen", listen).Msg("Starting web server")
		listenErr <- webApp.Listen(listen)
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down web server")

	return webApp.ShutdownWithTimeout(shutdownTimeout)
}
