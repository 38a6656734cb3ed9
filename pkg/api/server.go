package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/railwatch/railwatch/pkg/activetrains"
	"github.com/railwatch/railwatch/pkg/api/routes"
)

// SetupServer serves the registry query surface. Every response is
// built from point-in-time snapshots, never live registry references.
func SetupServer(listen string, registry *activetrains.Manager) error {
	webApp := fiber.New()
	webApp.Use(NewLogger())

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	routes.TrainsRouter(group.Group("/trains"), registry)

	return webApp.Listen(listen)
}
