package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthRouter reports liveness without triggering a refresh.
func HealthRouter(router fiber.Router, cache SnapshotCache) {
	router.Get("/", func(c *fiber.Ctx) error {
		age := -1.0
		if snapshot := cache.Snapshot(); snapshot != nil {
			age = snapshot.Age(time.Now()).Seconds()
		}

		return c.JSON(fiber.Map{
			"status":      "ok",
			"age_seconds": age,
		})
	})
}
