package routes

import (
	"context"
	"errors"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/refreshcache"
	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"
)

type SnapshotCache interface {
	Get(ctx context.Context) (*ctdf.Snapshot, error)
	Snapshot() *ctdf.Snapshot
}

func DeparturesRouter(router fiber.Router, cache SnapshotCache) {
	router.Get("/", func(c *fiber.Ctx) error {
		return getDepartures(c, cache)
	})
}

func getDepartures(c *fiber.Ctx, cache SnapshotCache) error {
	snapshot, err := cache.Get(c.UserContext())
	if err != nil {
		if !errors.Is(err, refreshcache.ErrClosed) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Error().Err(err).Msg("Failed to get departure snapshot")
		}

		c.SendStatus(fiber.StatusServiceUnavailable)
		return c.JSON(fiber.Map{
			"error": "Departures are unavailable",
		})
	}

	snapshotReduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: []string{"basic"},
	}, snapshot)
	if err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": "Sherrif could not reduce Snapshot",
		})
	}

	return c.JSON(snapshotReduced)
}
