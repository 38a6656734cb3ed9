package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"

	"github.com/railwatch/railwatch/pkg/activetrains"
)

// TrainsRouter exposes the active registry: a full listing plus lookup
// by UID, headcode and location.
func TrainsRouter(router fiber.Router, registry *activetrains.Manager) {
	router.Get("/", func(c *fiber.Ctx) error {
		return listTrains(c, registry)
	})
	router.Get("/status", func(c *fiber.Ctx) error {
		return registryStatus(c, registry)
	})
	router.Get("/headcode/:headcode", func(c *fiber.Ctx) error {
		return trainsByHeadcode(c, registry)
	})
	router.Get("/location/:tiploc", func(c *fiber.Ctx) error {
		return trainsByLocation(c, registry)
	})
	router.Get("/:uid", func(c *fiber.Ctx) error {
		return trainByUID(c, registry)
	})
}

// marshalGroups filters a response down to one field group, "basic"
// for listings and "detailed" for single train lookups.
func marshalGroups(c *fiber.Ctx, value any, groups ...string) error {
	marshalled, err := sheriff.Marshal(&sheriff.Options{Groups: groups}, value)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(marshalled)
}

func listTrains(c *fiber.Ctx, registry *activetrains.Manager) error {
	trains := registry.Snapshot()

	running := c.Query("running") == "true"
	if running {
		var filtered []*activetrains.ActiveTrain
		for _, train := range trains {
			if train.Detected && !train.Terminated && !train.Cancelled {
				filtered = append(filtered, train)
			}
		}
		trains = filtered
	}

	group := "basic"
	if c.Query("detailed") == "true" {
		group = "detailed"
	}

	return marshalGroups(c, trains, group)
}

func registryStatus(c *fiber.Ctx, registry *activetrains.Manager) error {
	response := fiber.Map{
		"state": registry.State().String(),
	}

	if date, ok := registry.Date(); ok {
		response["date"] = date.Format("2006-01-02")
	}

	return c.JSON(response)
}

func trainByUID(c *fiber.Ctx, registry *activetrains.Manager) error {
	train, found := registry.FindByUID(c.Params("uid"))
	if !found {
		c.SendStatus(fiber.StatusNotFound)

		return c.JSON(fiber.Map{
			"error": "Train not found on the current railway day",
		})
	}

	marshalled, err := sheriff.Marshal(&sheriff.Options{Groups: []string{"detailed"}}, train)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal train")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(fiber.Map{
		"train":    marshalled,
		"position": train.Position(),
	})
}

func trainsByHeadcode(c *fiber.Ctx, registry *activetrains.Manager) error {
	trains := registry.FindByHeadcode(c.Params("headcode"))

	// Headcodes repeat across operators, a list is the normal answer.
	return marshalGroups(c, trains, "basic")
}

func trainsByLocation(c *fiber.Ctx, registry *activetrains.Manager) error {
	trains := registry.FindByTiploc(c.Params("tiploc"))

	return marshalGroups(c, trains, "basic")
}
