package ride

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type statusResponse struct {
	Phase Phase    `json:"phase"`
	State Snapshot `json:"state"`
}

func RegisterRoutes(r fiber.Router, ctrl *Controller, authMiddleware fiber.Handler) {
	status := func(c *fiber.Ctx) error {
		return c.JSON(statusResponse{Phase: ctrl.Phase(), State: ctrl.State().Snapshot()})
	}

	r.Get("/", status)

	r.Put("/rider", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Email     string `json:"email"`
			ScooterID string `json:"scooter_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if body.Email == "" {
			body.Email, _ = c.Locals("email").(string)
		}
		if body.ScooterID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "scooter_id required")
		}
		if err := ctrl.SetRider(body.Email, body.ScooterID); err != nil {
			return errorResponse(err)
		}
		return status(c)
	})

	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		if err := ctrl.StartRide(c.Context()); err != nil {
			return errorResponse(err)
		}
		return status(c)
	})

	r.Post("/end", authMiddleware, func(c *fiber.Ctx) error {
		if err := ctrl.EndRide(c.Context()); err != nil {
			return errorResponse(err)
		}
		return status(c)
	})

	r.Put("/speed", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Speed *int `json:"speed"`
		}
		if err := c.BodyParser(&body); err != nil || body.Speed == nil {
			return fiber.NewError(fiber.StatusBadRequest, "speed required")
		}
		// out-of-range speeds are dropped by State; the response shows what was kept
		ctrl.State().SetCurrentSpeed(*body.Speed)
		return status(c)
	})

	r.Get("/details", func(c *fiber.Ctx) error {
		details, err := ctrl.RideDetails(c.Context())
		if err != nil {
			return errorResponse(err)
		}
		return c.JSON(details)
	})
}

func errorResponse(err error) error {
	switch {
	case errors.Is(err, ErrRideActive), errors.Is(err, ErrNoActiveRide):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrNoScooter):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}
