package tracking

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegisterRoutes serves the ride history. When the auth middleware sets an
// email, every route is scoped to that rider.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/rides", authMiddleware, func(c *fiber.Ctx) error {
		email, _ := c.Locals("email").(string)
		if q := c.Query("email"); q != "" {
			if email != "" && q != email {
				return fiber.NewError(fiber.StatusForbidden, "cannot list another rider's rides")
			}
			email = q
		}
		if email == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email required")
		}
		rides, err := svc.Rides(c.Context(), email)
		if err != nil {
			return errorResponse(err)
		}
		return c.JSON(rides)
	})

	r.Get("/rides/:id", authMiddleware, func(c *fiber.Ctx) error {
		ride, err := ownedRide(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(ride)
	})

	r.Get("/rides/:id/summary", authMiddleware, func(c *fiber.Ctx) error {
		ride, err := ownedRide(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(svc.Summarize(ride))
	})
}

// ownedRide loads the ride named by :id. Malformed ids and rides of other
// riders are reported as not found.
func ownedRide(c *fiber.Ctx, svc *Service) (Ride, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return Ride{}, errorResponse(pgx.ErrNoRows)
	}
	ride, err := svc.Ride(c.Context(), id)
	if err != nil {
		return Ride{}, errorResponse(err)
	}
	if email, _ := c.Locals("email").(string); email != "" && ride.Email != email {
		return Ride{}, errorResponse(pgx.ErrNoRows)
	}
	return ride, nil
}

func errorResponse(err error) error {
	switch {
	case errors.Is(err, ErrDisabled):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return fiber.NewError(fiber.StatusNotFound, "ride not found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
