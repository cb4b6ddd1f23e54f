package server

import (
	"context"
	"encoding/json"
	"log"

	"scooter-ride/internal/auth"
	"scooter-ride/internal/config"
	"scooter-ride/internal/db"
	"scooter-ride/internal/ride"
	"scooter-ride/internal/schedule"
	"scooter-ride/internal/stream"
	"scooter-ride/internal/tracking"
	"scooter-ride/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       db.Querier
	Redis    *redis.Client
	Gateway  workflow.Gateway
	Stream   *stream.Hub
	Tracking *tracking.Service
	Auth     *auth.Service
	Ride     *ride.Controller
}

// NewServer wires the ride controller to its gateway, history journal and
// change stream. A nil q disables the journal; a nil gw runs disconnected.
func NewServer(cfg config.Config, gw workflow.Gateway, q db.Querier, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	if gw == nil {
		gw = workflow.Disconnected{}
	}

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       q,
		Redis:    redisClient,
		Gateway:  gw,
		Stream:   stream.NewHub(redisClient),
		Tracking: tracking.NewService(q, distanceThreshold(cfg)),
		Auth:     auth.NewService(cfg.JWTSecret),
	}

	opts := ride.Options{
		PollInterval:      cfg.PollInterval,
		DistanceThreshold: cfg.DistanceThreshold,
		CallTimeout:       cfg.CallTimeout,
	}
	if q != nil {
		opts.Recorder = s.Tracking
	}
	s.Ride = ride.NewController(gw, schedule.NewTicker(), opts)
	s.Ride.State().AddObserver(stream.Observer(s.Stream))

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		workflowStatus := "connected"
		if _, ok := s.Gateway.(workflow.Disconnected); ok {
			workflowStatus = "disconnected"
		}
		return c.JSON(fiber.Map{"status": "ok", "workflow": workflowStatus, "ride": s.Ride.Phase()})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Auth)

	auth.RegisterRoutes(s.App.Group("/auth"), s.Auth)
	ride.RegisterRoutes(s.App.Group("/ride"), s.Ride, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.snapshot)
}

// snapshot is the first message for stream clients watching the selected
// scooter.
func (s *Server) snapshot(scooterID string) ([]byte, bool) {
	snap := s.Ride.State().Snapshot()
	if snap.ScooterID != scooterID {
		return nil, false
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Close ends a ride that is still running, then stops the poll loop and the
// change stream.
func (s *Server) Close(ctx context.Context) {
	if s.Ride.Phase() == ride.PhaseActive {
		if err := s.Ride.EndRide(ctx); err != nil {
			log.Printf("end ride on shutdown: %v", err)
		}
	}
	s.Ride.Close()
	s.Stream.Close()
}

func distanceThreshold(cfg config.Config) int {
	if cfg.DistanceThreshold > 0 {
		return cfg.DistanceThreshold
	}
	return ride.DefaultDistanceThreshold
}
