package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scooter-ride/internal/config"
	"scooter-ride/internal/db"
	"scooter-ride/internal/server"
	"scooter-ride/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	dialGateway     func(config.Config) (workflow.Gateway, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	migrate         func(context.Context, db.Querier) error
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, workflow.Gateway, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		dialGateway:     dialGateway,
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func dialGateway(cfg config.Config) (workflow.Gateway, error) {
	return workflow.NewGateway(workflow.DialTemporal(workflow.TemporalConfig{
		HostPort:  cfg.TemporalHostPort,
		Namespace: cfg.TemporalNamespace,
	}))
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	// a failed dial still yields a usable, disconnected gateway
	gw, err := deps.dialGateway(cfg)
	if err != nil {
		log.Printf("workflow gateway unavailable, rides will not be billed: %v", err)
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed, ride history disabled: %v", err)
		pg = nil
	}
	if pg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := deps.migrate(ctx, pg); err != nil {
			log.Printf("ride history migration failed: %v", err)
		}
		cancel()
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, gw, pg, rdb, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals. On the way
// out it ends any running ride before closing its connections.
func Run(ctx context.Context, cfg config.Config, gw workflow.Gateway, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	var q db.Querier
	if pg != nil {
		q = pg
	}
	srv := server.NewServer(cfg, gw, q, rdb)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			srv.Close(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	srv.Close(shutdownCtx)
	if gw != nil {
		gw.Close()
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
