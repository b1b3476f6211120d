package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blockidx/database"
	routes "blockidx/server/routes"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const DefaultAddr = ":3000"

// NewApp wires the index routes and request logging onto a fiber app.
func NewApp(h *routes.Handle, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	})
	routes.SetupRoutes(app, h)
	return app
}

// Serve keeps the index open for the lifetime of the server and closes it
// once ctx is cancelled or the process receives SIGINT/SIGTERM.
func Serve(ctx context.Context, db *database.Database, addr string, logger *zap.Logger) (err error) {
	if addr == "" {
		addr = DefaultAddr
	}
	bt, err := db.Open(false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := bt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	app := NewApp(routes.NewHandle(bt, logger), logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("fiber listening", zap.String("addr", addr), zap.String("index", db.Path()))
		errc <- app.Listen(addr)
	}()

	select {
	case err = <-errc:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			return err
		}
		if lerr := <-errc; lerr != nil && !errors.Is(lerr, context.Canceled) {
			return lerr
		}
		return nil
	}
}
