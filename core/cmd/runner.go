// Package cmd runs the application until it is interrupted.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/bootstrap"
	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/session"
	"github.com/m3rciful/orderbot/core/telegram"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdle          = 10 * time.Minute
	slowDownText         = "You're sending messages too quickly. Please wait a moment and try again."
)

// Options describe how to load configuration and bootstrap the app.
type Options struct {
	ConfigPath string

	LoadConfig     func(path string) (*config.Config, error)
	Bootstrap      func(ctx context.Context, cfg *config.Config) (*bootstrap.App, error)
	ShutdownLogger func() error
}

// Run loads configuration, bootstraps the app and serves until SIGINT or SIGTERM.
func Run(ctx context.Context, opts Options) error {
	if opts.ConfigPath == "" {
		return errors.New("cmd: config path not provided")
	}
	load := opts.LoadConfig
	if load == nil {
		load = config.Load
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = func(ctx context.Context, cfg *config.Config) (*bootstrap.App, error) {
			return bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
		}
	}

	log.Printf("loading config: %s", opts.ConfigPath)
	cfg, err := load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	startedAt := time.Now()
	app, err := boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer app.Close()

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info(ctx, "app", "ready",
		slog.String("status", "ok"),
		slog.String("addr", app.Server.Addr()),
		slog.Duration("startup_duration", logger.Took(startedAt)),
	)
	err = Serve(ctx, app)
	logger.Info(context.WithoutCancel(ctx), "app", "shutdown", slog.String("status", logger.Status(err)))
	return err
}

// Serve runs the long-lived components until ctx is done or one of them fails.
func Serve(ctx context.Context, app *bootstrap.App) error {
	g, gctx := errgroup.WithContext(ctx)
	cfg := app.Config

	g.Go(func() error { return app.Server.Run(gctx) })
	g.Go(func() error { return app.Outbox.Run(gctx) })
	g.Go(func() error { return app.Limiter.Run(gctx, limiterSweepInterval, limiterIdle) })
	g.Go(func() error {
		return session.RunReaper(gctx, app.Store, cfg.Store.IdleTTL, cfg.Store.ReapInterval)
	})
	if app.WhatsApp != nil {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, 15*time.Second)
			defer cancel()
			if err := app.WhatsApp.CheckToken(checkCtx); err != nil {
				logger.Warn(gctx, "wa", "token.check",
					slog.String("status", "degraded"),
					slog.String("err_kind", string(collab.KindOf(err))),
					slog.String("err", err.Error()),
				)
			}
			return nil
		})
	}
	if app.Bot != nil && app.Telegram != nil {
		g.Go(func() error {
			return telegram.Run(gctx, app.Bot, telegram.RunOptions{
				Config:      cfg,
				Registry:    telegram.DefaultRegistry(),
				Middlewares: telegram.DefaultMiddlewares(app.Limiter, slowDown),
				Routes:      app.Telegram.Routes(),
			})
		})
	}

	return g.Wait()
}

func slowDown(c tele.Context) error {
	return c.Send(slowDownText)
}
