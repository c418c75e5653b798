package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"momsvpn/backend/api"
	"momsvpn/backend/app"
	"momsvpn/backend/config"
	"momsvpn/backend/logging"
	"momsvpn/backend/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.ini", "path to INI config file")
	dev := flag.Bool("dev", false, "enable development mode with verbose logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Str("config", *configPath).Msg("load config failed")
		return 1
	}
	if *dev {
		cfg.Log.Level = "debug"
		cfg.Log.Console = true
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := logging.Init(cfg.Log); err != nil {
		log.Error().Err(err).Msg("init logging failed")
		return 1
	}
	defer logging.Close()

	adminHash, err := cfg.Admin.PasswordHashBytes()
	if err != nil {
		log.Error().Err(err).Msg("admin credentials invalid")
		return 1
	}
	if adminHash == nil {
		log.Warn().Msg("ADMIN_PANEL_PASSWORD not set, admin API disabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("init services failed")
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("close store failed")
		}
	}()

	scheduler := tasks.NewScheduler(a.Syncer, cfg.Sync.Interval, cfg.Sync.Notify)
	scheduler.Start(ctx)

	router := api.NewRouter(a.Facade, api.Options{
		AdminUsername:     cfg.Admin.Username,
		AdminPasswordHash: adminHash,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
		scheduler.Wait()
		close(cleanupDone)
	}()

	log.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("listen failed")
		cancel()
		<-cleanupDone
		return 1
	}
	<-cleanupDone
	return 0
}
