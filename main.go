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

	"scmigrate/handlers"
	"scmigrate/models"
	"scmigrate/pkg/audit"
	"scmigrate/pkg/logging"
)

func main() {
	configPath := flag.String("config", "./config.ini", "path to config file")
	flag.Parse()

	config, err := models.LoadConfig(*configPath)
	if err != nil {
		bootLog := logging.New(false)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(config.Debug)
	if !config.TestMode && config.TargetInstance == "" {
		log.Fatal().Msg("[migration] target is required outside test mode")
	}
	for key, inst := range config.Instances {
		log.Info().
			Str("instance", key).
			Str("base_url", inst.BaseURL).
			Str("ctrl_secret", models.MaskSecret(inst.CtrlSecret)).
			Msg("instance configured")
	}
	if config.TestMode {
		log.Warn().Msg("test mode enabled: intakes are logged but nothing is pushed")
	}

	auditLog, err := audit.NewLogger(config.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audit logs")
	}
	defer auditLog.Close()

	service := handlers.NewWebhookService(config, auditLog, log)

	server := &http.Server{
		Addr:    config.ListenAddr,
		Handler: service.Router(),
	}

	go func() {
		log.Info().
			Str("listen", config.ListenAddr).
			Str("mode", config.Mode).
			Msg("starting migration webhook receiver")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}
