package main

import (
	"context"
	"fmt"
	"os"

	"moneymanager/internal/backend"
	"moneymanager/internal/cli"
	"moneymanager/internal/config"
	"moneymanager/internal/log"
	"moneymanager/internal/managerapi"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Manager API failed", log.FieldError, err, "port", cfg.APIPort)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", bcfg.Type, err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	var ready managerapi.Pinger
	if res.Ready != nil {
		ready = res.Ready
	}

	h := managerapi.NewHandler(res.Service, logger)
	srv := managerapi.NewServer(":"+cfg.APIPort, h, ready, logger)

	logger.Info("Starting manager API",
		"port", cfg.APIPort,
		"backend", bcfg.Type.String(),
		"amqp", bcfg.AMQPURL != "")

	return cli.Serve(ctx, srv, cli.ShutdownTimeout, logger)
}
