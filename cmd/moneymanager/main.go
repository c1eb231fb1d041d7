package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"
	"moneymanager/internal/amqp"
	"moneymanager/internal/cli"
	"moneymanager/internal/gateway"
	apphttp "moneymanager/internal/http"
	"moneymanager/internal/log"
	"moneymanager/internal/session"
	"moneymanager/internal/store"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	gw, err := gateway.New(cfg.BackendBaseURL, cfg.RequestTimeout, gateway.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize backend gateway", log.FieldError, err, "backend_url", cfg.BackendBaseURL)
		os.Exit(1)
	}

	sess := session.New(gw, store.New(),
		session.WithSettleDelay(cfg.FilterSettleDelay),
		session.WithLogger(logger))

	srv := apphttp.NewServer(":"+cfg.Port, sess, logger)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cli.Serve(ctx, srv, cli.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		return sess.Run(ctx)
	})

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			amqp.WithExclusiveQueue(),
			amqp.WithLogger(logger))
		if err != nil {
			// edits from other clients show up on the next own mutation instead
			logger.Warn("AMQP unavailable, remote changes will not refresh the history", log.FieldError, err)
		} else {
			defer client.Close()
			g.Go(func() error {
				err := client.ConsumeChanges(ctx, func(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
					logger.DebugContext(ctx, "Remote change received",
						log.FieldOperation, string(msg.Op),
						"transaction_id", msg.ID)
					sess.Invalidate()
					return nil
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	}

	logger.Info("Starting moneymanager",
		"port", cfg.Port,
		"backend_url", gw.Endpoint(),
		"amqp", cfg.AMQPEnabled())

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
}
