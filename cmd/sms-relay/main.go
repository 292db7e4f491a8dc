package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LoickBck/MediciNet/internal/awsclient"
	"github.com/LoickBck/MediciNet/internal/config"
	"github.com/LoickBck/MediciNet/internal/logging"
	"github.com/LoickBck/MediciNet/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("prod", "info")
		l.Fatal().Err(err).Msg("config load")
	}

	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "sms-relay").Logger()

	if cfg.Notify.SQSQueueURL == "" || cfg.Notify.GatewayURL == "" {
		log.Error().Msg("SQS_NOTIFY_QUEUE_URL and SMS_GATEWAY_URL are both required")
		os.Exit(1)
	}

	log.Info().
		Str("env", cfg.Env).
		Str("queue_url", cfg.Notify.SQSQueueURL).
		Dur("poll_wait", cfg.Notify.RelayWait).
		Msg("sms-relay starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	awsCfg, err := awsclient.Load(awsCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("aws config")
	}

	relay := notify.NewRelay(
		awsclient.NewSQS(awsCfg),
		notify.NewWebhookGateway(cfg.Notify.GatewayURL, cfg.Notify.RelayTimeout),
		notify.RelayOptions{
			QueueURL: cfg.Notify.SQSQueueURL,
			Wait:     cfg.Notify.RelayWait,
			Logger:   log,
		},
	)

	if err := relay.Run(rootCtx); err != nil {
		log.Error().Err(err).Msg("relay stopped")
		os.Exit(1)
	}
	log.Info().Msg("shutdown signal received, sms-relay stopped")
}
