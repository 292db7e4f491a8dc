package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/LoickBck/MediciNet/internal/api"
	"github.com/LoickBck/MediciNet/internal/appointment"
	"github.com/LoickBck/MediciNet/internal/awsclient"
	"github.com/LoickBck/MediciNet/internal/blob"
	"github.com/LoickBck/MediciNet/internal/config"
	"github.com/LoickBck/MediciNet/internal/db"
	"github.com/LoickBck/MediciNet/internal/events"
	"github.com/LoickBck/MediciNet/internal/notify"
	"github.com/LoickBck/MediciNet/internal/patient"
	redisclient "github.com/LoickBck/MediciNet/internal/redis"
	"github.com/LoickBck/MediciNet/internal/roster"
)

const documentsPrefix = "identification-documents"

// application holds everything runServer needs plus the resources to release
// on exit, in reverse order of acquisition.
type application struct {
	appointments *appointment.Service
	patients     api.PatientService
	physicians   *roster.Roster
	admin        *api.AdminAuth
	dispatcher   *notify.Dispatcher
	deps         []api.Dependency

	closers []func()
}

func (a *application) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func wire(ctx context.Context, cfg config.Config, log zerolog.Logger, migrate bool) (*application, error) {
	app := &application{}
	ready := false
	defer func() {
		if !ready {
			app.close()
		}
	}()

	physicians, err := roster.Load(cfg.RosterFile)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	app.physicians = physicians
	log.Info().Strs("physicians", physicians.Names()).Msg("roster loaded")

	var awsCfg *aws.Config
	if cfg.Notify.SQSQueueURL != "" || cfg.DocumentsBucket != "" {
		loaded, err := awsclient.Load(ctx)
		if err != nil {
			return nil, err
		}
		awsCfg = &loaded
	}

	store, recorder, err := app.openStore(ctx, cfg, log, awsCfg, migrate)
	if err != nil {
		return nil, err
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		app.onClose(func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("close kafka publisher")
			}
		})
		recorder = publisher
		log.Info().Strs("brokers", cfg.Events.KafkaBrokers).Str("topic", cfg.Events.KafkaTopic).Msg("appointment events go to kafka")
	}

	notifier, err := app.buildNotifier(ctx, cfg, log, awsCfg)
	if err != nil {
		return nil, err
	}

	opts := []appointment.ServiceOption{
		appointment.WithPhysicians(physicians),
		appointment.WithLocation(cfg.Location),
		appointment.WithLogger(log.With().Str("component", "appointments").Logger()),
	}
	if recorder != nil {
		opts = append(opts, appointment.WithEventRecorder(recorder))
	}
	app.appointments = appointment.NewService(store, notifier, opts...)

	if cfg.AdminEnabled() {
		app.admin = api.NewAdminAuth(cfg.Admin.PasskeyHash, cfg.Admin.TokenSecret, cfg.Admin.TokenTTL)
	} else {
		log.Warn().Msg("ADMIN_PASSKEY_HASH not set, admin routes disabled")
	}

	ready = true
	return app, nil
}

// openStore connects the configured appointment store. Patient records need
// postgres, so in sqlite mode the patient routes stay disabled.
func (a *application) openStore(ctx context.Context, cfg config.Config, log zerolog.Logger, awsCfg *aws.Config, migrate bool) (appointment.Store, appointment.EventRecorder, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(connectCtx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		a.onClose(func() { _ = conn.Close() })

		store := appointment.NewSQLiteStore(conn)
		if err := store.Migrate(connectCtx); err != nil {
			return nil, nil, err
		}
		a.deps = append(a.deps, api.Dependency{Name: "sqlite", Critical: true, Ping: conn.PingContext})
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite store, patient routes disabled")
		return store, nil, nil

	default:
		pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		a.onClose(pool.Close)

		if migrate {
			if err := db.Migrate(connectCtx, pool); err != nil {
				return nil, nil, err
			}
			log.Info().Msg("schema applied")
		}
		a.deps = append(a.deps, api.Dependency{Name: "postgres", Critical: true, Ping: pool.Ping})
		log.Info().Msg("connected to Postgres")

		a.patients = newPatientService(cfg, log, pool, awsCfg, a.physicians)
		store := appointment.NewPgStore(pool)
		return store, store, nil
	}
}

func newPatientService(cfg config.Config, log zerolog.Logger, pool *pgxpool.Pool, awsCfg *aws.Config, physicians *roster.Roster) *patient.Service {
	opts := []patient.ServiceOption{
		patient.WithPhysicians(physicians),
		patient.WithLogger(log.With().Str("component", "patients").Logger()),
	}
	if cfg.DocumentsBucket != "" {
		var documents blob.Store = blob.NewS3Store(awsclient.NewS3(*awsCfg), cfg.DocumentsBucket, documentsPrefix)
		opts = append(opts, patient.WithDocuments(documents))
		log.Info().Str("bucket", cfg.DocumentsBucket).Msg("identification documents go to S3")
	}
	return patient.NewService(patient.NewPgRepository(pool), opts...)
}

// buildNotifier assembles the sender and the dispatcher in front of it. When
// Redis is configured the dedupe guard wraps the sender, inside the workers.
func (a *application) buildNotifier(ctx context.Context, cfg config.Config, log zerolog.Logger, awsCfg *aws.Config) (appointment.Notifier, error) {
	var sender notify.Sender
	if cfg.Notify.SQSQueueURL != "" {
		sender = notify.NewSQSSender(awsclient.NewSQS(*awsCfg), cfg.Notify.SQSQueueURL)
		log.Info().Str("queue_url", cfg.Notify.SQSQueueURL).Msg("notifications go to SQS")
	} else {
		sender = notify.NewLogSender(log.With().Str("component", "sms").Logger())
		log.Warn().Msg("SQS_NOTIFY_QUEUE_URL not set, notifications are only logged")
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisclient.Connect(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.onClose(func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis")
			}
		})
		a.deps = append(a.deps, api.Dependency{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		log.Info().Dur("dedupe_ttl", cfg.Notify.DedupeTTL).Msg("connected to Redis")

		guard := redisclient.NewOnceGuard(rdb, "medicinet:notify:", cfg.Notify.DedupeTTL)
		sender = notify.Deduplicate(sender, guard, log.With().Str("component", "dedupe").Logger())
	}

	a.dispatcher = notify.NewDispatcher(sender, notify.DispatcherOptions{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Logger:    log.With().Str("component", "dispatcher").Logger(),
	})
	return a.dispatcher, nil
}
