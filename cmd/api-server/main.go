package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LoickBck/MediciNet/internal/api"
	"github.com/LoickBck/MediciNet/internal/appointment"
	"github.com/LoickBck/MediciNet/internal/config"
	"github.com/LoickBck/MediciNet/internal/db"
	"github.com/LoickBck/MediciNet/internal/logging"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "api-server",
		Short:         "MediciNet clinic appointment API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply the schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Env, cfg.LogLevel)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			switch cfg.StoreDriver {
			case config.DriverSQLite:
				conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
				if err != nil {
					return err
				}
				defer conn.Close()
				if err := appointment.NewSQLiteStore(conn).Migrate(ctx); err != nil {
					return err
				}
			default:
				pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := db.Migrate(ctx, pool); err != nil {
					return err
				}
			}

			log.Info().Str("driver", cfg.StoreDriver).Msg("schema applied")
			return nil
		},
	}
}

func runServer(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	log := logging.New(cfg.Env, cfg.LogLevel)
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("version", version).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := wire(rootCtx, cfg, log, migrate)
	if err != nil {
		return err
	}
	defer app.close()

	router := api.NewRouter(api.RouterConfig{
		Appointments: app.appointments,
		Patients:     app.patients,
		Physicians:   app.physicians,
		Admin:        app.admin,
		Health:       api.NewHealthHandler(cfg.Env, version, app.deps...),
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	if err := app.dispatcher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("notification queue not fully drained")
	}

	log.Info().Msg("api-server stopped")
	return nil
}
