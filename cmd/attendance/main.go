package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/lojf/attendance/internal/config"
	"github.com/lojf/attendance/internal/db"
	"github.com/lojf/attendance/internal/services"
	"github.com/lojf/attendance/internal/web"
)

var envFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "attendance",
		Short:        "Event attendance, child-care check-in and course progress",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (default ./.env when present)")
	root.AddCommand(serveCmd(), migrateCmd(), badgeCmd())
	return root
}

func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := cfg.NewLogger()
	slog.SetDefault(log)
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if err := db.Init(cfg.DBDriver, cfg.DBDSN, log); err != nil {
				return fmt.Errorf("db init: %w", err)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			deps := web.NewDeps(cfg, db.Conn(), reg, log)

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           web.Router(deps, reg),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("attendance listening", "addr", cfg.Addr, "driver", cfg.DBDriver)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes, merging duplicate registrations first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			if err := db.Migrate(gdb, log); err != nil {
				return err
			}
			log.Info("migration complete")
			return nil
		},
	}
}

func badgeCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "badge <personID> <out.png>",
		Short: "Write a person's QR badge to a PNG file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			png, err := services.BadgePNG(args[0], size)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], png, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", args[1], services.BadgePayload(args[0]))
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 256, "image size in pixels")
	return cmd
}
