package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwise1/voteledger/config"
	"github.com/bwise1/voteledger/internal/db"
	deps "github.com/bwise1/voteledger/internal/debs"
	api "github.com/bwise1/voteledger/internal/http/rest"
	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	allowConnectionsAfterShutdown = 1 * time.Second
	verifyPageSize                = 100
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and configures the global logger from it.
func loadConfig() *config.Config {
	cfg := config.New()
	setupLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg
}

func setupLogger(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

var rootCmd = &cobra.Command{
	Use:           "voteledger",
	Short:         "Quota-gated vote ledger service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}

		d, err := deps.New(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := d.Close(); err != nil {
				log.Error().Err(err).Msg("closing dependencies")
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go d.Reconciler.Run(ctx, cfg.ReconcileInterval, cfg.ReconcileBatch)

		a := &api.API{
			Config: cfg,
			Deps:   d,
		}
		serveErr := make(chan error, 1)
		go func() {
			log.Info().Int("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server running")
			serveErr <- a.Serve()
		}()

		select {
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info().Dur("grace", allowConnectionsAfterShutdown).Msg("request to shutdown server")
		time.Sleep(allowConnectionsAfterShutdown)

		log.Info().Msg("shutting down server")
		return a.Shutdown()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the ledger schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(loadConfig(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := db.Migrate(store); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(loadConfig(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		status, err := db.MigrationStatus(store)
		if err != nil {
			return err
		}
		fmt.Printf("Version: %d\n", status.Version)
		fmt.Printf("Latest:  %d\n", status.Latest)
		fmt.Printf("Dirty:   %t\n", status.Dirty)
		return nil
	},
}

var verifyFlag bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Apply every outstanding vote event once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openStore(cfg, cfg.AutoMigrate)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		r := ledger.NewReconciler(store, ledger.ReconcilerConfig{
			MaxAttempts: cfg.ReconcileAttempts,
			Backoff:     cfg.ReconcileBackoff,
		}, nil)

		applied, err := r.Sweep(ctx, cfg.ReconcileBatch)
		fmt.Printf("Applied %d events\n", applied)
		if err != nil {
			return err
		}
		if !verifyFlag {
			return nil
		}
		return verifyAll(ctx, store, r)
	},
}

func verifyAll(ctx context.Context, store ledger.Store, r *ledger.Reconciler) error {
	drifted := 0
	for offset := 0; ; offset += verifyPageSize {
		entities, err := store.ListEntities(ctx, verifyPageSize, offset)
		if err != nil {
			return err
		}
		for _, e := range entities {
			d, err := r.Verify(ctx, e.ID)
			if err != nil {
				return err
			}
			if !d.Consistent() {
				drifted++
				fmt.Printf("%s: counter %d, expected %d, pending %d\n", d.EntityID, d.VoteCount, d.Expected, d.Pending)
			}
		}
		if len(entities) < verifyPageSize {
			break
		}
	}
	if drifted > 0 {
		return fmt.Errorf("%d entities drifted", drifted)
	}
	fmt.Println("All counters consistent")
	return nil
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an access token for a user id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cfg.JwtSecret == "" {
			return errors.New("JWT_SECRET is required")
		}
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		ttl, err := cfg.JwtTTL()
		if err != nil {
			return err
		}

		token, expiresAt, err := api.IssueAccessToken(cfg.JwtSecret, userID, ttl)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(model.AccessToken{
			ActorID:   userID,
			Token:     token,
			ExpiresAt: expiresAt,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func openStore(cfg *config.Config, autoMigrate bool) (ledger.Store, error) {
	return db.Open(db.Options{
		Driver:      cfg.StoreDriver,
		DSN:         cfg.Dsn,
		SQLitePath:  cfg.SQLitePath,
		AutoMigrate: autoMigrate,
	})
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	reconcileCmd.Flags().BoolVar(&verifyFlag, "verify", false, "check every entity counter against the ledger after the sweep")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(tokenCmd)
}
