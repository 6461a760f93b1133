package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	_ "go.uber.org/automaxprocs"

	"github.com/nexusholdings/nexus/internal/config"
	"github.com/nexusholdings/nexus/internal/infra/database"
	"github.com/nexusholdings/nexus/internal/infra/repository"
	"github.com/nexusholdings/nexus/internal/present/rest/middleware"
	"github.com/nexusholdings/nexus/internal/service"
	"github.com/nexusholdings/nexus/internal/utils"
)

var (
	version    = "dev"
	configPath string
	cfg        config.Config
)

func main() {
	root := &cobra.Command{
		Use:           "nexus",
		Short:         "Investor eligibility and proposal governance service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			if configPath == "" {
				configPath = os.Getenv("NEXUS_CONFIG")
			}
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			utils.InitLogger(cfg.Log.Environment, cfg.Log.Level, cfg.Log.Format)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			utils.SyncLogger()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	root.AddCommand(
		serveCommand(),
		migrateCommand(),
		sweepCommand(),
		tokenCommand(),
		grantCommand(),
		holdingCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Server.EnableTrace {
				shutdown, err := setupTraceProvider(ctx, cfg.Server.TraceEndpoint, "nexus", version)
				if err != nil {
					return fmt.Errorf("failed to setup trace provider: %w", err)
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(shutdownCtx); err != nil {
						utils.Error("failed to shutdown trace provider", utils.ErrorField(err))
					}
				}()
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(a.db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			if schedule := cfg.Policy.AutoApproveSchedule; schedule != "" {
				scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
				if _, err := scheduler.AddFunc(schedule, func() { a.sweep(ctx) }); err != nil {
					return fmt.Errorf("invalid autoApproveSchedule %q: %w", schedule, err)
				}
				scheduler.Start()
				defer func() { <-scheduler.Stop().Done() }()
				utils.Info("deadline sweep scheduled", utils.String("schedule", schedule))
			}

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.Use(echomiddleware.Recover())
			if cfg.Server.EnableTrace {
				e.Use(otelecho.Middleware("nexus"))
			}
			e.Use(middleware.RequestLogger())
			e.Use(echomiddleware.CORS())
			a.handler.RegisterRoutes(e)

			errCh := make(chan error, 1)
			go func() {
				utils.Info("server started", utils.String("bind", cfg.Server.Bind), utils.String("version", version))
				if err := e.Start(cfg.Server.Bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			utils.Info("shutting down server")
			return e.Shutdown(shutdownCtx)
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			utils.Info("migration finished")
			return nil
		},
	}
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Approve passing proposals whose voting deadline has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			approved, err := a.proposals.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %d proposals\n", approved)
			return nil
		},
	}
}

func tokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <userId>",
		Short: "Issue a session token for development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := service.NewAuthService(cfg.Auth.JwtSecret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL))
			token, err := auth.IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func grantCommand() *cobra.Command {
	var subsidiaryID string
	cmd := &cobra.Command{
		Use:   "grant <userId>",
		Short: "Grant subsidiary admin (with --subsidiary) or super admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			roles := repository.NewRoleRepository(db)
			if subsidiaryID == "" {
				return roles.GrantSuperAdmin(cmd.Context(), args[0])
			}
			return roles.GrantSubsidiaryAdmin(cmd.Context(), args[0], subsidiaryID)
		},
	}
	cmd.Flags().StringVar(&subsidiaryID, "subsidiary", "", "subsidiary the user administers")
	return cmd
}

func holdingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "holding <subsidiaryId> <holderId> <shares>",
		Short: "Set a holder's shares for local vote weighting",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			shares, err := strconv.ParseFloat(args[2], 64)
			if err != nil || shares < 0 {
				return fmt.Errorf("invalid shares %q", args[2])
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			return repository.NewHoldingRepository(db).SetShares(cmd.Context(), args[0], args[1], shares)
		},
	}
}
