package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/config"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/handler"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/session"
)

var (
	verbose bool
	envFile string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dhyan",
	Short: "Dhyan tutoring chat backend",
	Long: `dhyan serves the tutoring chat API: sign-in and onboarding, conversations
with the remote tutor, persistence of chat history and simulation selection.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if verbose || cfg.Log.Level == "debug" {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the chats and users tables in the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repo, err := openRepository(ctx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
		}
		logger.Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repo, err := openRepository(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if cfg.Store.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
		}
	}

	provider, closeAuth, err := openAuthProvider(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}
	defer closeAuth()

	catalog := simulation.NewMemoryCatalog(simulation.Seed())

	tutorClient, err := newTutorClient(ctx, cfg, catalog, logger)
	if err != nil {
		return err
	}

	chatSvc := chat.NewService(repo, tutorClient, catalog, logger, chat.WithMaxTokens(cfg.Tutor.MaxTokens))
	gate := session.NewGate(provider, repo, logger)

	router := handler.NewRouter(handler.Dependencies{
		Auth:     provider,
		Profiles: repo,
		Gate:     gate,
		Chat:     chatSvc,
		Catalog:  catalog,
		Logger:   logger,
	})

	return startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("dhyan backend listening", zap.String("addr", serverCfg.Addr))
	return runServer(ctx, srv)
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
