package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/config"
	"github.com/jonathan/portfolio-admin/internal/editor"
	"github.com/jonathan/portfolio-admin/internal/observability"
	"github.com/jonathan/portfolio-admin/internal/server"
	"github.com/jonathan/portfolio-admin/internal/session"
	"github.com/jonathan/portfolio-admin/internal/types"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server",
	Long:  `Start an HTTP server that exposes the sign-in page, the content portal and one editor per content kind.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config and PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	logger, err := observability.NewLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sessions, err := newSessionProvider(logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	metrics := observability.NewMetrics()
	editors := editor.NewSet(types.Kinds(), editor.Deps{
		Collection: b.Collection,
		Files:      b.Files,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err := editors.Start(ctx); err != nil {
		return fmt.Errorf("failed to start editors: %w", err)
	}

	secure, _ := strconv.ParseBool(os.Getenv("SECURE_COOKIES"))
	srv := server.New(server.Config{Port: cfg.Port, SecureCookies: secure}, server.Deps{
		Editors:  editors,
		Sessions: sessions,
		Metrics:  metrics,
		Logger:   logger,
	})
	logger.Info("backends ready",
		zap.String("store", cfg.Store),
		zap.String("files", cfg.Files),
		zap.String("origin", b.Files.Origin()),
	)
	return srv.Start(ctx)
}

// newSessionProvider builds the single-admin session provider from the
// environment.
func newSessionProvider(logger *zap.Logger) (*session.Provider, error) {
	passwords, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load password config: %w", err)
	}
	admin, err := config.NewAdminConfig(passwords)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin credentials: %w", err)
	}
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT config: %w", err)
	}
	return session.NewProvider(admin, session.NewJWTService(jwtCfg), logger), nil
}
