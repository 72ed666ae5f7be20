package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/velling/presence-server/internal/app"
	"github.com/velling/presence-server/internal/auth"
	"github.com/velling/presence-server/internal/config"
	"github.com/velling/presence-server/internal/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:          "presence-server",
		Short:        "Real-time presence and delivery server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info")

			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting presence server")

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&overrides.HeartbeatInterval, "heartbeat-interval", 0, "liveness sweep interval")
	cmd.Flags().DurationVar(&overrides.HeartbeatTimeout, "heartbeat-timeout", 0, "heartbeat eviction timeout")

	cmd.AddCommand(tokenCmd())
	return cmd
}

// tokenCmd mints a development JWT for connecting test clients.
func tokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		name       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Mint a development token for the given user",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(nil, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret must be configured")
			}

			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, userID, name, nil)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}

			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	cmd.Flags().StringVar(&name, "name", "", "display name to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
