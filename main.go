package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tutorhub/internal/config"
	"tutorhub/internal/db"
	pkglog "tutorhub/internal/log"
)

const serviceName = "tutorhub"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Realtime hub for course chat, notifications and call signaling",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "directory containing config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the websocket hub, HTTP API and gRPC health server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the hub tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: serviceName})
	return cfg, nil
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	database, err := db.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}
	l := pkglog.L()
	l.Info().Msg("migrations applied")
	return nil
}
