package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/whatsapp-relay/database"
	"github.com/Ananth-NQI/whatsapp-relay/internal/config"
	"github.com/Ananth-NQI/whatsapp-relay/internal/logging"
)

var (
	portOverride string
	rootCmd      *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "relay",
		Short: "WhatsApp conversation relay",
		Long: `Relays WhatsApp conversations between clients, an AI assistant and human operators.

Without a subcommand the HTTP server is started.`,
		RunE:          runServe, // Default action is serve
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Flags().StringVarP(&portOverride, "port", "p", "", "Listen port (overrides PORT)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and operator API server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}

		db, err := database.Connect(cfg.Database, log)
		if err != nil {
			return err
		}
		defer database.Close(db)

		log.Info("🔄 Running database migrations...")
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info("✅ Database migrations completed!")
		return nil
	},
}

// Execute runs the root command
func Execute(version string) error {
	serveCmd.Flags().StringVarP(&portOverride, "port", "p", "", "Listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
