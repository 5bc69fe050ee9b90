package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/config"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and gRPC health server",
	Long:  `serve reads the same environment as the server binary. Flags override it.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP port (overrides PORT)")
	serveCmd.Flags().Bool("dev", false, "development logging")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}
	if dev, _ := cmd.Flags().GetBool("dev"); dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(cmd.Context())
}
