package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/config"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/server"
)

func main() {
	// Flags override environment variables
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	grpcPort := flag.String("grpc-port", "", "gRPC health port (overrides GRPC_PORT)")
	dev := flag.Bool("dev", false, "development mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *grpcPort != "" {
		cfg.GRPC.Port = *grpcPort
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Server error: %v", runErr)
	}
}
