package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-streamer/src/config"
	"market-streamer/src/credentials"
	"market-streamer/src/grpc_control"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/publishers"
	"market-streamer/src/serializers"
	"market-streamer/src/server"
	"market-streamer/src/streamer"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// Credential source: token from the environment, endpoint from config
	creds := credentials.NewEnvSource(cfg.Feed.Endpoint)

	// Create the streaming service (the one instance everything shares)
	streamService, err := streamer.New(cfg, appLogger, creds)
	if err != nil {
		appLogger.Critical("failed to create streamer: %v", err)
	}
	defer streamService.Stop()

	// Optional NATS publisher, fed from the handler registry
	if cfg.NATS.Enabled {
		var serializer interfaces.ISerializer
		if cfg.NATS.Serialization == "binary" {
			serializer = serializers.NewBinSerializer()
		} else {
			serializer = serializers.NewJSONSerializer()
		}

		natsPublisher := publishers.NewNATSPublisher(&cfg.NATS, appLogger, serializer)
		if err := natsPublisher.Connect(); err != nil {
			appLogger.Critical("failed to connect NATS publisher: %v", err)
		}
		defer natsPublisher.Disconnect()

		streamService.Register(models.CategoryQuote, natsPublisher.OnTick)
		streamService.Register(models.CategoryOption, natsPublisher.OnTick)
	}

	// HTTP API + WebSocket firehose
	apiServer := server.NewAPIServer(cfg, appLogger, streamService)
	defer apiServer.Stop()
	streamService.Register(models.CategoryQuote, apiServer.OnTick)
	streamService.Register(models.CategoryOption, apiServer.OnTick)

	go func() {
		if err := apiServer.Start(); err != nil {
			appLogger.Critical("API server error: %v", err)
		}
	}()

	// gRPC health endpoint
	controlService, err := grpc_control.NewGRPCService(cfg, appLogger, streamService)
	if err != nil {
		appLogger.Critical("failed to create gRPC health service: %v", err)
	}
	defer controlService.Stop(context.Background())

	if err := controlService.Start(); err != nil {
		appLogger.Critical("gRPC health service error: %v", err)
	}

	// Connect to the feed
	if err := streamService.Start(); err != nil {
		appLogger.Critical("failed to start streamer: %v", err)
	}

	appLogger.Info("market streamer running. HTTP API: %s:%d, gRPC: %s:%d",
		cfg.Host, cfg.Port, cfg.GRPC_Host, cfg.GRPC_Port)
	appLogger.Info("Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down...")
}
