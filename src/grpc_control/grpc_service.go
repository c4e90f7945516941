package grpc_control

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"market-streamer/src/config"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/streamer"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// -----------------------------------------------------------------------------
// GRPCService exposes the streamer over the standard gRPC health protocol so
// orchestrators can probe liveness without speaking the HTTP API.
// -----------------------------------------------------------------------------

const serviceName = "market_streamer.Streamer"

// stateSyncInterval is how often the serving status is refreshed from the
// streamer's connection state.
const stateSyncInterval = 5 * time.Second

type GRPCService struct {
	server       *grpc.Server
	healthServer *health.Server
	listener     net.Listener
	config       *config.Config
	logger       *logger.Logger
	streamer     *streamer.Streamer
	cancel       context.CancelFunc
	running      atomic.Bool
}

// -----------------------------------------------------------------------------

// NewGRPCService creates a new GRPCService instance
func NewGRPCService(config *config.Config, logger *logger.Logger, str *streamer.Streamer) (*GRPCService, error) {
	// Create listener
	address := fmt.Sprintf("%s:%d", config.GRPC_Host, config.GRPC_Port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	serverOptions := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(10 * 1024 * 1024), // 10MB
		grpc.MaxSendMsgSize(10 * 1024 * 1024), // 10MB
	}

	return &GRPCService{
		server:   grpc.NewServer(serverOptions...),
		listener: listener,
		config:   config,
		logger:   logger,
		streamer: str,
	}, nil
}

// -----------------------------------------------------------------------------

// Start registers the health service and begins serving. Non-blocking; the
// caller owns shutdown via Stop.
func (g *GRPCService) Start() error {
	g.logger.Info("Starting gRPC health service on %s", g.listener.Addr().String())

	g.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(g.server, g.healthServer)
	g.healthServer.SetServingStatus(serviceName, servingStatus(g.streamer.State()))

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	go func() {
		g.running.Store(true)
		if err := g.server.Serve(g.listener); err != nil && err != grpc.ErrServerStopped {
			g.logger.Error("gRPC server failed: %v", err)
		}
		g.running.Store(false)
	}()

	go g.syncServingStatus(ctx)

	g.logger.Info("gRPC health service started on %s", g.listener.Addr().String())
	return nil
}

// -----------------------------------------------------------------------------

// Stop gracefully stops the gRPC server
func (g *GRPCService) Stop(ctx context.Context) error {
	g.logger.Info("Stopping gRPC health service...")

	if g.cancel != nil {
		g.cancel()
	}
	if g.healthServer != nil {
		g.healthServer.Shutdown()
	}

	if g.server != nil {
		done := make(chan struct{})
		go func() {
			g.server.GracefulStop()
			close(done)
		}()

		select {
		case <-ctx.Done():
			g.logger.Warning("gRPC graceful shutdown timeout, forcing stop...")
			g.server.Stop()
		case <-done:
			g.logger.Info("gRPC health service stopped gracefully")
		}
	}

	if g.listener != nil {
		g.listener.Close()
	}

	g.running.Store(false)
	return nil
}

// -----------------------------------------------------------------------------

// IsRunning returns whether the gRPC server is running. Readable from any
// goroutine while the serve goroutine flips the flag.
func (g *GRPCService) IsRunning() bool {
	return g.running.Load()
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// syncServingStatus mirrors the streamer's connection state onto the health
// endpoint until the context is cancelled.
func (g *GRPCService) syncServingStatus(ctx context.Context) {
	ticker := time.NewTicker(stateSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.healthServer.SetServingStatus(serviceName, servingStatus(g.streamer.State()))
		}
	}
}

// -----------------------------------------------------------------------------

// servingStatus maps connection states onto health statuses. Degraded still
// serves: ticks may be stale but the pipeline is up and reconnecting.
func servingStatus(state models.MConnectionState) grpc_health_v1.HealthCheckResponse_ServingStatus {
	switch state {
	case models.StateConnected, models.StateDegraded:
		return grpc_health_v1.HealthCheckResponse_SERVING
	default:
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
}
