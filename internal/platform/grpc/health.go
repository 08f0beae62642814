// Package grpc serves and probes the gRPC health protocol.
package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/memimg/internal/platform/logging"
)

const defaultHealthInterval = time.Second

// HealthReporter mirrors a readiness check into a gRPC health server.
type HealthReporter struct {
	server   *health.Server
	check    func() error
	interval time.Duration
	services []string
	logger   *zap.Logger

	mu     sync.Mutex
	status grpc_health_v1.HealthCheckResponse_ServingStatus
}

// NewHealthReporter reports SERVING for the overall server and each named
// service while check returns nil, and NOT_SERVING otherwise.
func NewHealthReporter(check func() error, interval time.Duration, logger *zap.Logger, services ...string) *HealthReporter {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	r := &HealthReporter{
		server:   health.NewServer(),
		check:    check,
		interval: interval,
		services: append([]string{""}, services...),
		logger:   logging.OrNop(logger),
		status:   grpc_health_v1.HealthCheckResponse_UNKNOWN,
	}
	r.Refresh()
	return r
}

// Register adds the health service to server.
func (r *HealthReporter) Register(server *gogrpc.Server) {
	grpc_health_v1.RegisterHealthServer(server, r.server)
}

// Refresh runs the check once and publishes the result.
func (r *HealthReporter) Refresh() grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	var err error
	if r.check != nil {
		err = r.check()
	}
	if err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}

	r.mu.Lock()
	changed := status != r.status
	r.status = status
	r.mu.Unlock()

	if !changed {
		return status
	}
	for _, service := range r.services {
		r.server.SetServingStatus(service, status)
	}
	if err != nil {
		logging.LogFailure(r.logger, err, zap.String("health", status.String()))
	} else {
		r.logger.Info("health status changed", zap.String("health", status.String()))
	}
	return status
}

// Run refreshes on every interval until ctx ends, then marks every service
// NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return nil
		case <-ticker.C:
			r.Refresh()
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later refreshes.
func (r *HealthReporter) Shutdown() {
	r.server.Shutdown()
}

// Dial opens a plaintext client connection to addr.
func Dial(addr string) (*gogrpc.ClientConn, error) {
	conn, err := gogrpc.NewClient(addr, gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// WaitForHealth blocks until the gRPC health check reports SERVING or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logger *zap.Logger) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger = logging.OrNop(logger)

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 50 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		if err != nil {
			logger.Debug("waiting for gRPC health", zap.Error(err))
		} else {
			logger.Debug("waiting for gRPC health", zap.String("status", response.GetStatus().String()))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}
