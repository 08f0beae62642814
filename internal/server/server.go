// Package server hosts the bank memory image over HTTP and reports its
// health over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/louisbranch/memimg/internal/bank"
	"github.com/louisbranch/memimg/internal/httpapi"
	"github.com/louisbranch/memimg/internal/memimg"
	"github.com/louisbranch/memimg/internal/memimg/storage"
	"github.com/louisbranch/memimg/internal/memimg/storage/backend"
	"github.com/louisbranch/memimg/internal/memimg/storage/integrity"
	pebblestore "github.com/louisbranch/memimg/internal/memimg/storage/pebble"
	platformgrpc "github.com/louisbranch/memimg/internal/platform/grpc"
	"github.com/louisbranch/memimg/internal/platform/logging"
	"github.com/louisbranch/memimg/internal/platform/metrics"
	"github.com/louisbranch/memimg/internal/platform/timeouts"
)

// HealthService is the gRPC health service name reported for the image.
const HealthService = "memimg.v1.Bank"

// Config describes how to open the log and where to listen.
type Config struct {
	HTTPAddr string
	// GRPCAddr disables the health endpoint when empty.
	GRPCAddr string
	Backend  string
	Path     string
	Keyring  *integrity.Keyring
	Scope    string

	LockTimeout       time.Duration
	MaxConnections    int
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	HealthInterval    time.Duration

	Logger *zap.Logger
	// Registry receives every collector. A fresh one is used when nil.
	Registry *prometheus.Registry
}

// Server owns the event log, the image rebuilt from it and the listeners
// that expose it.
type Server struct {
	log             storage.Log
	image           *memimg.Image[*bank.Bank]
	httpListener    net.Listener
	httpServer      *http.Server
	grpcListener    net.Listener
	grpcServer      *grpc.Server
	health          *platformgrpc.HealthReporter
	logger          *zap.Logger
	shutdownTimeout time.Duration
	closeOnce       sync.Once
}

// New opens the configured log, replays it into a fresh bank and binds the
// listeners. Nothing is served until Serve.
func New(ctx context.Context, cfg Config) (*Server, error) {
	logger := logging.OrNop(cfg.Logger)
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = timeouts.HealthInterval
	}

	log, err := backend.Open(ctx, cfg.Backend, cfg.Path,
		storage.WithKeyring(cfg.Keyring),
		storage.WithScope(cfg.Scope),
	)
	if err != nil {
		return nil, err
	}
	s := &Server{
		log:             log,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if err := s.init(ctx, cfg, registry); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context, cfg Config, registry *prometheus.Registry) error {
	if store, ok := s.log.(*pebblestore.Store); ok {
		if err := registry.Register(pebblestore.NewCollector(store)); err != nil {
			return fmt.Errorf("register pebble metrics: %w", err)
		}
	}
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	bankRegistry, err := bank.NewRegistry()
	if err != nil {
		return err
	}
	s.image, err = memimg.New(ctx, bank.New(), s.log, bankRegistry,
		memimg.WithLogger(s.logger),
		memimg.WithMetrics(collector),
		memimg.WithLockTimeout(cfg.LockTimeout),
	)
	if err != nil {
		return err
	}

	handler, err := httpapi.New(s.image,
		httpapi.WithLogger(s.logger),
		httpapi.WithGatherer(registry),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	if err != nil {
		return err
	}
	s.httpListener, err = listen(cfg.HTTPAddr, cfg.MaxConnections)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	s.health = platformgrpc.NewHealthReporter(s.image.Healthy, cfg.HealthInterval, s.logger, HealthService)
	if cfg.GRPCAddr == "" {
		return nil
	}
	s.grpcListener, err = listen(cfg.GRPCAddr, cfg.MaxConnections)
	if err != nil {
		return err
	}
	s.grpcServer = grpc.NewServer()
	s.health.Register(s.grpcServer)
	return nil
}

func listen(addr string, maxConnections int) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if maxConnections > 0 {
		listener = netutil.LimitListener(listener, maxConnections)
	}
	return listener, nil
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Image returns the served image.
func (s *Server) Image() *memimg.Image[*bank.Bank] {
	return s.image
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Serve blocks until ctx ends or a listener fails, then shuts both servers
// down gracefully and closes the log.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.logger.Info("memimg serving",
		zap.String("http_addr", s.HTTPAddr()),
		zap.String("grpc_addr", s.GRPCAddr()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.httpServer.Serve(s.httpListener)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	})
	if s.grpcServer != nil {
		group.Go(func() error {
			err := s.grpcServer.Serve(s.grpcListener)
			if err == nil || errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return fmt.Errorf("serve gRPC: %w", err)
		})
	}
	group.Go(func() error {
		return s.health.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return s.shutdown()
	})
	return group.Wait()
}

func (s *Server) shutdown() error {
	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			s.grpcServer.Stop()
			<-stopped
		}
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Close releases the listeners and the event log. It is safe to call more
// than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		if s.httpListener != nil {
			_ = s.httpListener.Close()
		}
		if s.grpcListener != nil {
			_ = s.grpcListener.Close()
		}
		if s.log != nil {
			if err := s.log.Close(); err != nil {
				s.logger.Warn("close event log", zap.Error(err))
			}
		}
	})
}
