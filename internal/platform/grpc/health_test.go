package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func TestRefreshFollowsCheck(t *testing.T) {
	var failing atomic.Bool
	reporter := NewHealthReporter(func() error {
		if failing.Load() {
			return errors.New("store is unusable")
		}
		return nil
	}, time.Hour, nil, "memimg.v1")

	if got := reporter.Refresh(); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %s, want SERVING", got)
	}
	failing.Store(true)
	if got := reporter.Refresh(); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %s, want NOT_SERVING", got)
	}

	resp, err := reporter.server.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: "memimg.v1"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("service status = %s, want NOT_SERVING", resp.GetStatus())
	}
}

func TestRunStopsOnContext(t *testing.T) {
	reporter := NewHealthReporter(nil, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reporter.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not stop")
	}
	resp, err := reporter.server.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after shutdown = %s, want NOT_SERVING", resp.GetStatus())
	}
}

func TestWaitForHealthServing(t *testing.T) {
	addr, _, stop := startHealthServer(t, func() error { return nil })
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "", nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	var ready atomic.Bool
	addr, reporter, stop := startHealthServer(t, func() error {
		if !ready.Load() {
			return errors.New("replaying")
		}
		return nil
	})
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)
		ready.Store(true)
		reporter.Refresh()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "", nil); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
}

func TestWaitForHealthRespectsContext(t *testing.T) {
	addr, _, stop := startHealthServer(t, func() error { return errors.New("down") })
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "", nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestWaitForHealthRequiresConn(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func startHealthServer(t *testing.T, check func() error) (string, *HealthReporter, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	grpcServer := gogrpc.NewServer()
	reporter := NewHealthReporter(check, time.Hour, nil)
	reporter.Register(grpcServer)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	stop := func() {
		grpcServer.GracefulStop()
		_ = listener.Close()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	}

	return listener.Addr().String(), reporter, stop
}

func dial(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()
	conn, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}
	return conn
}
