package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	// ServiceName is the health service key reported alongside the overall
	// ("") status.
	ServiceName = "revchain.Ledger"
	// ArchiveServiceName turns NOT_SERVING while committed events have not
	// reached every archive sink.
	ArchiveServiceName = "revchain.Archive"
)

// Checker reports whether the ledger can accept operations.
type Checker interface {
	Ready() bool
}

// SinkChecker is implemented by checkers that also track event delivery.
type SinkChecker interface {
	SinksHealthy() bool
}

// Server exposes the standard gRPC health protocol for the ledger.
type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	checker Checker
	logger  *slog.Logger
	serving bool
}

// NewServer builds a health server. Status starts as NOT_SERVING until the
// first Refresh.
func NewServer(checker Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(otelgrpc.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ArchiveServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: grpcServer, health: hs, checker: checker, logger: logger}
}

// Refresh polls the checker once and publishes the resulting status.
func (s *Server) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	ready := s.checker != nil && s.checker.Ready()
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if ready != s.serving {
		s.logger.Info("health status changed", slog.String("status", status.String()))
		s.serving = ready
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)

	archive := healthpb.HealthCheckResponse_SERVING
	if sc, ok := s.checker.(SinkChecker); ok && !sc.SinksHealthy() {
		archive = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ArchiveServiceName, archive)
	return status
}

// Watch refreshes the status every interval until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.Refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Serve accepts health connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains the gRPC server, forcing
// it closed when ctx expires first.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("forcing health server stop")
		s.grpc.Stop()
	}
}
